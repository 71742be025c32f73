// Command nuevomatch-build trains a single iSet and a remainder
// classifier from a rule file and packs them into a classifier
// container blob, the offline counterpart to the online core: the
// core only loads, this tool is the one place allowed to call
// iset.Train and rqrmi.Train.
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/theojepsen/nuevomatch/iset"
	"github.com/theojepsen/nuevomatch/nmlog"
	"github.com/theojepsen/nuevomatch/nmtype"
	"github.com/theojepsen/nuevomatch/remainder"
	"github.com/theojepsen/nuevomatch/rules"
)

const headerSize = 16

// buildConfig holds the knobs an offline build can be driven by,
// loadable from a TOML file via viper so a build pipeline can check
// one in alongside its rule files instead of threading flags through
// a script.
type buildConfig struct {
	Field         string `toml:"field" mapstructure:"field"`
	Fanout        int    `toml:"fanout" mapstructure:"fanout"`
	RemainderType string `toml:"remainder_type" mapstructure:"remainder_type"`
	NoISet        bool   `toml:"no_iset" mapstructure:"no_iset"`
	NumCores      int    `toml:"num_cores" mapstructure:"num_cores"`
	QueueSize     uint32 `toml:"queue_size" mapstructure:"queue_size"`
}

func defaultBuildConfig() buildConfig {
	return buildConfig{
		Field:         "src",
		Fanout:        8,
		RemainderType: "cutsplit",
		NumCores:      1,
		QueueSize:     1024,
	}
}

var fieldsByName = map[string]uint32{
	"src":   nmtype.FieldSrc,
	"dst":   nmtype.FieldDst,
	"sport": nmtype.FieldSport,
	"dport": nmtype.FieldDport,
	"proto": nmtype.FieldProto,
	"tos":   nmtype.FieldTos,
}

func main() {
	cfg := defaultBuildConfig()
	var configPath string

	root := &cobra.Command{
		Use:   "nuevomatch-build <rulefile> <out-blob>",
		Short: "Train an iSet and remainder classifier and pack a container blob",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := applyBuildConfigFile(configPath, cmd.Flags(), &cfg); err != nil {
					return err
				}
			}
			return runBuild(args[0], args[1], cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&configPath, "config", "", "optional TOML build configuration file")
	flags.StringVar(&cfg.Field, "field", cfg.Field, "header field to train the iSet on (src, dst, sport, dport, proto, tos)")
	flags.IntVar(&cfg.Fanout, "fanout", cfg.Fanout, "root-stage fanout for the trained RQRMI model")
	flags.StringVar(&cfg.RemainderType, "remainder-type", cfg.RemainderType, "remainder construction tuning (cutsplit, tuplemerge)")
	flags.BoolVar(&cfg.NoISet, "no-iset", cfg.NoISet, "skip iSet training; pack a remainder-only classifier")
	flags.IntVar(&cfg.NumCores, "num-cores", cfg.NumCores, "recommended worker core count, written to the sidecar runtime config")
	flags.Uint32Var(&cfg.QueueSize, "queue-size", cfg.QueueSize, "recommended parallel worker queue depth, written to the sidecar runtime config")

	if err := root.Execute(); err != nil {
		nmlog.Fatal(err)
	}
}

// applyBuildConfigFile reads path through viper (TOML format) and
// layers it under cfg: a field the user set explicitly on the command
// line (flags.Changed) keeps its flag value, every other field takes
// the file's value. Flags always win over the config file, which
// always wins over the built-in defaults baked into cfg already.
func applyBuildConfigFile(path string, flags *pflag.FlagSet, cfg *buildConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("nuevomatch-build: read config %s: %w", path, err)
	}

	fromFile := *cfg
	if err := v.Unmarshal(&fromFile); err != nil {
		return fmt.Errorf("nuevomatch-build: decode config %s: %w", path, err)
	}

	if !flags.Changed("field") {
		cfg.Field = fromFile.Field
	}
	if !flags.Changed("fanout") {
		cfg.Fanout = fromFile.Fanout
	}
	if !flags.Changed("remainder-type") {
		cfg.RemainderType = fromFile.RemainderType
	}
	if !flags.Changed("no-iset") {
		cfg.NoISet = fromFile.NoISet
	}
	if !flags.Changed("num-cores") {
		cfg.NumCores = fromFile.NumCores
	}
	if !flags.Changed("queue-size") {
		cfg.QueueSize = fromFile.QueueSize
	}
	return nil
}

func runBuild(rulePath, outPath string, cfg buildConfig) error {
	fieldIndex, ok := fieldsByName[cfg.Field]
	if !ok {
		return fmt.Errorf("nuevomatch-build: unknown field %q", cfg.Field)
	}
	remainderKind, err := remainder.ParseKind(cfg.RemainderType)
	if err != nil {
		return err
	}

	allRules, err := rules.ParseFile(rulePath)
	if err != nil {
		return err
	}
	if len(allRules) == 0 {
		return fmt.Errorf("nuevomatch-build: %s contains no rules", rulePath)
	}
	sort.SliceStable(allRules, func(i, j int) bool { return allRules[i].Priority < allRules[j].Priority })
	nmlog.Info(nmlog.Initialization, "nuevomatch-build: parsed", len(allRules), "rules from", rulePath)

	// The remainder is always built over the full rule set: it is the
	// correctness safety net Stage C falls back to, so a query that
	// misses (or is filtered out of) every iSet still resolves
	// correctly. Training the iSet as an accelerator on top of that,
	// rather than as a strict partition, keeps this tool's build
	// policy simple without weakening the loaded classifier.
	rc := remainder.New(remainderKind)
	rc.Build(allRules)

	var isetPacked []byte
	numISets := uint32(0)
	if !cfg.NoISet {
		sortedByField := append([]nmtype.Rule(nil), allRules...)
		sort.SliceStable(sortedByField, func(i, j int) bool {
			return sortedByField[i].Fields[fieldIndex].Low < sortedByField[j].Fields[fieldIndex].Low
		})
		is := iset.Train(fieldIndex, sortedByField, cfg.Fanout)
		var buf bytes.Buffer
		if err := iset.Pack(is, &buf); err != nil {
			return fmt.Errorf("nuevomatch-build: pack iset: %w", err)
		}
		isetPacked = buf.Bytes()
		numISets = 1
		nmlog.Info(nmlog.Initialization, "nuevomatch-build: trained iset on field", cfg.Field, "fanout", cfg.Fanout, "size", is.SizeBytes(), "bytes")
	}

	var blob bytes.Buffer
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], numISets)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(allRules)))
	binary.LittleEndian.PutUint32(hdr[8:12], 0)
	binary.LittleEndian.PutUint32(hdr[12:16], 0)
	blob.Write(hdr[:])

	if numISets == 1 {
		writeLengthPrefixed(&blob, isetPacked)
	}

	var ruleDB bytes.Buffer
	if err := remainder.EncodeRuleList(&ruleDB, allRules); err != nil {
		return fmt.Errorf("nuevomatch-build: encode predefined rule database: %w", err)
	}
	writeLengthPrefixed(&blob, ruleDB.Bytes())

	var remBuf bytes.Buffer
	if err := rc.Pack(&remBuf); err != nil {
		return fmt.Errorf("nuevomatch-build: pack remainder: %w", err)
	}
	writeLengthPrefixed(&blob, remBuf.Bytes())

	if err := os.WriteFile(outPath, blob.Bytes(), 0o644); err != nil {
		return fmt.Errorf("nuevomatch-build: write %s: %w", outPath, err)
	}
	nmlog.Info(nmlog.Initialization, "nuevomatch-build: wrote", blob.Len(), "bytes to", outPath)

	return writeRuntimeConfig(outPath, cfg)
}

// writeRuntimeConfig emits a sidecar "<out-blob>.toml" carrying the
// recommended runtime knobs (core count, queue depth) alongside the
// blob, so nuevomatch-classify can pick them up without the operator
// re-typing them at classify time.
func writeRuntimeConfig(blobPath string, cfg buildConfig) error {
	runtime := struct {
		NumCores  int    `toml:"num_cores"`
		QueueSize uint32 `toml:"queue_size"`
	}{NumCores: cfg.NumCores, QueueSize: cfg.QueueSize}

	out, err := toml.Marshal(runtime)
	if err != nil {
		return fmt.Errorf("nuevomatch-build: marshal runtime config: %w", err)
	}
	path := blobPath + ".toml"
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("nuevomatch-build: write %s: %w", path, err)
	}
	nmlog.Info(nmlog.Initialization, "nuevomatch-build: wrote runtime config to", path)
	return nil
}

func writeLengthPrefixed(buf *bytes.Buffer, payload []byte) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(payload)))
	buf.Write(length[:])
	buf.Write(payload)
}
