// Command nuevomatch-classify loads a precompiled classifier container
// and drives it from the command line: classify a trace file, run a
// throughput benchmark, or inspect a loaded blob's subsets and stats.
package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/theojepsen/nuevomatch/nmlog"
	"github.com/theojepsen/nuevomatch/nuevomatch"
)

// runtimeConfig is the sidecar file nuevomatch-build writes next to a
// blob, carrying the recommended worker topology for that blob.
type runtimeConfig struct {
	NumCores  int    `toml:"num_cores"`
	QueueSize uint32 `toml:"queue_size"`
}

// globalFlags are shared across every subcommand: how many cores to
// run the loaded classifier on, where to optionally serve Prometheus
// metrics, and whether to print worker stats when the command exits.
type globalFlags struct {
	configPath  string
	numCores    int
	queueSize   uint32
	metricsAddr string
	stats       bool
}

func main() {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "nuevomatch-classify",
		Short: "Load and drive a precompiled NuevoMatch classifier container",
	}
	persistent := root.PersistentFlags()
	persistent.StringVar(&flags.configPath, "config", "", "sidecar runtime TOML config (defaults to <blob>.toml if present)")
	persistent.IntVar(&flags.numCores, "cores", 0, "worker core count (0 = use config file or default)")
	persistent.Uint32Var(&flags.queueSize, "queue-size", 0, "parallel worker queue depth (0 = use config file or default)")
	persistent.StringVar(&flags.metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on, e.g. :9090")
	persistent.BoolVar(&flags.stats, "stats", false, "print per-worker throughput/utilization/backpressure on exit")

	root.AddCommand(
		newClassifyCmd(&flags),
		newBenchCmd(&flags),
		newInspectCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		nmlog.Fatal(err)
	}
}

// loadContainer resolves the runtime config (sidecar file, overridden
// by any explicitly set flags), opens blobPath, and loads the
// container, wiring Prometheus metrics when requested.
func loadContainer(blobPath string, flags *globalFlags) (*nuevomatch.ClassifierContainer, func(), error) {
	rc := runtimeConfig{NumCores: 1, QueueSize: 1024}

	configPath := flags.configPath
	if configPath == "" {
		if _, err := os.Stat(blobPath + ".toml"); err == nil {
			configPath = blobPath + ".toml"
		}
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("nuevomatch-classify: read config %s: %w", configPath, err)
		}
		if err := toml.Unmarshal(data, &rc); err != nil {
			return nil, nil, fmt.Errorf("nuevomatch-classify: parse config %s: %w", configPath, err)
		}
	}
	if flags.numCores > 0 {
		rc.NumCores = flags.numCores
	}
	if flags.queueSize > 0 {
		rc.QueueSize = flags.queueSize
	}

	cfg, err := nuevomatch.NewConfig(
		nuevomatch.WithNumCores(rc.NumCores),
		nuevomatch.WithQueueSize(rc.QueueSize),
	)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(blobPath)
	if err != nil {
		return nil, nil, fmt.Errorf("nuevomatch-classify: open %s: %w", blobPath, err)
	}
	defer f.Close()

	c, err := nuevomatch.Load(f, cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() { c.Close() }

	if flags.metricsAddr != "" {
		if err := serveMetrics(c, flags.metricsAddr); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return c, cleanup, nil
}

func maybePrintStats(c *nuevomatch.ClassifierContainer, flags *globalFlags) {
	if flags.stats {
		c.Print(os.Stdout, true)
	}
}
