// Package nuevomatch assembles the loaded iSets, remainder classifier
// and workers into the classifier container: the public surface an
// embedding application actually calls. Construction is a functional-
// options struct, the idiomatic Go analogue of the teacher's
// struct-literal flow configuration (flow.Config and friends), built
// once and never mutated after Load.
package nuevomatch

import (
	"github.com/theojepsen/nuevomatch/nmerror"
	"github.com/theojepsen/nuevomatch/remainder"
)

// Config carries every behavioral option the classifier accepts at
// construction. All fields are set through the With* options below;
// none are meant to be touched directly.
type Config struct {
	numOfCores int
	queueSize  uint32

	maxSubsets      int32
	startFromISet   uint32
	arbitraryFields []uint32

	disableISets             bool
	disableRemainder         bool
	disableBinSearch         bool
	disableValidationPhase   bool
	disableAllClassification bool
	externalRemainder        bool
	forceRebuildingRemainder bool

	remainderType       remainder.Kind
	remainderClassifier *remainder.Classifier
}

// Option configures a Config field. Options are applied in order, so
// a later option overrides an earlier one touching the same field.
type Option func(*Config)

// defaultConfig mirrors the reference configuration: one core (the
// caller's own, bin 0 only), a 1024-entry queue for any parallel
// workers a higher core count would add, no filtering, and CutSplit
// remainder construction.
func defaultConfig() Config {
	return Config{
		numOfCores:  1,
		queueSize:   1024,
		maxSubsets:  -1,
		remainderType: remainder.CutSplit,
	}
}

// WithNumCores sets the number of worker processing units; bin 0 is
// always the caller's own.
func WithNumCores(n int) Option {
	return func(c *Config) { c.numOfCores = n }
}

// WithQueueSize sets the bounded queue depth per parallel worker. It
// must be a power of two; validated at construction, not here.
func WithQueueSize(n uint32) Option {
	return func(c *Config) { c.queueSize = n }
}

// WithMaxSubsets keeps only iSet indices below max. Pass -1 to disable
// this filter (the default).
func WithMaxSubsets(max int32) Option {
	return func(c *Config) { c.maxSubsets = max }
}

// WithStartFromISet keeps only iSet indices at or above start.
func WithStartFromISet(start uint32) Option {
	return func(c *Config) { c.startFromISet = start }
}

// WithArbitraryFields keeps only iSets whose field index appears in
// fields, and permutes each kept iSet's internal field index to match
// its position in fields.
func WithArbitraryFields(fields []uint32) Option {
	return func(c *Config) {
		c.arbitraryFields = append([]uint32(nil), fields...)
	}
}

// WithDisableISets drops every iSet at load time; every rule moves to
// the remainder.
func WithDisableISets() Option {
	return func(c *Config) { c.disableISets = true }
}

// WithDisableRemainder skips Stage D for every batch.
func WithDisableRemainder() Option {
	return func(c *Config) { c.disableRemainder = true }
}

// WithDisableBinSearch skips Stages B, C and D; only Stage A runs.
func WithDisableBinSearch() Option {
	return func(c *Config) { c.disableBinSearch = true }
}

// WithDisableValidationPhase runs Stages A and B but skips C; the
// remainder still runs.
func WithDisableValidationPhase() Option {
	return func(c *Config) { c.disableValidationPhase = true }
}

// WithDisableAllClassification forces every classify call to return
// the no-match sentinel immediately.
func WithDisableAllClassification() Option {
	return func(c *Config) { c.disableAllClassification = true }
}

// WithExternalRemainder marks the supplied remainder classifier
// authoritative: it is never rebuilt, even if some iSets were skipped.
func WithExternalRemainder(r *remainder.Classifier) Option {
	return func(c *Config) {
		c.externalRemainder = true
		c.remainderClassifier = r
	}
}

// WithForceRebuildingRemainder unconditionally rebuilds the remainder
// from the accumulated remainder-rule list instead of loading the
// packed remainder sub-object.
func WithForceRebuildingRemainder() Option {
	return func(c *Config) { c.forceRebuildingRemainder = true }
}

// WithRemainderType selects the construction tuning used for a
// rebuild.
func WithRemainderType(kind remainder.Kind) Option {
	return func(c *Config) { c.remainderType = kind }
}

// NewConfig builds a Config from the defaults plus the given options,
// validating the result.
func NewConfig(opts ...Option) (Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.queueSize == 0 || c.queueSize&(c.queueSize-1) != 0 {
		return nmerror.New(nmerror.Config, "nuevomatch: queue_size must be a power of two")
	}
	if c.numOfCores < 1 {
		return nmerror.New(nmerror.Config, "nuevomatch: num_of_cores must be at least 1")
	}
	if c.externalRemainder && c.remainderClassifier == nil {
		return nmerror.New(nmerror.Config, "nuevomatch: external_remainder requires a supplied remainder classifier")
	}
	return nil
}
