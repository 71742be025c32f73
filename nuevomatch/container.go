package nuevomatch

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/theojepsen/nuevomatch/iset"
	"github.com/theojepsen/nuevomatch/nmerror"
	"github.com/theojepsen/nuevomatch/nmtype"
	"github.com/theojepsen/nuevomatch/remainder"
	"github.com/theojepsen/nuevomatch/subset"
	"github.com/theojepsen/nuevomatch/worker"
)

const headerSize = 16 // num_of_isets, num_of_rules, size, build_time_ms, each u32

// ClassifierContainer is the loaded, grouped, ready-to-run classifier:
// the public surface an embedding application holds onto. It owns the
// kept iSets and remainder, the workers they were grouped onto, and
// the counters and listeners shared across them.
type ClassifierContainer struct {
	cfg Config

	originalISetRegion []byte
	isets              []*iset.IntervalSet
	remainder          *remainder.Classifier

	numRules    int
	sizeBytes   int
	buildTimeMs uint32

	serial    *worker.Serial
	parallels []*worker.Parallel
	workers   []workerHandle

	collector     *resultCollector
	packetCounter uint64
	nextBatchID   uint32
}

type workerHandle interface {
	Index() int
	AddListener(worker.Listener)
	Stats() *worker.Stats
}

// Load parses a precompiled classifier blob per the container format
// and groups its live subsets onto cfg.numOfCores workers.
func Load(r io.Reader, cfg Config) (*ClassifierContainer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, nmerror.Wrap(err, nmerror.Load, "nuevomatch: read blob")
	}
	if len(buf) < headerSize {
		return nil, nmerror.New(nmerror.Load, "nuevomatch: blob shorter than the fixed header")
	}

	numISets := binary.LittleEndian.Uint32(buf[0:4])
	buildTimeMs := binary.LittleEndian.Uint32(buf[12:16])

	c := &ClassifierContainer{
		cfg:         cfg,
		isets:       make([]*iset.IntervalSet, numISets),
		buildTimeMs: buildTimeMs,
		collector:   newResultCollector(),
	}

	offset := headerSize
	isetsStart := offset
	var remainderRules []nmtype.Rule
	anySkipped := cfg.disableISets

	for i := uint32(0); i < numISets; i++ {
		sub, next, err := readLengthPrefixed(buf, offset)
		if err != nil {
			return nil, nmerror.Wrap(err, nmerror.Load, "nuevomatch: iset length prefix")
		}
		offset = next

		is, err := iset.Load(bytes.NewReader(sub))
		if err != nil {
			return nil, nmerror.Wrap(err, nmerror.Load, "nuevomatch: load iset")
		}

		if c.shouldSkip(int(i), is) {
			anySkipped = true
			remainderRules = append(remainderRules, is.ExtractRules()...)
			continue
		}
		if len(cfg.arbitraryFields) > 0 {
			is.RearrangeFieldIndices(cfg.arbitraryFields)
		}
		c.isets[i] = is
	}
	c.originalISetRegion = append([]byte(nil), buf[isetsStart:offset]...)

	ruleDB, next, err := readLengthPrefixed(buf, offset)
	if err != nil {
		return nil, nmerror.Wrap(err, nmerror.Load, "nuevomatch: remainder rule database")
	}
	offset = next
	predefined, err := remainder.DecodeRuleList(bytes.NewReader(ruleDB))
	if err != nil {
		return nil, nmerror.Wrap(err, nmerror.Load, "nuevomatch: decode predefined remainder rules")
	}
	remainderRules = append(remainderRules, predefined...)

	sort.SliceStable(remainderRules, func(i, j int) bool {
		return remainderRules[i].Priority < remainderRules[j].Priority
	})

	var trailingBlob []byte
	if offset+4 <= len(buf) {
		trailingBlob, _, err = readLengthPrefixed(buf, offset)
		if err != nil {
			return nil, nmerror.Wrap(err, nmerror.Load, "nuevomatch: trailing remainder blob")
		}
	}
	if err := c.loadRemainder(remainderRules, anySkipped, trailingBlob); err != nil {
		return nil, err
	}

	c.numRules = c.countRules()
	if err := c.group(); err != nil {
		return nil, err
	}
	c.sizeBytes = c.computeSize()
	return c, nil
}

func readLengthPrefixed(buf []byte, offset int) (payload []byte, next int, err error) {
	if offset+4 > len(buf) {
		return nil, 0, nmerror.New(nmerror.Load, "truncated length prefix")
	}
	length := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	offset += 4
	if length < 0 || offset+length > len(buf) {
		return nil, 0, nmerror.New(nmerror.Load, "truncated sub-object")
	}
	return buf[offset : offset+length], offset + length, nil
}

func (c *ClassifierContainer) shouldSkip(index int, is *iset.IntervalSet) bool {
	if c.cfg.disableISets {
		return true
	}
	if c.cfg.maxSubsets >= 0 && index >= int(c.cfg.maxSubsets) {
		return true
	}
	if uint32(index) < c.cfg.startFromISet {
		return true
	}
	if len(c.cfg.arbitraryFields) > 0 {
		found := false
		for _, f := range c.cfg.arbitraryFields {
			if f == is.FieldIndex() {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	return false
}

func (c *ClassifierContainer) loadRemainder(remainderRules []nmtype.Rule, anySkipped bool, trailing []byte) error {
	switch {
	case c.cfg.disableRemainder:
		c.remainder = nil
		return nil
	case c.cfg.externalRemainder:
		c.remainder = c.cfg.remainderClassifier
		return nil
	}

	rebuild := c.cfg.forceRebuildingRemainder || anySkipped
	if rebuild {
		rc := remainder.New(c.cfg.remainderType)
		rc.Build(remainderRules)
		c.remainder = rc
		return nil
	}

	rc := remainder.New(c.cfg.remainderType)
	if err := rc.Load(bytes.NewReader(trailing)); err != nil {
		rc = remainder.New(c.cfg.remainderType)
		rc.Build(remainderRules)
		c.remainder = rc
		return nil
	}
	c.remainder = rc
	return nil
}

func (c *ClassifierContainer) countRules() int {
	n := 0
	for _, is := range c.isets {
		if is != nil {
			n += is.Size()
		}
	}
	if c.remainder != nil {
		n += c.remainder.RuleCount()
	}
	return n
}

func (c *ClassifierContainer) computeSize() int {
	n := 0
	for _, is := range c.isets {
		if is != nil {
			n += int(is.SizeBytes())
		}
	}
	if c.remainder != nil {
		n += c.remainder.Size()
	}
	return n
}

// group implements §4.3: gather live subsets, sort descending by size,
// greedily assign each to the currently-smallest bin, then turn bin 0
// into the serial worker and every other bin into a pinned parallel
// worker.
func (c *ClassifierContainer) group() error {
	var live []subset.Subset
	for _, is := range c.isets {
		if is != nil {
			live = append(live, subset.FromISet(is))
		}
	}
	if c.remainder != nil {
		live = append(live, subset.FromRemainder(c.remainder))
	}
	if len(live) == 0 {
		return nmerror.New(nmerror.Subset, "nuevomatch: no valid subsets after filtering")
	}

	sort.SliceStable(live, func(i, j int) bool {
		return live[i].SizeBytes() > live[j].SizeBytes()
	})

	bins := make([][]subset.Subset, c.cfg.numOfCores)
	totals := make([]int, c.cfg.numOfCores)
	for _, s := range live {
		smallest := 0
		for i := 1; i < len(totals); i++ {
			if totals[i] < totals[smallest] {
				smallest = i
			}
		}
		bins[smallest] = append(bins[smallest], s)
		totals[smallest] += s.SizeBytes()
	}

	pipelineCfg := worker.Config{
		DisableAllClassification: c.cfg.disableAllClassification,
		DisableBinSearch:         c.cfg.disableBinSearch,
		DisableValidationPhase:   c.cfg.disableValidationPhase,
		DisableRemainder:         c.cfg.disableRemainder,
	}

	for i, binSubsets := range bins {
		pipeline, err := worker.NewPipeline(binSubsets, pipelineCfg)
		if err != nil {
			return err
		}
		if i == 0 {
			c.serial = worker.NewSerial(0, pipeline)
			c.serial.AddListener(c.collector)
			c.workers = append(c.workers, c.serial)
			continue
		}
		p, err := worker.NewParallel(i, pipeline, c.cfg.queueSize, i-1)
		if err != nil {
			return err
		}
		p.AddListener(c.collector)
		p.Start()
		c.parallels = append(c.parallels, p)
		c.workers = append(c.workers, p)
	}
	return nil
}

// Workers exposes the container's worker handles, for callers that
// want to track per-worker stats (e.g. metrics.Track) without reaching
// into the container's internals.
func (c *ClassifierContainer) Workers() []workerHandle {
	return c.workers
}

// AddListener registers l on every worker. Must be called before the
// first Classify or ClassifyBatch call.
func (c *ClassifierContainer) AddListener(l worker.Listener) {
	for _, w := range c.workers {
		w.AddListener(l)
	}
}

// Classify classifies a single header synchronously, dispatching it to
// every worker and merging their per-worker best result. It drives the
// workers itself rather than going through ClassifyBatch, which only
// reaches bin 0.
func (c *ClassifierContainer) Classify(header *nmtype.PacketHeader) nmtype.ActionOutput {
	atomic.AddUint64(&c.packetCounter, 1)
	batchID := atomic.AddUint32(&c.nextBatchID, 1)
	batch := nmtype.PacketBatch{header}

	pending := c.collector.await(batchID, len(c.workers))
	c.serial.Classify(batchID, batch)
	for _, p := range c.parallels {
		for !p.Classify(batchID, batch) {
			time.Sleep(time.Microsecond)
		}
	}
	<-pending.done
	return pending.best
}

// ClassifyBatch dispatches one batch to bin 0 inline, returning once
// it (and only it) has been classified and published; the remaining
// bins, if any, are reached only through Classify's full fan-out. It
// mirrors the single-worker classify_batch primitive the specification
// describes for the common num_of_cores=1 configuration.
func (c *ClassifierContainer) ClassifyBatch(batchID uint32, batch nmtype.PacketBatch) bool {
	atomic.AddUint64(&c.packetCounter, 1)
	return c.serial.Classify(batchID, batch)
}

// ResetCounters zeroes the packet counter and every worker's stats.
func (c *ClassifierContainer) ResetCounters() {
	atomic.StoreUint64(&c.packetCounter, 0)
	for _, w := range c.workers {
		w.Stats().Reset()
	}
}

// AdvanceCounter bumps the packet counter without running a
// classification, for callers pre-accounting packets handled outside
// this classifier's own call path.
func (c *ClassifierContainer) AdvanceCounter() {
	atomic.AddUint64(&c.packetCounter, 1)
}

// PacketCounter returns the current packet counter.
func (c *ClassifierContainer) PacketCounter() uint64 {
	return atomic.LoadUint64(&c.packetCounter)
}

// StartPerformanceMeasurement begins a measurement window on every
// worker's stats.
func (c *ClassifierContainer) StartPerformanceMeasurement() {
	now := time.Now()
	for _, w := range c.workers {
		w.Stats().StartMeasurement(now)
	}
}

// StopPerformanceMeasurement ends the measurement window on every
// worker's stats.
func (c *ClassifierContainer) StopPerformanceMeasurement() {
	now := time.Now()
	for _, w := range c.workers {
		w.Stats().StopMeasurement(now)
	}
}

// GetNumOfRules returns the number of rules covered by the loaded
// classifier.
func (c *ClassifierContainer) GetNumOfRules() int {
	return c.numRules
}

// GetSize returns the classifier's footprint in bytes, recomputed from
// the attached subsets rather than trusted from the loaded header.
func (c *ClassifierContainer) GetSize() int {
	return c.sizeBytes
}

// GetBuildTime returns the build time recorded in the loaded blob's
// header, in milliseconds.
func (c *ClassifierContainer) GetBuildTime() uint32 {
	return c.buildTimeMs
}

// Pack re-emits the original iSet-region bytes verbatim, followed by
// the current remainder's own Pack output. No reconfiguration changes
// the iSet region's bytes, so this is always a round-trip-safe prefix
// of a blob Load would accept as the iSet portion of a fresh one, even
// though Pack's own output is not itself a reloadable full blob.
func (c *ClassifierContainer) Pack(w io.Writer) error {
	if _, err := w.Write(c.originalISetRegion); err != nil {
		return nmerror.Wrap(err, nmerror.Load, "nuevomatch: pack iset region")
	}
	if c.remainder != nil {
		return c.remainder.Pack(w)
	}
	return nil
}

// Close tears down every parallel worker's pinned goroutine, draining
// whatever is still queued before returning. A classifier is either
// running or torn down; callers must not call Classify or
// ClassifyBatch after Close. Cloned containers each own independent
// workers and must be closed independently.
func (c *ClassifierContainer) Close() {
	for _, p := range c.parallels {
		p.Stop()
	}
}

// Clone re-groups the same already-loaded subsets onto a fresh set of
// workers with independent counters and listeners. The loaded iSets
// and remainder are shared read-only data, consistent with
// configuration and loaded state being read-only after Load.
func (c *ClassifierContainer) Clone() (*ClassifierContainer, error) {
	clone := &ClassifierContainer{
		cfg:                c.cfg,
		originalISetRegion: c.originalISetRegion,
		isets:              c.isets,
		remainder:          c.remainder,
		numRules:           c.numRules,
		buildTimeMs:        c.buildTimeMs,
		collector:          newResultCollector(),
	}
	if err := clone.group(); err != nil {
		return nil, err
	}
	clone.sizeBytes = clone.computeSize()
	return clone, nil
}
