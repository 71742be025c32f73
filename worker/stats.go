package worker

import (
	"sync/atomic"
	"time"
)

// Stats holds the performance counters a worker records per the
// specification's §4.4: throughput, utilization, backpressure rate
// and average work time per job. All fields are updated with atomics
// so a metrics listener can read a Snapshot from another goroutine
// while a parallel worker keeps processing.
type Stats struct {
	jobs         uint64
	workNs       uint64
	publishNs    uint64
	backpressure uint64
	startedAt    int64 // unix nanos; 0 means measurement not running
	measuredNs   uint64
}

// StartMeasurement begins a performance-measurement window; elapsed
// wall time from this point counts toward utilization.
func (s *Stats) StartMeasurement(now time.Time) {
	atomic.StoreInt64(&s.startedAt, now.UnixNano())
}

// StopMeasurement ends the current window, folding its elapsed time
// into the accumulated measured duration.
func (s *Stats) StopMeasurement(now time.Time) {
	start := atomic.SwapInt64(&s.startedAt, 0)
	if start == 0 {
		return
	}
	atomic.AddUint64(&s.measuredNs, uint64(now.UnixNano()-start))
}

// Reset zeroes every counter, per reset_counters().
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.jobs, 0)
	atomic.StoreUint64(&s.workNs, 0)
	atomic.StoreUint64(&s.publishNs, 0)
	atomic.StoreUint64(&s.backpressure, 0)
	atomic.StoreUint64(&s.measuredNs, 0)
}

func (s *Stats) recordJob(work, publish time.Duration) {
	atomic.AddUint64(&s.jobs, 1)
	atomic.AddUint64(&s.workNs, uint64(work.Nanoseconds()))
	atomic.AddUint64(&s.publishNs, uint64(publish.Nanoseconds()))
}

func (s *Stats) recordBackpressure() {
	atomic.AddUint64(&s.backpressure, 1)
}

// Snapshot is a point-in-time read of a worker's counters, safe to
// export as Prometheus gauges or print(verbose) rows.
type Snapshot struct {
	Jobs                uint64
	ThroughputPerUs     float64
	UtilizationFraction float64
	BackpressurePerUs   float64
	AvgWorkUs           float64
}

// Snapshot computes derived rates against the accumulated measured
// window.
func (s *Stats) Snapshot() Snapshot {
	jobs := atomic.LoadUint64(&s.jobs)
	workNs := atomic.LoadUint64(&s.workNs)
	publishNs := atomic.LoadUint64(&s.publishNs)
	backpressure := atomic.LoadUint64(&s.backpressure)
	measuredNs := atomic.LoadUint64(&s.measuredNs)

	snap := Snapshot{Jobs: jobs}
	measuredUs := float64(measuredNs) / 1e3
	if measuredUs > 0 {
		snap.ThroughputPerUs = float64(jobs) / measuredUs
		snap.BackpressurePerUs = float64(backpressure) / measuredUs
		snap.UtilizationFraction = float64(workNs+publishNs) / float64(measuredNs)
		if snap.UtilizationFraction > 1 {
			snap.UtilizationFraction = 1
		}
	}
	if jobs > 0 {
		snap.AvgWorkUs = float64(workNs) / float64(jobs) / 1e3
	}
	return snap
}
