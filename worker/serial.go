package worker

import (
	"time"

	"github.com/theojepsen/nuevomatch/nmtype"
)

// Serial runs the pipeline inline on the caller's own processing unit.
// It exists so the same worker contract applies when num_of_cores=1:
// no queue, no cross-core dispatch, bin 0's subsets run right where
// classify_batch was called.
type Serial struct {
	index     int
	pipeline  *Pipeline
	listeners []Listener
	stats     Stats
	lastBatch uint32
	started   bool
}

// NewSerial constructs a serial worker for the given pipeline.
func NewSerial(index int, pipeline *Pipeline) *Serial {
	return &Serial{index: index, pipeline: pipeline}
}

// Index returns this worker's index, used to key listener callbacks.
func (s *Serial) Index() int {
	return s.index
}

// AddListener registers a listener. Listeners must be registered
// before classification starts; the list is frozen thereafter.
func (s *Serial) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Classify runs one batch to completion and publishes its result.
// Serial workers never reject: they always return true.
func (s *Serial) Classify(batchID uint32, batch nmtype.PacketBatch) bool {
	if s.started && batchID <= s.lastBatch {
		panic("worker: batch_id must be strictly increasing")
	}
	s.lastBatch = batchID
	s.started = true

	workStart := time.Now()
	result := s.pipeline.Classify(batch)
	workEnd := time.Now()

	for _, l := range s.listeners {
		l.OnBatch(result, s.index, batchID)
	}
	publishEnd := time.Now()

	s.stats.recordJob(workEnd.Sub(workStart), publishEnd.Sub(workEnd))
	return true
}

// Stats returns this worker's performance counters.
func (s *Serial) Stats() *Stats {
	return &s.stats
}
