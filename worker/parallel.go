package worker

import (
	"time"

	"github.com/theojepsen/nuevomatch/nmerror"
	"github.com/theojepsen/nuevomatch/nmlog"
	"github.com/theojepsen/nuevomatch/nmtype"
)

// Parallel runs the pipeline on a dedicated goroutine pinned to its own
// core, fed by a bounded SPSC queue. Classify is the producer side: it
// never blocks and signals backpressure by returning false when the
// queue is full. The consumer loop is the only place that may find
// nothing to do and spin; it busy-polls rather than sleeping, the same
// poll-mode discipline the teacher applies to its DPDK receive queues.
type Parallel struct {
	index     int
	core      int
	pipeline  *Pipeline
	listeners []Listener
	stats     Stats
	queue     *ring
	lastBatch uint32
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewParallel constructs a parallel worker whose queue holds
// queueDepth jobs (must be a power of two) and whose run loop is
// pinned to the given core index.
func NewParallel(index int, pipeline *Pipeline, queueDepth uint32, core int) (*Parallel, error) {
	if queueDepth == 0 || queueDepth&(queueDepth-1) != 0 {
		return nil, nmerror.New(nmerror.Config, "worker: queue_depth must be a power of two")
	}
	return &Parallel{
		index:    index,
		core:     core,
		pipeline: pipeline,
		queue:    newRing(queueDepth),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Index returns this worker's index, used to key listener callbacks.
func (p *Parallel) Index() int {
	return p.index
}

// AddListener registers a listener. Listeners must be registered
// before the first Classify call; the list is frozen thereafter.
func (p *Parallel) AddListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

// Start launches the pinned consumer goroutine. It must be called
// exactly once, before the first Classify call.
func (p *Parallel) Start() {
	go p.run()
}

// Stop signals the consumer to drain whatever remains queued and
// exit, then blocks until it has done so. Teardown is synchronous: no
// job is dropped.
func (p *Parallel) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// Classify enqueues a batch for the pinned worker goroutine. It never
// blocks: a full queue is reported as a BackpressureSignal by
// returning false, and the batch is the caller's to retry or drop.
func (p *Parallel) Classify(batchID uint32, batch nmtype.PacketBatch) bool {
	if p.started && batchID <= p.lastBatch {
		panic("worker: batch_id must be strictly increasing")
	}

	if !p.queue.push(Job{Batch: batch, BatchID: batchID}) {
		p.stats.recordBackpressure()
		return false
	}

	p.lastBatch = batchID
	p.started = true
	return true
}

// Stats returns this worker's performance counters.
func (p *Parallel) Stats() *Stats {
	return &p.stats
}

func (p *Parallel) run() {
	defer close(p.doneCh)
	if err := pinToCore(p.core); err != nil {
		nmlog.Warning(nmlog.Initialization, "worker: failed to pin to core", p.core, ":", err)
	}

	for {
		job, ok := p.queue.pop()
		if !ok {
			select {
			case <-p.stopCh:
				return
			default:
				continue
			}
		}
		p.process(job)
	}
}

func (p *Parallel) process(job Job) {
	workStart := time.Now()
	result := p.pipeline.Classify(job.Batch)
	workEnd := time.Now()

	for _, l := range p.listeners {
		l.OnBatch(result, p.index, job.BatchID)
	}
	publishEnd := time.Now()

	p.stats.recordJob(workEnd.Sub(workStart), publishEnd.Sub(workEnd))
}
