package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/theojepsen/nuevomatch/nmtype"
)

type syncListener struct {
	mu    sync.Mutex
	done  chan struct{}
	seen  []uint32
	count int
	want  int
}

func newSyncListener(want int) *syncListener {
	return &syncListener{done: make(chan struct{}), want: want}
}

func (l *syncListener) OnBatch(batch nmtype.ActionBatch, workerIndex int, batchID uint32) {
	l.mu.Lock()
	l.seen = append(l.seen, batchID)
	l.count++
	done := l.count == l.want
	l.mu.Unlock()
	if done {
		close(l.done)
	}
}

func TestParallelClassifyProcessesInOrder(t *testing.T) {
	p, err := NewParallel(0, noopPipeline(t), 4, 0)
	if err != nil {
		t.Fatalf("NewParallel: %v", err)
	}
	l := newSyncListener(3)
	p.AddListener(l)
	p.Start()
	defer p.Stop()

	batch := nmtype.PacketBatch{}
	for id := uint32(1); id <= 3; id++ {
		if !p.Classify(id, batch) {
			t.Fatalf("Classify(%d): unexpected backpressure", id)
		}
	}

	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all batches to be published")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, id := range l.seen {
		if id != uint32(i+1) {
			t.Fatalf("seen = %v, want strictly increasing batch ids starting at 1", l.seen)
		}
	}
}

func TestParallelClassifyBackpressureOnFullQueue(t *testing.T) {
	// A queue depth of 1 with no consumer running should reject the
	// second enqueue: Classify must never block.
	p, err := NewParallel(0, noopPipeline(t), 1, 0)
	if err != nil {
		t.Fatalf("NewParallel: %v", err)
	}
	batch := nmtype.PacketBatch{}
	if !p.Classify(1, batch) {
		t.Fatal("Classify(1): expected success on empty queue")
	}
	if p.Classify(2, batch) {
		t.Fatal("Classify(2): expected backpressure signal on full queue")
	}
	snap := p.Stats().Snapshot()
	_ = snap // backpressure counter isn't part of Snapshot's derived rates without a measurement window
}

func TestParallelClassifyRetryAfterBackpressureDoesNotPanic(t *testing.T) {
	// A rejected Classify must leave lastBatch untouched, so the
	// caller's sanctioned response of resubmitting the same batch id
	// (nuevomatch.ClassifierContainer does exactly this) does not trip
	// the strictly-increasing check on the retry.
	p, err := NewParallel(0, noopPipeline(t), 1, 0)
	if err != nil {
		t.Fatalf("NewParallel: %v", err)
	}
	batch := nmtype.PacketBatch{}
	if !p.Classify(1, batch) {
		t.Fatal("Classify(1): expected success on empty queue")
	}
	if p.Classify(2, batch) {
		t.Fatal("Classify(2): expected backpressure signal on full queue")
	}

	// Drain the queue as the consumer would, then retry the identical
	// batch id exactly as ClassifierContainer.Classify does.
	if _, ok := p.queue.pop(); !ok {
		t.Fatal("expected one job queued from Classify(1)")
	}
	if !p.Classify(2, batch) {
		t.Fatal("Classify(2) retry: expected success once the queue has room")
	}
}

func TestParallelClassifyPanicsOnNonIncreasingBatchID(t *testing.T) {
	p, err := NewParallel(0, noopPipeline(t), 4, 0)
	if err != nil {
		t.Fatalf("NewParallel: %v", err)
	}
	batch := nmtype.PacketBatch{}
	p.Classify(5, batch)

	defer func() {
		if recover() == nil {
			t.Fatal("Classify: expected panic on non-increasing batch id")
		}
	}()
	p.Classify(5, batch)
}

func TestNewParallelRejectsNonPowerOfTwoQueueDepth(t *testing.T) {
	if _, err := NewParallel(0, noopPipeline(t), 3, 0); err == nil {
		t.Fatal("NewParallel: expected error for non-power-of-two queue depth")
	}
}
