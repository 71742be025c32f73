package nuevomatch

import (
	"sync"

	"github.com/theojepsen/nuevomatch/nmtype"
)

// resultCollector is the internal worker.Listener the container
// registers on every worker so that classify(header), a single-packet
// convenience wrapper over the batch/worker model, can wait for every
// worker owning a disjoint slice of the classifier's subsets to report
// its half of the answer and merge them into one ActionOutput — the
// listener bus is keyed by (worker_index, batch_id) precisely so a
// caller like this one can reassemble a global answer when needed.
type resultCollector struct {
	mu      sync.Mutex
	pending map[uint32]*pendingBatch
}

type pendingBatch struct {
	remaining int
	best      nmtype.ActionOutput
	done      chan struct{}
}

func newResultCollector() *resultCollector {
	return &resultCollector{pending: make(map[uint32]*pendingBatch)}
}

// await registers batchID as awaiting reports from workerCount
// workers, and returns the pending entry's done channel plus a getter
// for the merged result once that channel closes.
func (rc *resultCollector) await(batchID uint32, workerCount int) *pendingBatch {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p := &pendingBatch{remaining: workerCount, best: nmtype.NoMatch, done: make(chan struct{})}
	rc.pending[batchID] = p
	return p
}

// OnBatch implements worker.Listener.
func (rc *resultCollector) OnBatch(batch nmtype.ActionBatch, workerIndex int, batchID uint32) {
	rc.mu.Lock()
	p, ok := rc.pending[batchID]
	if !ok {
		rc.mu.Unlock()
		return
	}
	if batch[0].Better(p.best) {
		p.best = batch[0]
	}
	p.remaining--
	done := p.remaining == 0
	if done {
		delete(rc.pending, batchID)
	}
	rc.mu.Unlock()
	if done {
		close(p.done)
	}
}
