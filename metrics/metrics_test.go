package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/theojepsen/nuevomatch/nmtype"
	"github.com/theojepsen/nuevomatch/worker"
)

func TestCollectorOnBatchCountsMatches(t *testing.T) {
	c := New("test")
	match := nmtype.ActionBatch{{Priority: 0, Action: 1}}
	c.OnBatch(match, 0, 1)

	noMatch := nmtype.ActionBatch{nmtype.NoMatch}
	c.OnBatch(noMatch, 0, 2)

	var m dto.Metric
	if err := c.matches.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Fatalf("matches = %v, want 1", got)
	}

	var b dto.Metric
	if err := c.batches.Write(&b); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := b.GetCounter().GetValue(); got != 2 {
		t.Fatalf("batches = %v, want 2", got)
	}
}

func TestCollectorTrackExportsPerWorkerLabel(t *testing.T) {
	c := New("test")
	var s worker.Stats
	c.Track(7, statsSource{&s})

	if len(c.workers) != 1 {
		t.Fatalf("got %d tracked workers, want 1", len(c.workers))
	}
	ls := c.workers[0].(labeledSource)
	if ls.index != 7 {
		t.Fatalf("index = %d, want 7", ls.index)
	}
}

type statsSource struct{ s *worker.Stats }

func (ss statsSource) Stats() *worker.Stats { return ss.s }
