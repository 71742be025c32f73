package worker

import "github.com/theojepsen/nuevomatch/nmtype"

// Listener receives completed result batches. Implementations are
// invoked synchronously on the worker's own processing unit, in
// registration order; a Listener must not block or it stalls that
// worker's pipeline.
type Listener interface {
	OnBatch(batch nmtype.ActionBatch, workerIndex int, batchID uint32)
}

// ListenerFunc adapts a plain function to the Listener interface, the
// same "non-owning handle" shape the specification's design notes call
// for: workers never extend a listener's lifetime.
type ListenerFunc func(batch nmtype.ActionBatch, workerIndex int, batchID uint32)

// OnBatch implements Listener.
func (f ListenerFunc) OnBatch(batch nmtype.ActionBatch, workerIndex int, batchID uint32) {
	f(batch, workerIndex, batchID)
}
