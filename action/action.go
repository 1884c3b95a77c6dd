// Package action defines the scheduler's unit of deferred work: an erased,
// single-shot closure and the shareable cancel flag ("Key") that names it.
package action

import (
	"context"
	"sync/atomic"
)

// Func is an erased, single-shot unit of deferred work. It runs on an
// executor worker and returns an error if the model handler it wraps
// failed; the simulation loop records a non-nil error as a model error,
// which latches the Simulation.
type Func func(ctx context.Context) error

// Key is a shareable handle over a single atomic cancel flag, per spec.md's
// design notes ("an ActionKey is a shared atomic flag, never an index into
// the heap"). Cancellation is O(1) and non-blocking; the scheduler checks
// the flag immediately before running the action it names, not at
// enqueue time, so an in-flight action already dispatched to a worker runs
// to completion regardless of a concurrent Cancel.
type Key struct {
	cancelled *atomic.Bool
}

// NewKey allocates a fresh, live Key.
func NewKey() Key {
	return Key{cancelled: new(atomic.Bool)}
}

// Cancel sets the cancel flag. Safe to call more than once or concurrently.
func (k Key) Cancel() {
	if k.cancelled != nil {
		k.cancelled.Store(true)
	}
}

// IsCancelled reports whether Cancel has been called.
func (k Key) IsCancelled() bool {
	return k.cancelled != nil && k.cancelled.Load()
}

// Valid reports whether k names a live flag, as opposed to the zero Key.
func (k Key) Valid() bool {
	return k.cancelled != nil
}

// Identity returns the pointer backing k's cancel flag, suitable as a map
// key for code that needs to associate external bookkeeping with a Key's
// identity (copies of the same Key share the same flag and thus the same
// Identity). Returns nil for the zero Key.
func (k Key) Identity() *atomic.Bool {
	return k.cancelled
}

// Entry is the scheduler's record of a deferred action: the closure to
// run, its optional cancel key (the zero Key for anonymous actions), and, for
// periodic actions, the factory and period used to re-arm after firing.
type Entry struct {
	Run     Func
	Key     Key
	Factory func() Func // non-nil for periodic entries; produces the next Func
}
