// Package sink implements the observer side of the bench: EventSink
// variants that a bench wires an Output port into so external code (test
// assertions, exporters) can observe what a model produced without itself
// being a model. Writing to a Slot or a Buffer never blocks the model;
// BlockingQueue.Push blocks while that queue is full.
package sink

import (
	"sync"
)

// EventSink is something an Output port can be connected to in place of a
// model's input mailbox: it has no Init, no Context, and is read from
// outside the simulation rather than dispatched to by it.
type EventSink[T any] interface {
	Push(value T)
}

// Slot holds only the most recently pushed value, discarding anything
// pushed before it is read. Suited to observing a model's "current state"
// rather than its full event history.
type Slot[T any] struct {
	mu       sync.Mutex
	value    T
	occupied bool
}

// NewSlot constructs an empty Slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Push overwrites any previously held value.
func (s *Slot[T]) Push(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.occupied = true
}

// Take returns the held value and clears the slot, or ok=false if the slot
// is empty.
func (s *Slot[T]) Take() (value T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.occupied {
		return value, false
	}
	value, s.occupied = s.value, false
	var zero T
	s.value = zero
	return value, true
}

// Peek returns the held value without clearing the slot.
func (s *Slot[T]) Peek() (value T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.occupied
}

// Buffer accumulates every pushed value in arrival order until drained.
// Unbounded: a test or exporter that never drains it will grow it
// indefinitely, which is the correct tradeoff for an observation sink that
// must never apply backpressure to the simulation.
type Buffer[T any] struct {
	mu     sync.Mutex
	values []T
}

// NewBuffer constructs an empty Buffer.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// Push appends value.
func (b *Buffer[T]) Push(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = append(b.values, value)
}

// Drain returns everything pushed since the last Drain (or construction)
// and clears the buffer.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.values
	b.values = nil
	return out
}

// Len reports how many values are currently buffered.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

// BlockingQueue is a bounded, order-preserving sink whose reader side
// blocks until a value is available or the queue is closed. Its capacity is
// fixed by NewBlockingQueue; once that many values are waiting unread, Push
// blocks until a reader takes one or the queue is closed. Modeled on
// the open/close state of a BlockingEventQueue: pushes after Close are
// silently dropped rather than erroring, since the model doing the
// pushing has no reasonable way to react to a closed observer.
//
// ch is never closed: closing a channel that a sender may still be parked
// on (via the select in Push) panics that sender, and Close has no way to
// know a Push isn't parked at the moment it runs. Close only ever closes
// the separate closed channel; Push and Next both select on it instead.
type BlockingQueue[T any] struct {
	ch     chan T
	closed chan struct{}
	once   sync.Once
}

// NewBlockingQueue constructs an open BlockingQueue with the given
// buffering capacity (0 for fully synchronous handoff).
func NewBlockingQueue[T any](capacity int) *BlockingQueue[T] {
	return &BlockingQueue[T]{
		ch:     make(chan T, capacity),
		closed: make(chan struct{}),
	}
}

// Push enqueues value if the queue is open; it is a silent no-op otherwise.
// The fast-path check avoids ever entering the blocking select once closed;
// a push that loses the race with a concurrent Close either lands in ch (if
// a Next is there to receive it, harmless) or aborts via the closed case,
// but never panics, since Close never closes ch.
func (q *BlockingQueue[T]) Push(value T) {
	select {
	case <-q.closed:
		return
	default:
	}
	select {
	case q.ch <- value:
	case <-q.closed:
	}
}

// Next blocks until a value is available or the queue has been closed and
// drained, returning ok=false in the latter case. A buffered value always
// wins over an observed close: the inner non-blocking select after <-closed
// catches a value that arrived in the same instant the queue closed, so
// "closed and drained" never drops a value that was already sitting in ch.
func (q *BlockingQueue[T]) Next() (value T, ok bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
	}
	select {
	case v := <-q.ch:
		return v, true
	case <-q.closed:
		select {
		case v := <-q.ch:
			return v, true
		default:
			return value, false
		}
	}
}

// Close marks the queue closed and stops accepting further pushes. Values
// already queued remain readable via Next until drained.
func (q *BlockingQueue[T]) Close() {
	q.once.Do(func() {
		close(q.closed)
	})
}
