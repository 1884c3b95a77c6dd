// Package mailbox implements the bounded, single-receiver MPSC queue each
// model owns: sends from any number of Address[T] senders are delivered to
// the owning Mailbox[T] in the exact order a global per-mailbox sequence
// counter assigns them, with capacity-based cooperative backpressure.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send/TrySend once the mailbox has been closed.
var ErrClosed = errors.New("mailbox: closed")

// Envelope pairs a delivered value with the sequence number stamped on it
// at enqueue time, letting a receiver (or an external observer verifying
// causal ordering) see the exact send order across concurrent senders.
type Envelope[T any] struct {
	Seq   uint64
	Value T
}

// Mailbox is the single-receiver end of a bounded MPSC queue owned by one
// model, per spec.md's invariant that every live model has exactly one
// live mailbox.
type Mailbox[T any] struct {
	ch     chan Envelope[T]
	done   chan struct{}
	closed atomic.Bool
	seq    atomic.Uint64
	once   sync.Once
}

// New creates a Mailbox with the given buffering capacity. A capacity of 0
// yields a rendezvous (unbuffered) mailbox.
func New[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{
		ch:   make(chan Envelope[T], capacity),
		done: make(chan struct{}),
	}
}

// Address returns a clonable sender bound to this mailbox. Any number of
// Address[T] values may be held and used concurrently.
func (m *Mailbox[T]) Address() Address[T] {
	return Address[T]{mb: m}
}

// Close closes the mailbox: pending buffered messages remain available to
// Recv, but Send/TrySend begin failing with ErrClosed. Idempotent.
func (m *Mailbox[T]) Close() {
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.done)
	})
}

// IsClosed reports whether Close has been called.
func (m *Mailbox[T]) IsClosed() bool {
	return m.closed.Load()
}

// Recv blocks until a message is available, the mailbox is closed and
// drained, or ctx is cancelled. ok is false once the mailbox is closed and
// no buffered messages remain, or when ctx is cancelled first.
func (m *Mailbox[T]) Recv(ctx context.Context) (env Envelope[T], ok bool) {
	select {
	case env, ok = <-m.ch:
		return env, ok
	case <-m.done:
		select {
		case env, ok = <-m.ch:
			return env, ok
		default:
			return Envelope[T]{}, false
		}
	case <-ctx.Done():
		return Envelope[T]{}, false
	}
}

// Drain synchronously collects every message currently buffered, without
// blocking. Intended for use after Close, mirroring the actor-mailbox
// Drain contract of running only from a single goroutine post-close.
func (m *Mailbox[T]) Drain() []Envelope[T] {
	var out []Envelope[T]
	for {
		select {
		case env, ok := <-m.ch:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

// Address is a clonable sender bound to a Mailbox[T]. Send and TrySend may
// be called concurrently from any number of goroutines holding a copy.
type Address[T any] struct {
	mb *Mailbox[T]
}

// Send enqueues v, blocking cooperatively (this goroutine parks, it does
// not spin) while the mailbox is at capacity. It returns ErrClosed if the
// mailbox has been closed, or ctx.Err() if ctx is cancelled first.
func (a Address[T]) Send(ctx context.Context, v T) error {
	if a.mb.closed.Load() {
		return ErrClosed
	}
	env := Envelope[T]{Seq: a.mb.seq.Add(1), Value: v}
	select {
	case a.mb.ch <- env:
		return nil
	case <-a.mb.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues v without blocking, returning false if the mailbox is
// full or closed.
func (a Address[T]) TrySend(v T) (bool, error) {
	if a.mb.closed.Load() {
		return false, ErrClosed
	}
	env := Envelope[T]{Seq: a.mb.seq.Add(1), Value: v}
	select {
	case a.mb.ch <- env:
		return true, nil
	default:
		return false, nil
	}
}

// IsClosed reports whether the bound mailbox has been closed.
func (a Address[T]) IsClosed() bool {
	return a.mb.closed.Load()
}
