// Package lifecycle implements the Lifecycle Observer Bus: a dedicated
// goroutine that publishes simulation-level events (epoch boundaries,
// halt, deadlock, model errors) to a set of registered observers, with a
// bounded buffer and drop-oldest overflow so a slow or absent observer
// never applies backpressure to the simulation loop itself.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/us-irs/asynchronix/vtime"
)

// Static errors for the lifecycle package.
var (
	ErrDispatcherNotRunning     = errors.New("lifecycle: dispatcher is not running")
	ErrDispatcherAlreadyRunning = errors.New("lifecycle: dispatcher is already running")
	ErrObserverIDEmpty          = errors.New("lifecycle: observer id must not be empty")
)

// EventKind identifies what happened in the simulation loop.
type EventKind string

const (
	EventEpochStarted     EventKind = "epoch.started"
	EventEpochCompleted   EventKind = "epoch.completed"
	EventHalted           EventKind = "halted"
	EventDeadlockDetected EventKind = "deadlock.detected"
	EventModelError       EventKind = "model.error"
	EventModelPanic       EventKind = "model.panic"
)

// Event is a single lifecycle notification: what happened, when in virtual
// time it happened, and an optional kind-specific detail (a model name for
// EventModelError, a slice of stuck model names for EventDeadlockDetected).
type Event struct {
	Kind   EventKind
	Time   vtime.MonotonicTime
	Detail any
}

// Observer receives lifecycle events. OnEvent should return promptly;
// an observer that blocks delays every other observer's delivery of the
// same event, since dispatch is sequential within the dispatcher's single
// goroutine (this matches the teacher's single-event-channel dispatch
// loop, traded here for simplicity over per-observer concurrency).
type Observer interface {
	ID() string
	OnEvent(ctx context.Context, event Event) error
}

// ObserverFunc adapts a plain function to the Observer interface for
// callers that don't need a full type (test assertions, simple loggers).
type ObserverFunc struct {
	Name string
	Func func(ctx context.Context, event Event) error
}

// ID returns the observer's configured name.
func (f ObserverFunc) ID() string { return f.Name }

// OnEvent invokes the wrapped function.
func (f ObserverFunc) OnEvent(ctx context.Context, event Event) error { return f.Func(ctx, event) }

// Dispatcher publishes Events to registered Observers from a single
// background goroutine, so observer registration and event delivery never
// race with each other.
type Dispatcher struct {
	mu        sync.RWMutex
	observers map[string]Observer
	running   bool

	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	dropped int64
}

// NewDispatcher constructs a Dispatcher with the given bounded buffer
// size. A full buffer causes the oldest queued event to be dropped to make
// room for the newest one, never the reverse — a model error or halt
// notification is more valuable to an observer than a stale epoch-started
// event it can no longer act on.
func NewDispatcher(bufferSize int) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{
		observers: make(map[string]Observer),
		events:    make(chan Event, bufferSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the dispatch goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrDispatcherAlreadyRunning
	}
	d.running = true
	go d.run(ctx)
	return nil
}

// Stop signals the dispatch goroutine to exit and waits for it to drain.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrDispatcherNotRunning
	}
	d.running = false
	close(d.stop)
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the dispatch goroutine is active.
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// RegisterObserver adds observer to the set notified on every Publish.
func (d *Dispatcher) RegisterObserver(observer Observer) error {
	if observer.ID() == "" {
		return ErrObserverIDEmpty
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers[observer.ID()] = observer
	return nil
}

// UnregisterObserver removes an observer; idempotent.
func (d *Dispatcher) UnregisterObserver(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.observers, id)
}

// Publish enqueues event for delivery. If the dispatcher is not running,
// Publish is a silent no-op — the simulation loop should not itself fail
// because nobody is listening for its lifecycle notifications.
func (d *Dispatcher) Publish(event Event) {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if !running {
		return
	}

	select {
	case d.events <- event:
	default:
		// Buffer full: drop the oldest queued event to make room.
		select {
		case <-d.events:
			d.mu.Lock()
			d.dropped++
			d.mu.Unlock()
		default:
		}
		select {
		case d.events <- event:
		default:
		}
	}
}

// Dropped reports how many events have been dropped due to buffer
// overflow since construction.
func (d *Dispatcher) Dropped() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dropped
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			d.drainRemaining(ctx)
			return
		case event := <-d.events:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) drainRemaining(ctx context.Context) {
	for {
		select {
		case event := <-d.events:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	d.mu.RLock()
	observers := make([]Observer, 0, len(d.observers))
	for _, o := range d.observers {
		observers = append(observers, o)
	}
	d.mu.RUnlock()

	deliverCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, o := range observers {
		_ = o.OnEvent(deliverCtx, event)
	}
}
