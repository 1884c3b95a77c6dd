// Package executor implements the simulation's task runner: a fixed pool
// of worker goroutines, each owning a local task deque, backed by a global
// injection queue for externally submitted work and work-stealing between
// workers. RunUntilQuiescent blocks until every submitted task has run to
// completion or parked, with no worker able to make further progress.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDeadlock is the sentinel every deadlock detection wraps; callers that
// only care whether a deadlock occurred, not which models were involved,
// can keep using errors.Is(err, ErrDeadlock) against the *DeadlockError
// RunUntilQuiescent actually returns.
var ErrDeadlock = errors.New("executor: deadlock detected, all tasks parked with no runnable work")

// DeadlockError is returned by RunUntilQuiescent when every outstanding
// task is parked (suspended on a blocking mailbox or reply operation) and
// none can be woken, naming every model whose task was still in flight at
// the moment detection fired.
type DeadlockError struct {
	Models []string
}

func (e *DeadlockError) Error() string {
	if len(e.Models) == 0 {
		return "executor: deadlock detected, all tasks parked with no runnable work"
	}
	return fmt.Sprintf("executor: deadlock detected, blocked models: %s", strings.Join(e.Models, ", "))
}

// Unwrap lets errors.Is(err, ErrDeadlock) keep working for callers that
// don't need the blocked-model detail.
func (e *DeadlockError) Unwrap() error { return ErrDeadlock }

// Task is a unit of executable work: a model message handler or action
// future, run to completion or to an explicit suspension point.
type Task func(ctx context.Context)

// PanicHandler is invoked, after the executor has already recovered the
// goroutine, when a submitted task panics. model is the owning model's
// name as passed to SubmitNamed (empty string for anonymous tasks
// submitted via Submit); value is whatever the panic carried.
type PanicHandler func(model string, value any)

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithPanicHandler attaches a callback invoked after a panicking task has
// been recovered. The default is nil: a panicking task is still recovered
// (the worker survives and keeps dispatching other tasks) but nothing is
// reported beyond the recovered worker continuing to run.
func WithPanicHandler(handler PanicHandler) Option {
	return func(e *Executor) { e.panicHandler = handler }
}

// namedTask pairs a Task with the model name it was submitted for, so a
// worker can report which model a panic or an in-flight park belongs to
// without the blocking operation itself (a mailbox send, a reply wait)
// needing any awareness of the executor.
type namedTask struct {
	model string
	fn    Task
}

// Executor is a fixed-size work-stealing pool.
type Executor struct {
	workers      []*worker
	inject       chan namedTask
	runnable     atomic.Int64 // tasks submitted but not yet finished
	parked       atomic.Int64 // tasks currently suspended awaiting a waker
	parkedMu     sync.Mutex
	parkedBy     map[string]int
	panicHandler PanicHandler
	wg           sync.WaitGroup
	closeOnce    sync.Once
	stop         chan struct{}
}

type worker struct {
	mu    sync.Mutex
	deque []namedTask
}

func (w *worker) pushLocal(t namedTask) {
	w.mu.Lock()
	w.deque = append(w.deque, t)
	w.mu.Unlock()
}

func (w *worker) popLocal() (namedTask, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.deque)
	if n == 0 {
		return namedTask{}, false
	}
	t := w.deque[n-1]
	w.deque = w.deque[:n-1]
	return t, true
}

// steal removes a task from the head (opposite end from pushLocal/popLocal)
// of w's deque, for a thief worker to run.
func (w *worker) steal() (namedTask, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.deque) == 0 {
		return namedTask{}, false
	}
	t := w.deque[0]
	w.deque = w.deque[1:]
	return t, true
}

// New creates an Executor with workerCount worker goroutines.
func New(workerCount int, opts ...Option) *Executor {
	if workerCount < 1 {
		workerCount = 1
	}
	e := &Executor{
		workers: make([]*worker, workerCount),
		inject:  make(chan namedTask, workerCount*4),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	for i := range e.workers {
		e.workers[i] = &worker{}
	}
	for i := 0; i < workerCount; i++ {
		e.wg.Add(1)
		go e.runWorker(i)
	}
	return e
}

// Submit enqueues t on the global injection queue, anonymous (reported as
// the empty model name if it ever parks or panics); any idle worker may
// pick it up. Prefer SubmitNamed when the caller can name the model the
// task belongs to.
func (e *Executor) Submit(t Task) {
	e.SubmitNamed("", t)
}

// SubmitNamed enqueues t on the global injection queue under model's name.
// The executor has no way to distinguish a handler that is merely slow
// from one permanently blocked inside a mailbox send — both simply never
// return — so t counts as parked for model for the whole span between
// submission and completion; RunUntilQuiescent's stability window is what
// turns "still in flight" into "genuinely stuck" for deadlock purposes.
func (e *Executor) SubmitNamed(model string, t Task) {
	e.runnable.Add(1)
	e.ParkTask(model)
	e.inject <- namedTask{model: model, fn: t}
}

// ParkTask marks one in-flight task, owned by model, as parked. Call
// Unpark with the same model name once the task resolves.
func (e *Executor) ParkTask(model string) {
	e.parked.Add(1)
	e.parkedMu.Lock()
	if e.parkedBy == nil {
		e.parkedBy = make(map[string]int)
	}
	e.parkedBy[model]++
	e.parkedMu.Unlock()
}

// Unpark marks a previously parked task, owned by model, as resolved.
func (e *Executor) Unpark(model string) {
	e.parked.Add(-1)
	e.parkedMu.Lock()
	if n := e.parkedBy[model]; n <= 1 {
		delete(e.parkedBy, model)
	} else {
		e.parkedBy[model] = n - 1
	}
	e.parkedMu.Unlock()
}

// parkedModels returns the sorted set of model names with at least one
// currently-parked task, for DeadlockError's Models field.
func (e *Executor) parkedModels() []string {
	e.parkedMu.Lock()
	defer e.parkedMu.Unlock()
	models := make([]string, 0, len(e.parkedBy))
	for m := range e.parkedBy {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

func (e *Executor) runWorker(id int) {
	defer e.wg.Done()
	self := e.workers[id]
	ctx := context.Background()

	for {
		nt, ok := self.popLocal()
		if !ok {
			nt, ok = e.tryReceiveInject()
		}
		if !ok {
			nt, ok = e.trySteal(id)
		}
		if !ok {
			select {
			case <-e.stop:
				return
			case nt = <-e.inject:
			}
		}

		e.runTask(ctx, nt)
		e.Unpark(nt.model)
		e.runnable.Add(-1)
	}
}

// runTask invokes nt.fn, recovering a panic so one model's bug cannot take
// down the worker pool. A recovered panic is reported through panicHandler
// if one is configured; otherwise it is silently swallowed, the task
// treated as having completed (the handler's effects up to the panic point
// already happened, same as any other partial failure mid-handler).
func (e *Executor) runTask(ctx context.Context, nt namedTask) {
	defer func() {
		if r := recover(); r != nil {
			if e.panicHandler != nil {
				e.panicHandler(nt.model, r)
			}
		}
	}()
	nt.fn(ctx)
}

func (e *Executor) tryReceiveInject() (namedTask, bool) {
	select {
	case t := <-e.inject:
		return t, true
	default:
		return namedTask{}, false
	}
}

func (e *Executor) trySteal(id int) (namedTask, bool) {
	n := len(e.workers)
	for i := 1; i < n; i++ {
		victim := e.workers[(id+i)%n]
		if t, ok := victim.steal(); ok {
			return t, true
		}
	}
	return namedTask{}, false
}

// deadlockStableRounds is how many consecutive polls must observe
// parked >= runnable, with runnable unchanged, before RunUntilQuiescent
// declares a deadlock. A single such observation is not enough: a task may
// be parked waiting on a wake-up that an external (non-worker) goroutine,
// such as the clock synchronization thread, is about to deliver.
const deadlockStableRounds = 50

// RunUntilQuiescent blocks until the count of runnable tasks reaches zero.
// It polls the atomic runnable/parked counters rather than requiring
// workers to signal explicitly, since a task may fan out further tasks
// after this call begins waiting. If every outstanding task stays parked
// (runnable count at or below the parked count) across
// deadlockStableRounds consecutive polls with no change in the runnable
// count, it returns a *DeadlockError naming the still-parked models.
func (e *Executor) RunUntilQuiescent(ctx context.Context) error {
	stableRounds := 0
	var lastRunnable int64 = -1

	for {
		runnable := e.runnable.Load()
		if runnable == 0 {
			return nil
		}

		parked := e.parked.Load()
		if parked >= runnable && runnable == lastRunnable {
			stableRounds++
			if stableRounds >= deadlockStableRounds {
				return &DeadlockError{Models: e.parkedModels()}
			}
		} else {
			stableRounds = 0
		}
		lastRunnable = runnable

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Microsecond):
		}
	}
}

// Close stops all worker goroutines. No further tasks may be submitted
// after Close returns.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()
}
