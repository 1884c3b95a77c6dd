// Package sim assembles the scheduler, executor, mailboxes, lifecycle bus,
// and health aggregator into the Simulation Loop: the component that owns
// epoch dispatch (spec.md §4.4's "pop all same-deadline entries, then run
// the executor once to quiescence" protocol) and the embedding-host-facing
// Step/ProcessEvent/ProcessQuery surface.
package sim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/us-irs/asynchronix/executor"
	"github.com/us-irs/asynchronix/health"
	"github.com/us-irs/asynchronix/lifecycle"
	"github.com/us-irs/asynchronix/mailbox"
	"github.com/us-irs/asynchronix/model"
	"github.com/us-irs/asynchronix/scheduler"
	"github.com/us-irs/asynchronix/vtime"
)

// Bench is the assembled set of models, their mailboxes, and their
// connections forming a simulation instance, prior to Init. Models are
// registered with AddModel before Init is called; Init runs their Init
// hooks and returns the running Simulation.
type Bench struct {
	mu       sync.Mutex
	entries  []modelEntry
	seenName map[string]bool
	sched    *scheduler.Scheduler
}

type modelEntry struct {
	name string
	init func(ctx context.Context, sched *scheduler.Scheduler) error
	pump func(exec *executor.Executor, onErr func(name string, err error))
}

// NewBench constructs an empty Bench.
func NewBench() *Bench {
	return &Bench{seenName: make(map[string]bool)}
}

// AddModel registers m, owning mb, under name. It is a package-level
// function rather than a Bench method because Go does not allow a generic
// type parameter on a method — the same reason model.Context and
// model.Dispatch are free-standing generics rather than Bench methods.
func AddModel[M model.Model](bench *Bench, m *M, mb *mailbox.Mailbox[model.Dispatch[M]], name string) error {
	bench.mu.Lock()
	defer bench.mu.Unlock()

	if bench.seenName[name] {
		return ErrDuplicateModelName
	}
	bench.seenName[name] = true

	entry := modelEntry{
		name: name,
		init: func(ctx context.Context, sched *scheduler.Scheduler) error {
			return m.Init(ctx, sched)
		},
	}
	entry.pump = func(exec *executor.Executor, onErr func(string, error)) {
		for _, env := range mb.Drain() {
			env := env
			exec.SubmitNamed(name, func(taskCtx context.Context) {
				ctx := model.NewContext[M](bench.sched, mb.Address())
				if err := env.Value(m, ctx); err != nil {
					onErr(name, err)
				}
				bench.pumpAll(exec, onErr)
			})
		}
	}

	bench.entries = append(bench.entries, entry)
	return nil
}

// pumpAll drains every registered model's mailbox once and submits a task
// per drained message. Called both from the simulation loop's epoch
// dispatch and recursively from inside every dispatched task, so that any
// message a handler sends (to itself or to another model) is picked up
// before the enclosing RunUntilQuiescent call can observe zero runnable
// tasks.
func (b *Bench) pumpAll(exec *executor.Executor, onErr func(name string, err error)) {
	b.mu.Lock()
	entries := make([]modelEntry, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()

	for _, e := range entries {
		e.pump(exec, onErr)
	}
}

// Init constructs the Scheduler, Executor,
// Lifecycle Dispatcher and Health Aggregator, runs every registered
// model's Init, and returns the running Simulation.
func (b *Bench) Init(ctx context.Context, time0 vtime.MonotonicTime, opts ...Option) (*Simulation, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	sched := scheduler.New(time0, cfg.schedulerOpts...)

	b.mu.Lock()
	b.sched = sched
	entries := make([]modelEntry, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()

	s := &Simulation{}
	exec := executor.New(cfg.workerCount, executor.WithPanicHandler(s.recordModelPanic))
	dispatcher := lifecycle.NewDispatcher(cfg.observerBufferSize)
	if err := dispatcher.Start(ctx); err != nil {
		exec.Close()
		return nil, err
	}
	if err := dispatcher.RegisterObserver(lifecycle.NewLogObserver("structured-log", cfg.logger)); err != nil {
		exec.Close()
		_ = dispatcher.Stop(ctx)
		return nil, err
	}

	latch := &health.DeadlockLatch{}
	aggregator := health.NewAggregator()
	aggregator.RegisterCheck(health.NewHaltChecker("halt", sched))
	aggregator.RegisterCheck(health.NewDeadlockLatchChecker("deadlock-latch", latch))
	aggregator.RegisterCheck(health.NewQuiescenceChecker("quiescence", exec))

	metrics := newMetricsCollector()
	if err := dispatcher.RegisterObserver(metrics); err != nil {
		exec.Close()
		_ = dispatcher.Stop(ctx)
		return nil, err
	}

	s.sched = sched
	s.exec = exec
	s.bench = b
	s.clock = cfg.clock
	s.dispatcher = dispatcher
	s.health = aggregator
	s.deadlockLatch = latch
	s.metrics = metrics

	// Run every model's Init even after one fails, so a bench with several
	// misconfigured models reports all of them in one error instead of
	// making the caller fix-and-rerun one at a time.
	var initErr error
	for _, e := range entries {
		if err := e.init(ctx, sched); err != nil {
			initErr = multierr.Append(initErr, fmt.Errorf("sim: model %q Init: %w", e.name, err))
		}
	}
	if initErr != nil {
		exec.Close()
		_ = dispatcher.Stop(ctx)
		return nil, initErr
	}

	return s, nil
}
