package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/us-irs/asynchronix/clock"
	"github.com/us-irs/asynchronix/executor"
	"github.com/us-irs/asynchronix/health"
	"github.com/us-irs/asynchronix/lifecycle"
	"github.com/us-irs/asynchronix/mailbox"
	"github.com/us-irs/asynchronix/model"
	"github.com/us-irs/asynchronix/port"
	"github.com/us-irs/asynchronix/scheduler"
	"github.com/us-irs/asynchronix/vtime"
)

// Simulation drives epoch dispatch over a frozen Bench: Step advances
// virtual time to the next scheduled deadline and runs every action due at
// that deadline (plus everything those actions transitively cause) to
// quiescence; ProcessEvent/ProcessQuery inject work without advancing time.
// Once any Step*/Process* call returns an execution error (ErrHalted,
// ErrDeadlock, or a wrapped model handler error), every later call returns
// that same error without attempting further work.
type Simulation struct {
	sched *scheduler.Scheduler
	exec  *executor.Executor
	bench *Bench
	clock clock.Clock

	dispatcher    *lifecycle.Dispatcher
	health        *health.Aggregator
	deadlockLatch *health.DeadlockLatch
	metrics       *metricsCollector

	mu         sync.Mutex
	terminated error
}

// Time returns the simulation's current virtual time.
func (s *Simulation) Time() vtime.MonotonicTime {
	return s.sched.Now()
}

// Scheduler returns the underlying Scheduler, for callers that need to
// schedule or cancel actions directly (model.Context wraps the common
// case of a model self-scheduling).
func (s *Simulation) Scheduler() *scheduler.Scheduler {
	return s.sched
}

// Health runs every registered health check and returns the aggregated
// status: a poll-based alternative to Observe for hosts that would rather
// ask than subscribe.
func (s *Simulation) Health(ctx context.Context) health.AggregatedStatus {
	return s.health.CheckAll(ctx)
}

// Observe registers observer on the Lifecycle Observer Bus; it begins
// receiving Events from the next Step/ProcessEvent/ProcessQuery call on.
func (s *Simulation) Observe(observer lifecycle.Observer) error {
	return s.dispatcher.RegisterObserver(observer)
}

// Halt sets the scheduler's halt flag. The in-flight epoch, if any,
// completes; the next Step call returns ErrHalted instead of advancing.
func (s *Simulation) Halt() {
	s.sched.Halt()
}

// Close stops the Lifecycle Dispatcher and the Executor's worker pool.
// No further Step*/Process* call is valid after Close.
func (s *Simulation) Close(ctx context.Context) error {
	err := s.dispatcher.Stop(ctx)
	s.exec.Close()
	return err
}

func (s *Simulation) checkTerminal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// latch records err as the terminal error if none is set yet, and returns
// whichever error is now latched (the new one, or an earlier one that
// already won).
func (s *Simulation) latch(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated == nil {
		s.terminated = err
	}
	return s.terminated
}

func (s *Simulation) recordModelError(name string, err error) {
	s.dispatcher.Publish(lifecycle.Event{
		Kind:   lifecycle.EventModelError,
		Time:   s.sched.Now(),
		Detail: name,
	})
	s.latch(fmt.Errorf("sim: model %q: %w", name, err))
}

// recordModelPanic is the PanicHandler wired into the Simulation's
// Executor: a recovered model-handler panic latches the Simulation the
// same way a returned handler error does, instead of crashing the process.
func (s *Simulation) recordModelPanic(name string, value any) {
	s.dispatcher.Publish(lifecycle.Event{
		Kind:   lifecycle.EventModelPanic,
		Time:   s.sched.Now(),
		Detail: name,
	})
	s.latch(&ModelPanicError{Model: name, Payload: value})
}

func (s *Simulation) pumpAll() {
	s.bench.pumpAll(s.exec, s.recordModelError)
}

// handleQuiescenceErr classifies the error RunUntilQuiescent returned: a
// deadlock latches the simulation and publishes EventDeadlockDetected; a
// context error propagates as-is without latching, since the caller's own
// ctx expiring is not an execution failure of the simulation itself.
func (s *Simulation) handleQuiescenceErr(err error) error {
	var de *executor.DeadlockError
	if errors.As(err, &de) {
		s.deadlockLatch.Trip()
		s.dispatcher.Publish(lifecycle.Event{
			Kind:   lifecycle.EventDeadlockDetected,
			Time:   s.sched.Now(),
			Detail: de.Models,
		})
		return s.latch(&DeadlockError{Models: de.Models})
	}
	return err
}

// Step advances to the deadline of the next queued action, dispatches
// every action due at that deadline (and everything those actions
// transitively cause, across any number of models), and waits for
// quiescence. It fails with ErrNoEventScheduled if the queue is empty.
func (s *Simulation) Step(ctx context.Context) error {
	if err := s.checkTerminal(); err != nil {
		return err
	}
	if s.sched.IsHalted() {
		return s.latch(ErrHalted)
	}

	deadline, ok := s.sched.PeekDeadline()
	if !ok {
		return ErrNoEventScheduled
	}

	if err := s.sched.AdvanceTo(deadline); err != nil {
		return err
	}
	s.clock.Sync(deadline)
	s.dispatcher.Publish(lifecycle.Event{Kind: lifecycle.EventEpochStarted, Time: deadline})

	// Pop every entry at this epoch's deadline, in FIFO of insertion_seq
	// (the heap's pop order already guarantees this), submitting each as
	// a one-shot executor task. Messages these actions (or the handlers
	// they trigger) send into any mailbox are picked up by pumpAll calls
	// nested inside the submitted tasks themselves, so the single
	// RunUntilQuiescent call below observes the whole causal chain, never
	// just the first wave — this is the epoch dispatch protocol's
	// load-bearing invariant and must not be split into multiple
	// quiescence rounds.
	for {
		next, ok := s.sched.PeekDeadline()
		if !ok || next.Compare(deadline) != 0 {
			break
		}
		_, fn, key, popped := s.sched.PopNext()
		if !popped {
			break
		}
		// Re-arms a calendar-keyed action at its next cron match; a no-op
		// for any other key. An expression with no further match ends its
		// chain.
		_ = s.sched.ReArmCalendar(key, deadline)
		fn := fn
		s.exec.SubmitNamed("<scheduler>", func(taskCtx context.Context) {
			if err := fn(taskCtx); err != nil {
				s.recordModelError("<scheduler>", err)
			}
			s.pumpAll()
		})
	}

	if err := s.exec.RunUntilQuiescent(ctx); err != nil {
		return s.handleQuiescenceErr(err)
	}
	s.dispatcher.Publish(lifecycle.Event{Kind: lifecycle.EventEpochCompleted, Time: deadline})

	if s.sched.IsHalted() {
		s.dispatcher.Publish(lifecycle.Event{Kind: lifecycle.EventHalted, Time: s.sched.Now()})
		return s.latch(ErrHalted)
	}
	return s.checkTerminal()
}

// StepUntil repeatedly steps while the next deadline does not exceed
// target, then moves the clock forward to target. An empty queue before
// target is reached is not an error: StepUntil simply has nothing left to
// step through before setting the time to target.
func (s *Simulation) StepUntil(ctx context.Context, target vtime.MonotonicTime) error {
	for {
		if err := s.checkTerminal(); err != nil {
			return err
		}
		deadline, ok := s.sched.PeekDeadline()
		if !ok || deadline.Compare(target) > 0 {
			if target.After(s.sched.Now()) {
				return s.sched.AdvanceTo(target)
			}
			return nil
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
}

// StepUnbounded steps until the scheduler queue is exhausted, returning
// nil rather than ErrNoEventScheduled in that case — the natural
// termination condition for a bench with no external driver keeping it
// alive, as opposed to StepForever which treats an empty queue as an
// error since it implies the caller should have registered an external
// source first.
func (s *Simulation) StepUnbounded(ctx context.Context) error {
	for {
		err := s.Step(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNoEventScheduled):
			return nil
		default:
			return err
		}
	}
}

// StepForever steps until ctx is cancelled or Step returns an error. Unlike
// StepUnbounded, it does not treat an empty queue as normal termination:
// when the queue empties it returns ErrNoEventScheduled, and a host that
// keeps the bench fed from outside (ProcessEvent from an RPC handler, a
// periodic action) decides from that error and from Health whether to call
// it again. It does not wait for external sources to enqueue more work.
func (s *Simulation) StepForever(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
}

// ProcessEvent sends dispatch to addr immediately, without advancing
// virtual time, then waits for quiescence before returning. This is the
// "inject a message immediately" operation spec.md §4.4 describes, and is
// how an external driver (an RPC handler, a sink.ExternalSource reader)
// feeds live input into a running Simulation.
func ProcessEvent[M any](ctx context.Context, s *Simulation, addr mailbox.Address[model.Dispatch[M]], dispatch model.Dispatch[M]) error {
	if err := s.checkTerminal(); err != nil {
		return err
	}

	s.exec.SubmitNamed("<process_event>", func(taskCtx context.Context) {
		if err := addr.Send(taskCtx, dispatch); err != nil {
			s.recordModelError("<process_event>", err)
		}
		s.pumpAll()
	})

	if err := s.exec.RunUntilQuiescent(ctx); err != nil {
		return s.handleQuiescenceErr(err)
	}
	return s.checkTerminal()
}

// ProcessQuery builds a port.Request carrying a one-shot reply channel,
// wraps it into a Dispatch via toDispatch (ordinarily a closure over
// model.WrapInputWithArg writing the request's Reply channel), sends it to
// addr, waits for quiescence, and returns the reply the target replier
// wrote during that round. It returns ErrNoReply if no reply arrived.
func ProcessQuery[M, Req, Rep any](ctx context.Context, s *Simulation, addr mailbox.Address[model.Dispatch[M]], toDispatch func(port.Request[Req, Rep]) model.Dispatch[M], req Req) (Rep, error) {
	var zero Rep
	if err := s.checkTerminal(); err != nil {
		return zero, err
	}

	reply := make(chan Rep, 1)
	dispatch := toDispatch(port.Request[Req, Rep]{Payload: req, Reply: reply})

	s.exec.SubmitNamed("<process_query>", func(taskCtx context.Context) {
		if err := addr.Send(taskCtx, dispatch); err != nil {
			s.recordModelError("<process_query>", err)
		}
		s.pumpAll()
	})

	if err := s.exec.RunUntilQuiescent(ctx); err != nil {
		return zero, s.handleQuiescenceErr(err)
	}
	if err := s.checkTerminal(); err != nil {
		return zero, err
	}

	select {
	case rep := <-reply:
		return rep, nil
	default:
		return zero, ErrNoReply
	}
}
