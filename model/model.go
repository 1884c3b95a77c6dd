// Package model defines the simulation's unit of stateful behavior: the
// Model interface a user type implements, and the Context handed to every
// message handler so it can read the current virtual time, self-schedule,
// and address its own mailboxes.
package model

import (
	"context"

	"github.com/us-irs/asynchronix/action"
	"github.com/us-irs/asynchronix/mailbox"
	"github.com/us-irs/asynchronix/scheduler"
	"github.com/us-irs/asynchronix/vtime"
)

// Model is the behavior a simulated component implements. Init runs once,
// before the bench's first epoch, giving the model a chance to self-schedule
// its first action; models with no setup work can embed NoInit to satisfy
// the interface trivially.
type Model interface {
	Init(ctx context.Context, sched *scheduler.Scheduler) error
}

// NoInit is embedded by models with no Init-time behavior.
type NoInit struct{}

// Init is a no-op.
func (NoInit) Init(ctx context.Context, sched *scheduler.Scheduler) error { return nil }

// ProtoModel is the build-time counterpart to Model: it assembles a fully
// wired Model (and, for composite models, its sub-models) before the bench
// starts, mirroring the teacher's two-phase "describe, then build"
// convention for modules that need their dependencies resolved before
// Init runs.
type ProtoModel[M Model] interface {
	Build(ctx context.Context) (M, error)
}

// Context is handed to every input-port and replier-port handler. It gives
// the handler read access to the current virtual time and the ability to
// self-schedule further actions against the same Scheduler the bench uses,
// without exposing the Scheduler's queue-mutation internals directly.
type Context[M any] struct {
	sched *scheduler.Scheduler
	self  mailbox.Address[Dispatch[M]]
}

// NewContext constructs a Context bound to sched and to self, the model's
// own dispatch mailbox address (used for self-scheduling: "send myself
// message X at time T").
func NewContext[M any](sched *scheduler.Scheduler, self mailbox.Address[Dispatch[M]]) Context[M] {
	return Context[M]{sched: sched, self: self}
}

// Now returns the scheduler's current virtual time.
func (c Context[M]) Now() vtime.MonotonicTime {
	return c.sched.Now()
}

// Schedule defers dispatch to be delivered to this same model at deadline.
func (c Context[M]) Schedule(deadline vtime.MonotonicTime, dispatch Dispatch[M]) error {
	return c.sched.Schedule(deadline, func(ctx context.Context) error {
		return c.self.Send(ctx, dispatch)
	})
}

// ScheduleIn defers dispatch to run after delay has elapsed from now.
func (c Context[M]) ScheduleIn(delay vtime.Duration, dispatch Dispatch[M]) error {
	deadline, err := c.Now().Add(delay)
	if err != nil {
		return err
	}
	return c.Schedule(deadline, dispatch)
}

// ScheduleKeyed is Schedule with a Key the handler can later Cancel before
// deadline, routed through the same self-address Schedule uses so a
// cancelled self-scheduled action never bypasses the model's own mailbox.
func (c Context[M]) ScheduleKeyed(deadline vtime.MonotonicTime, dispatch Dispatch[M]) (action.Key, error) {
	return c.sched.ScheduleKeyed(deadline, func(ctx context.Context) error {
		return c.self.Send(ctx, dispatch)
	})
}

// SchedulePeriodic defers dispatch to run at deadline and then again every
// period thereafter, indefinitely, each firing delivered to this same model.
func (c Context[M]) SchedulePeriodic(deadline vtime.MonotonicTime, period vtime.Duration, dispatch Dispatch[M]) error {
	return c.sched.SchedulePeriodic(deadline, period, func() action.Func {
		return func(ctx context.Context) error {
			return c.self.Send(ctx, dispatch)
		}
	})
}

// ScheduleKeyedPeriodic combines SchedulePeriodic with a Key; cancelling it
// stops the chain at its next pop instead of re-arming it again.
func (c Context[M]) ScheduleKeyedPeriodic(deadline vtime.MonotonicTime, period vtime.Duration, dispatch Dispatch[M]) (action.Key, error) {
	return c.sched.ScheduleKeyedPeriodic(deadline, period, func() action.Func {
		return func(ctx context.Context) error {
			return c.self.Send(ctx, dispatch)
		}
	})
}

// Address returns the model's own mailbox address, for a handler that needs
// to hand its address to a sub-model or peer rather than only scheduling
// against itself.
func (c Context[M]) Address() mailbox.Address[Dispatch[M]] {
	return c.self
}

// Dispatch is an erased, single-shot handler invocation: a closure over a
// model's concrete input-port or replier-port method and its argument,
// produced by one of the Wrap* constructors below so callers never need to
// hand-write the boilerplate of matching a handler's exact arity.
type Dispatch[M any] func(m *M, ctx Context[M]) error

// WrapInput adapts a handler with no payload and no scheduler argument —
// the `FnOnce(&mut M)` shape — into a Dispatch.
func WrapInput[M any](fn func(m *M)) Dispatch[M] {
	return func(m *M, ctx Context[M]) error {
		fn(m)
		return nil
	}
}

// WrapInputWithArg adapts a handler taking a payload but no scheduler
// argument — `FnOnce(&mut M, T)` — into a Dispatch.
func WrapInputWithArg[M, T any](fn func(m *M, arg T), arg T) Dispatch[M] {
	return func(m *M, ctx Context[M]) error {
		fn(m, arg)
		return nil
	}
}

// WrapInputWithContext adapts a handler taking both a payload and the
// model's Context — `FnOnce(&mut M, T, &Scheduler<M>)` — into a Dispatch.
func WrapInputWithContext[M, T any](fn func(m *M, arg T, ctx Context[M]), arg T) Dispatch[M] {
	return func(m *M, ctx Context[M]) error {
		fn(m, arg, ctx)
		return nil
	}
}

// WrapInputErr is WrapInputWithContext's counterpart for handlers that can
// fail; the simulation's dispatch loop records the returned error against
// the model, latching the Simulation, rather than panicking.
func WrapInputErr[M, T any](fn func(m *M, arg T, ctx Context[M]) error, arg T) Dispatch[M] {
	return func(m *M, ctx Context[M]) error {
		return fn(m, arg, ctx)
	}
}

// Reply carries a replier port's result back to the caller awaiting it,
// erased the same way Dispatch erases an input handler.
type Reply[M, R any] func(m *M, ctx Context[M]) (R, error)

// WrapReplier adapts a handler taking a payload and returning (R, error) —
// the async replier-port shape — into a Reply.
func WrapReplier[M, T, R any](fn func(m *M, arg T, ctx Context[M]) (R, error), arg T) Reply[M, R] {
	return func(m *M, ctx Context[M]) (R, error) {
		return fn(m, arg, ctx)
	}
}
