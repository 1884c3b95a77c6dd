package health

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/us-irs/asynchronix/executor"
	"github.com/us-irs/asynchronix/scheduler"
)

// NewHaltChecker wraps a scheduler.Scheduler's halt flag: Failed once
// Halt has been called, Healthy otherwise. A halted bench cannot process
// further epochs, so a host treating this as a readiness probe should stop
// routing new work to it.
func NewHaltChecker(name string, sched *scheduler.Scheduler) Checker {
	return CheckerFunc{
		CheckerName: name,
		Func: func(ctx context.Context) CheckResult {
			if sched.IsHalted() {
				return CheckResult{Status: StatusFailed, Message: "simulation halted"}
			}
			return CheckResult{Status: StatusHealthy, Message: "running"}
		},
	}
}

// NewQuiescenceChecker runs a bounded RunUntilQuiescent against exec and
// reports Failed on executor.ErrDeadlock, Degraded if ctx expires before
// quiescence is reached (the bench is merely slow, not necessarily stuck),
// and Healthy otherwise.
func NewQuiescenceChecker(name string, exec *executor.Executor) Checker {
	return CheckerFunc{
		CheckerName: name,
		Func: func(ctx context.Context) CheckResult {
			err := exec.RunUntilQuiescent(ctx)
			switch {
			case err == nil:
				return CheckResult{Status: StatusHealthy, Message: "quiescent"}
			case errors.Is(err, executor.ErrDeadlock):
				return CheckResult{Status: StatusFailed, Message: "deadlock: all tasks parked with no runnable work"}
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("quiescence check did not complete: %v", err)}
			default:
				return CheckResult{Status: StatusDegraded, Message: err.Error()}
			}
		},
	}
}

// DeadlockLatch is a sticky flag set once and never cleared automatically,
// since a deadlock observed once means the bench needs operator
// intervention even if a later poll happens to see fewer parked tasks.
type DeadlockLatch struct {
	tripped atomic.Bool
}

// Trip latches the deadlock flag. Safe to call more than once.
func (l *DeadlockLatch) Trip() {
	l.tripped.Store(true)
}

// Reset clears the latch, for a host that has restarted the bench after
// diagnosing a prior deadlock.
func (l *DeadlockLatch) Reset() {
	l.tripped.Store(false)
}

// Tripped reports whether Trip has been called since construction or the
// last Reset.
func (l *DeadlockLatch) Tripped() bool {
	return l.tripped.Load()
}

// NewDeadlockLatchChecker wraps a DeadlockLatch: Failed once tripped,
// Healthy otherwise. Unlike NewQuiescenceChecker, which re-probes the
// executor on every call, this reports a sticky verdict set by whatever
// caller observed executor.ErrDeadlock during normal epoch processing —
// useful when health checks run far more often than new epochs occur.
func NewDeadlockLatchChecker(name string, latch *DeadlockLatch) Checker {
	return CheckerFunc{
		CheckerName: name,
		Func: func(ctx context.Context) CheckResult {
			if latch.Tripped() {
				return CheckResult{Status: StatusFailed, Message: "deadlock latched"}
			}
			return CheckResult{Status: StatusHealthy, Message: "no deadlock observed"}
		},
	}
}
