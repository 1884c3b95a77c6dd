package sim

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Simulation's Step family and process
// operations. An execution error (ErrHalted, ErrDeadlock, or a wrapped
// model handler error) latches the Simulation: once returned, every
// subsequent Step*/ProcessEvent/ProcessQuery call returns the same error
// without attempting further work.
var (
	// ErrNoEventScheduled is returned by Step when the scheduler queue is
	// empty, so there is no next epoch to advance to.
	ErrNoEventScheduled = errors.New("sim: no event scheduled")

	// ErrHalted is returned once scheduler.Scheduler.Halt has been called
	// and the loop has observed it at an epoch boundary.
	ErrHalted = errors.New("sim: simulation halted")

	// ErrDeadlock is returned when RunUntilQuiescent reports that every
	// outstanding task is parked with no runnable work remaining.
	ErrDeadlock = errors.New("sim: deadlock detected")

	// ErrNoReply is returned by ProcessQuery when the targeted replier
	// port did not produce a reply during the quiescence round that
	// processed the query.
	ErrNoReply = errors.New("sim: query produced no reply")

	// ErrDuplicateModelName is returned by AddModel when a model has
	// already been registered under the given name.
	ErrDuplicateModelName = errors.New("sim: a model is already registered under that name")
)

// DeadlockError is the sim-level counterpart to executor.DeadlockError: it
// latches a Simulation with the set of model names whose tasks were still
// parked when RunUntilQuiescent gave up. errors.Is(err, ErrDeadlock) keeps
// working against it via Unwrap, for callers that don't need the model list.
type DeadlockError struct {
	Models []string
}

func (e *DeadlockError) Error() string {
	if len(e.Models) == 0 {
		return "sim: deadlock detected"
	}
	return fmt.Sprintf("sim: deadlock detected, blocked models: %s", strings.Join(e.Models, ", "))
}

// Unwrap lets errors.Is(err, ErrDeadlock) succeed against a *DeadlockError.
func (e *DeadlockError) Unwrap() error { return ErrDeadlock }

// ModelPanicError latches a Simulation when a model handler panics instead
// of returning an error. Kept distinct from a plain wrapped handler error
// since a recovered panic value is not necessarily an error.
type ModelPanicError struct {
	Model   string
	Payload any
}

func (e *ModelPanicError) Error() string {
	return fmt.Sprintf("sim: model %q panicked: %v", e.Model, e.Payload)
}
