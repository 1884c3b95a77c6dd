// Package clock provides the wall-clock pacing strategies a Simulation
// loop can run under: as-fast-as-possible (no pacing at all), auto-system
// (virtual time tracks wall-clock time 1:1), and a caller-supplied custom
// mapping for scaled or externally-driven pacing.
package clock

import (
	"time"

	"github.com/us-irs/asynchronix/vtime"
)

// Clock maps the simulation's virtual time onto real time. Sync is called
// by the simulation loop before dispatching the next epoch; it blocks (or
// returns immediately) according to the strategy's pacing rule.
type Clock interface {
	// Sync blocks until wall-clock time has caught up to the point this
	// strategy associates with simTime, or returns immediately if it
	// already has.
	Sync(simTime vtime.MonotonicTime)
}

// AsFast runs with no pacing: Sync always returns immediately. This is the
// default and the right choice for batch simulation runs where wall-clock
// time spent waiting serves no purpose.
type AsFast struct{}

// Sync is a no-op.
func (AsFast) Sync(simTime vtime.MonotonicTime) {}

// AutoSystem paces virtual time to track wall-clock time one-to-one,
// anchored at the instant the first Sync call is made.
type AutoSystem struct {
	anchor      time.Time
	anchorSim   vtime.MonotonicTime
	initialized bool
}

// NewAutoSystem constructs an AutoSystem clock. The anchor is established
// lazily on the first Sync call rather than at construction, so a clock
// built well before a bench's first epoch does not cause Sync to
// immediately think the simulation is running behind.
func NewAutoSystem() *AutoSystem {
	return &AutoSystem{}
}

// Sync blocks until wall-clock time has advanced by the same amount as
// virtual time has since the anchor.
func (a *AutoSystem) Sync(simTime vtime.MonotonicTime) {
	if !a.initialized {
		a.anchor = time.Now()
		a.anchorSim = simTime
		a.initialized = true
		return
	}

	elapsedSim, ok := simTime.Sub(a.anchorSim)
	if !ok {
		return
	}
	target := a.anchor.Add(time.Duration(elapsedSim.Seconds)*time.Second + time.Duration(elapsedSim.SubsecNanos))

	if wait := time.Until(target); wait > 0 {
		time.Sleep(wait)
	}
}

// Custom paces virtual time according to a caller-supplied function,
// called once per Sync with the simulation time about to be dispatched.
// Suited to scaled-speed playback (e.g. 10x) or to pacing driven by an
// external wall-clock source rather than time.Now.
type Custom struct {
	sync func(simTime vtime.MonotonicTime)
}

// NewCustom constructs a Custom clock delegating every Sync call to fn.
func NewCustom(fn func(simTime vtime.MonotonicTime)) *Custom {
	return &Custom{sync: fn}
}

// Sync calls the configured function.
func (c *Custom) Sync(simTime vtime.MonotonicTime) {
	if c.sync != nil {
		c.sync(simTime)
	}
}
