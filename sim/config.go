package sim

import (
	"go.uber.org/zap"

	"github.com/us-irs/asynchronix/clock"
	"github.com/us-irs/asynchronix/scheduler"
)

const (
	defaultWorkerCount        = 4
	defaultObserverBufferSize = 64
)

type config struct {
	workerCount        int
	observerBufferSize int
	clock              clock.Clock
	schedulerOpts      []scheduler.Option
	logger             *zap.Logger
}

func defaultConfig() config {
	return config{
		workerCount:        defaultWorkerCount,
		observerBufferSize: defaultObserverBufferSize,
		clock:              clock.AsFast{},
		logger:             zap.NewNop(),
	}
}

// Option configures a Bench's Init call.
type Option func(*config)

// WithWorkerCount sets the Executor's worker pool size. Defaults to 4.
func WithWorkerCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithObserverBufferSize sets the Lifecycle Dispatcher's bounded event
// buffer size. Defaults to 64.
func WithObserverBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.observerBufferSize = n
		}
	}
}

// WithClock sets the wall-clock pacing strategy. Defaults to clock.AsFast,
// the right choice for batch runs; an embedding host driving a live
// simulation should pass clock.NewAutoSystem() or a clock.Custom.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithSchedulerOptions passes through scheduler.Option values (currently
// scheduler.WithEventEmitter) to the Scheduler constructed by Init.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(c *config) {
		c.schedulerOpts = append(c.schedulerOpts, opts...)
	}
}

// WithLogger registers logger as a structured-logging observer on the
// Lifecycle Observer Bus: every epoch/halt/deadlock/model-error Event is
// logged through it. Defaults to zap.NewNop(), so a Bench built without
// this option produces no log output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
