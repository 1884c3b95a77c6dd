package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LogObserver adapts a *zap.Logger into an Observer, turning every lifecycle
// Event into a structured log line. Registering one on a Dispatcher is how a
// host gets epoch/halt/deadlock/model-error visibility without polling the
// Health Aggregator, mirroring the teacher's own pattern of driving
// structured logging off an internal event bus rather than sprinkling log
// calls through the simulation loop itself.
type LogObserver struct {
	id     string
	logger *zap.Logger
	level  map[EventKind]zapLevel
}

type zapLevel int

const (
	levelInfo zapLevel = iota
	levelWarn
	levelError
)

// NewLogObserver builds a LogObserver named id, logging through logger.
// EventEpochStarted/EventEpochCompleted log at Info, EventHalted/
// EventModelError at Warn, and EventDeadlockDetected/EventModelPanic at
// Error, reflecting how much operator attention each kind warrants.
func NewLogObserver(id string, logger *zap.Logger) *LogObserver {
	return &LogObserver{
		id:     id,
		logger: logger,
		level: map[EventKind]zapLevel{
			EventEpochStarted:     levelInfo,
			EventEpochCompleted:   levelInfo,
			EventHalted:           levelWarn,
			EventModelError:       levelWarn,
			EventDeadlockDetected: levelError,
			EventModelPanic:       levelError,
		},
	}
}

// ID returns the observer's configured name.
func (o *LogObserver) ID() string { return o.id }

// OnEvent logs event and always returns nil: a logging failure should never
// propagate back into the dispatcher as a delivery error.
func (o *LogObserver) OnEvent(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.Int64("virtual_time_seconds", event.Time.Seconds),
		zap.Uint32("virtual_time_nanos", event.Time.SubsecNanos),
	}
	if event.Detail != nil {
		fields = append(fields, zap.String("detail", fmt.Sprint(event.Detail)))
	}

	msg := "simulation lifecycle event"
	switch o.level[event.Kind] {
	case levelError:
		o.logger.Error(msg, fields...)
	case levelWarn:
		o.logger.Warn(msg, fields...)
	default:
		o.logger.Info(msg, fields...)
	}
	return nil
}
