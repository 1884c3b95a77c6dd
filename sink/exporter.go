package sink

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/us-irs/asynchronix/sinkexport"
)

// Exporter bridges an in-process EventSink-shaped producer to an external
// sinkexport.Engine: every value pushed through it is CBOR-encoded and
// published to a fixed topic, so a model's Output port can be wired to
// Kafka/Redis/NATS/Kinesis with no code in the model itself aware that its
// events are leaving the process.
type Exporter[T any] struct {
	engine sinkexport.Engine
	topic  string
}

// NewExporter constructs an Exporter publishing CBOR-encoded T values to
// topic on engine.
func NewExporter[T any](engine sinkexport.Engine, topic string) *Exporter[T] {
	return &Exporter[T]{engine: engine, topic: topic}
}

// Push CBOR-encodes value and publishes it, discarding any encode or
// publish error: Exporter has no error channel since EventSink.Push cannot
// fail from a model's point of view. PushContext returns the error instead.
func (e *Exporter[T]) Push(value T) {
	_ = e.PushContext(context.Background(), value)
}

// PushContext is Push with an explicit context and a returned error, for
// callers that want to observe failures.
func (e *Exporter[T]) PushContext(ctx context.Context, value T) error {
	encoded, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("sink: encode export value: %w", err)
	}
	return e.engine.Publish(ctx, e.topic, encoded)
}

// ExternalSource is the dual of Exporter: it subscribes to a
// sinkexport.Engine topic, CBOR-decodes each message, and makes the
// decoded values available the same way a Buffer sink does, for feeding
// externally produced events back into a bench as if they were an Output
// port's broadcast.
type ExternalSource[T any] struct {
	engine sinkexport.Engine
	topic  string
	buffer *Buffer[T]
}

// NewExternalSource constructs an ExternalSource reading topic from engine.
func NewExternalSource[T any](engine sinkexport.Engine, topic string) *ExternalSource[T] {
	return &ExternalSource[T]{engine: engine, topic: topic, buffer: NewBuffer[T]()}
}

// Start subscribes to the topic and decodes messages into the internal
// buffer until ctx is cancelled or the engine's subscription ends.
func (s *ExternalSource[T]) Start(ctx context.Context) error {
	return s.engine.Subscribe(ctx, s.topic, func(ctx context.Context, payload []byte) error {
		var value T
		if err := cbor.Unmarshal(payload, &value); err != nil {
			return fmt.Errorf("sink: decode external source value: %w", err)
		}
		s.buffer.Push(value)
		return nil
	})
}

// Drain returns every value decoded since the last Drain.
func (s *ExternalSource[T]) Drain() []T {
	return s.buffer.Drain()
}
