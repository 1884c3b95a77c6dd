// Package sinkexport provides the external-transport backends a sink.Exporter
// publishes encoded events to, and a sink.ExternalSource subscribes from:
// an in-memory engine for tests, and Kafka/Redis/NATS/Kinesis engines for
// bridging a bench's observed events to real infrastructure.
package sinkexport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrEngineNotStarted is returned by Publish/Subscribe when called before
// Start.
var ErrEngineNotStarted = errors.New("sinkexport: engine not started")

// ErrUnknownEngine is returned by NewEngine for an unrecognized engine name.
var ErrUnknownEngine = errors.New("sinkexport: unknown engine type")

// Handler processes one message received on a subscribed topic. Returning
// an error does not end the subscription: MemoryEngine hands the error back
// to the Publish caller, and the broker-backed engines discard it.
type Handler func(ctx context.Context, payload []byte) error

// Engine is the narrow publish/subscribe contract a sink.Exporter or
// sink.ExternalSource needs from an external transport, independent of
// which concrete backend is wired in.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// Config selects and parameterizes one Engine implementation, mirroring
// the teacher's per-engine config struct embedded by name/type string.
type Config struct {
	Type    string   `yaml:"type" toml:"type" env:"SINKEXPORT_ENGINE"`
	Brokers []string `yaml:"brokers" toml:"brokers" env:"SINKEXPORT_BROKERS"`
	GroupID string   `yaml:"groupId" toml:"group_id" env:"SINKEXPORT_GROUP_ID"`
}

// NewEngine is the engine registry: it resolves cfg.Type to a concrete
// Engine constructor, the same factory-by-type-string shape the teacher's
// eventbus module uses to pick a backend at module-build time.
func NewEngine(cfg Config) (Engine, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryEngine(), nil
	case "kafka":
		return NewKafkaEngine(cfg.Brokers, cfg.GroupID), nil
	case "redis":
		return NewRedisEngine(cfg.Brokers), nil
	case "nats":
		return NewNATSEngine(cfg.Brokers), nil
	case "kinesis":
		return NewKinesisEngine(cfg.Brokers), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Type)
	}
}

// MemoryEngine is an in-process pub/sub engine requiring no external
// dependency, for tests and for sim runs that never leave the process.
type MemoryEngine struct {
	mu        sync.RWMutex
	started   bool
	listeners map[string][]Handler
}

// NewMemoryEngine constructs a MemoryEngine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{listeners: make(map[string][]Handler)}
}

// Start marks the engine ready to publish and subscribe.
func (m *MemoryEngine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

// Stop marks the engine stopped and clears all subscriptions.
func (m *MemoryEngine) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.listeners = make(map[string][]Handler)
	return nil
}

// Publish invokes every handler subscribed to topic, synchronously, in
// subscription order, stopping at and returning the first handler error.
func (m *MemoryEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	if !m.started {
		m.mu.RUnlock()
		return ErrEngineNotStarted
	}
	handlers := make([]Handler, len(m.listeners[topic]))
	copy(handlers, m.listeners[topic])
	m.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers handler for topic.
func (m *MemoryEngine) Subscribe(ctx context.Context, topic string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrEngineNotStarted
	}
	m.listeners[topic] = append(m.listeners[topic], handler)
	return nil
}
