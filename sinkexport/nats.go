package sinkexport

import (
	"fmt"
	"sync"

	"context"

	"github.com/nats-io/nats.go"
)

// NATSEngine publishes and subscribes via NATS core pub/sub.
type NATSEngine struct {
	urls []string

	mu      sync.Mutex
	started bool
	conn    *nats.Conn
	subs    []*nats.Subscription
}

// NewNATSEngine constructs a NATSEngine. urls[0] is used as the server
// URL; falls back to nats.DefaultURL if empty.
func NewNATSEngine(urls []string) *NATSEngine {
	return &NATSEngine{urls: urls}
}

// Start opens the NATS connection.
func (n *NATSEngine) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}

	url := nats.DefaultURL
	if len(n.urls) > 0 {
		url = n.urls[0]
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("sinkexport: connect to nats: %w", err)
	}
	n.conn = conn
	n.started = true
	return nil
}

// Stop unsubscribes everything and closes the connection.
func (n *NATSEngine) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return nil
	}
	for _, sub := range n.subs {
		_ = sub.Unsubscribe()
	}
	n.subs = nil
	n.conn.Close()
	n.started = false
	return nil
}

// Publish publishes payload on the NATS subject named topic.
func (n *NATSEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return ErrEngineNotStarted
	}
	conn := n.conn
	n.mu.Unlock()

	if err := conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("sinkexport: publish to nats: %w", err)
	}
	return nil
}

// Subscribe registers handler on the NATS subject named topic.
func (n *NATSEngine) Subscribe(ctx context.Context, topic string, handler Handler) error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return ErrEngineNotStarted
	}
	conn := n.conn
	n.mu.Unlock()

	sub, err := conn.Subscribe(topic, func(msg *nats.Msg) {
		_ = handler(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("sinkexport: subscribe on nats: %w", err)
	}

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	return nil
}
