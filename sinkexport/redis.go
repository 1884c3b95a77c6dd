package sinkexport

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisEngine publishes and subscribes via Redis pub/sub, narrowed from the
// teacher's RedisEventBus to the Engine interface's byte-payload contract.
type RedisEngine struct {
	addrs []string

	mu      sync.Mutex
	started bool
	client  *redis.Client
	wg      sync.WaitGroup
}

// NewRedisEngine constructs a RedisEngine. addrs[0] is used as the server
// address; a single-node client is sufficient for the sink export use
// case (no cluster topology concerns).
func NewRedisEngine(addrs []string) *RedisEngine {
	return &RedisEngine{addrs: addrs}
}

// Start opens the Redis client connection.
func (r *RedisEngine) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	addr := "localhost:6379"
	if len(r.addrs) > 0 {
		addr = r.addrs[0]
	}
	r.client = redis.NewClient(&redis.Options{Addr: addr})
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("sinkexport: connect to redis: %w", err)
	}
	r.started = true
	return nil
}

// Stop closes the Redis client connection.
func (r *RedisEngine) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.wg.Wait()
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("sinkexport: close redis client: %w", err)
	}
	r.started = false
	return nil
}

// Publish publishes payload on the Redis channel named topic.
func (r *RedisEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrEngineNotStarted
	}
	client := r.client
	r.mu.Unlock()

	if err := client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("sinkexport: publish to redis: %w", err)
	}
	return nil
}

// Subscribe starts a background loop delivering messages from the Redis
// channel named topic to handler.
func (r *RedisEngine) Subscribe(ctx context.Context, topic string, handler Handler) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrEngineNotStarted
	}
	client := r.client
	r.mu.Unlock()

	pubsub := client.Subscribe(ctx, topic)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_ = handler(ctx, []byte(msg.Payload))
			}
		}
	}()
	return nil
}
