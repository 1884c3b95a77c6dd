package sinkexport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEngine_PublishRequiresStart(t *testing.T) {
	e := NewMemoryEngine()
	err := e.Publish(context.Background(), "topic", []byte("x"))
	assert.ErrorIs(t, err, ErrEngineNotStarted)
}

func TestMemoryEngine_SubscribeReceivesPublishedPayload(t *testing.T) {
	e := NewMemoryEngine()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop(context.Background())

	received := make(chan []byte, 1)
	require.NoError(t, e.Subscribe(context.Background(), "topic", func(ctx context.Context, payload []byte) error {
		received <- payload
		return nil
	}))

	require.NoError(t, e.Publish(context.Background(), "topic", []byte("hello")))

	select {
	case payload := <-received:
		assert.Equal(t, []byte("hello"), payload)
	default:
		t.Fatal("expected synchronous delivery to subscribed handler")
	}
}

func TestMemoryEngine_SubscribeIgnoresOtherTopics(t *testing.T) {
	e := NewMemoryEngine()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop(context.Background())

	called := false
	require.NoError(t, e.Subscribe(context.Background(), "topic-a", func(ctx context.Context, payload []byte) error {
		called = true
		return nil
	}))

	require.NoError(t, e.Publish(context.Background(), "topic-b", []byte("x")))
	assert.False(t, called)
}

func TestMemoryEngine_StopClearsSubscriptions(t *testing.T) {
	e := NewMemoryEngine()
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Subscribe(context.Background(), "topic", func(ctx context.Context, payload []byte) error {
		return nil
	}))
	require.NoError(t, e.Stop(context.Background()))

	err := e.Publish(context.Background(), "topic", []byte("x"))
	assert.ErrorIs(t, err, ErrEngineNotStarted)
}

func TestNewEngine_DefaultsToMemory(t *testing.T) {
	engine, err := NewEngine(Config{})
	require.NoError(t, err)
	_, ok := engine.(*MemoryEngine)
	assert.True(t, ok)
}

func TestNewEngine_RejectsUnknownType(t *testing.T) {
	_, err := NewEngine(Config{Type: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownEngine)
}
