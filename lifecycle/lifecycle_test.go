package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/us-irs/asynchronix/vtime"
)

func TestDispatcher_StartTwiceErrors(t *testing.T) {
	d := NewDispatcher(8)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	err := d.Start(context.Background())
	assert.ErrorIs(t, err, ErrDispatcherAlreadyRunning)
}

func TestDispatcher_StopWithoutStartErrors(t *testing.T) {
	d := NewDispatcher(8)
	err := d.Stop(context.Background())
	assert.ErrorIs(t, err, ErrDispatcherNotRunning)
}

func TestDispatcher_DeliversEventToRegisteredObserver(t *testing.T) {
	d := NewDispatcher(8)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	received := make(chan Event, 1)
	require.NoError(t, d.RegisterObserver(ObserverFunc{
		Name: "test",
		Func: func(ctx context.Context, event Event) error {
			received <- event
			return nil
		},
	}))

	d.Publish(Event{Kind: EventHalted, Time: vtime.MonotonicTime{Seconds: 5}})

	select {
	case event := <-received:
		assert.Equal(t, EventHalted, event.Kind)
		assert.Equal(t, int64(5), event.Time.Seconds)
	case <-time.After(time.Second):
		t.Fatal("observer never received event")
	}
}

func TestDispatcher_PublishBeforeStartIsNoOp(t *testing.T) {
	d := NewDispatcher(8)
	assert.NotPanics(t, func() { d.Publish(Event{Kind: EventHalted}) })
}

func TestDispatcher_UnregisterObserverStopsDelivery(t *testing.T) {
	d := NewDispatcher(8)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	var mu sync.Mutex
	count := 0
	require.NoError(t, d.RegisterObserver(ObserverFunc{
		Name: "counter",
		Func: func(ctx context.Context, event Event) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		},
	}))
	d.UnregisterObserver("counter")

	d.Publish(Event{Kind: EventHalted})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestDispatcher_RegisterObserver_RejectsEmptyID(t *testing.T) {
	d := NewDispatcher(8)
	err := d.RegisterObserver(ObserverFunc{Name: "", Func: func(ctx context.Context, event Event) error { return nil }})
	assert.ErrorIs(t, err, ErrObserverIDEmpty)
}

func TestDispatcher_OverflowDropsOldestEvent(t *testing.T) {
	d := NewDispatcher(1)

	// Fill the buffer without a consumer running yet by starting the
	// dispatcher with a blocked observer, forcing queued events to pile up.
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	block := make(chan struct{})
	require.NoError(t, d.RegisterObserver(ObserverFunc{
		Name: "blocker",
		Func: func(ctx context.Context, event Event) error {
			<-block
			return nil
		},
	}))

	d.Publish(Event{Kind: EventEpochStarted})
	time.Sleep(5 * time.Millisecond) // let it be picked up and block delivery
	d.Publish(Event{Kind: EventEpochCompleted})
	d.Publish(Event{Kind: EventHalted}) // should drop EventEpochCompleted

	close(block)
	time.Sleep(20 * time.Millisecond)

	assert.GreaterOrEqual(t, d.Dropped(), int64(1))
}
