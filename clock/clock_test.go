package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/us-irs/asynchronix/vtime"
)

func TestAsFast_SyncNeverBlocks(t *testing.T) {
	c := AsFast{}
	start := time.Now()
	c.Sync(vtime.MonotonicTime{Seconds: 1000})
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestAutoSystem_FirstSyncAnchorsWithoutBlocking(t *testing.T) {
	c := NewAutoSystem()
	start := time.Now()
	c.Sync(vtime.MonotonicTime{Seconds: 0})
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestAutoSystem_SecondSyncWaitsForElapsedSimTime(t *testing.T) {
	c := NewAutoSystem()
	c.Sync(vtime.MonotonicTime{Seconds: 0})

	delay, _ := vtime.NewDuration(0, 20_000_000) // 20ms
	target, _ := vtime.MonotonicTime{Seconds: 0}.Add(delay)

	start := time.Now()
	c.Sync(target)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestCustom_DelegatesToFunction(t *testing.T) {
	var observed vtime.MonotonicTime
	c := NewCustom(func(simTime vtime.MonotonicTime) { observed = simTime })

	c.Sync(vtime.MonotonicTime{Seconds: 7})
	assert.Equal(t, int64(7), observed.Seconds)
}

func TestCustom_NilFuncIsSafeNoOp(t *testing.T) {
	c := NewCustom(nil)
	assert.NotPanics(t, func() { c.Sync(vtime.EPOCH) })
}
