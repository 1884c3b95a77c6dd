package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/us-irs/asynchronix/executor"
	"github.com/us-irs/asynchronix/scheduler"
	"github.com/us-irs/asynchronix/vtime"
)

func TestAggregator_CheckAll_AllHealthyIsOverallHealthy(t *testing.T) {
	agg := NewAggregator()
	agg.RegisterCheck(CheckerFunc{
		CheckerName: "ok",
		Func:        func(ctx context.Context) CheckResult { return CheckResult{Status: StatusHealthy} },
	})

	status := agg.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Overall)
	assert.True(t, agg.IsReady(context.Background()))
	assert.True(t, agg.IsLive(context.Background()))
}

func TestAggregator_CheckAll_FailedDominatesOthers(t *testing.T) {
	agg := NewAggregator()
	agg.RegisterCheck(CheckerFunc{
		CheckerName: "ok",
		Func:        func(ctx context.Context) CheckResult { return CheckResult{Status: StatusHealthy} },
	})
	agg.RegisterCheck(CheckerFunc{
		CheckerName: "degraded",
		Func:        func(ctx context.Context) CheckResult { return CheckResult{Status: StatusDegraded} },
	})
	agg.RegisterCheck(CheckerFunc{
		CheckerName: "failed",
		Func:        func(ctx context.Context) CheckResult { return CheckResult{Status: StatusFailed} },
	})

	status := agg.CheckAll(context.Background())
	assert.Equal(t, StatusFailed, status.Overall)
	assert.False(t, agg.IsReady(context.Background()))
	assert.False(t, agg.IsLive(context.Background()))
}

func TestAggregator_CheckAll_DegradedIsLiveButNotReady(t *testing.T) {
	agg := NewAggregator()
	agg.RegisterCheck(CheckerFunc{
		CheckerName: "degraded",
		Func:        func(ctx context.Context) CheckResult { return CheckResult{Status: StatusDegraded} },
	})

	assert.False(t, agg.IsReady(context.Background()))
	assert.True(t, agg.IsLive(context.Background()))
}

func TestAggregator_CheckOne_UnknownNameErrors(t *testing.T) {
	agg := NewAggregator()
	_, err := agg.CheckOne(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCheckNotFound)
}

func TestAggregator_UnregisterCheck_RemovesFromCheckAll(t *testing.T) {
	agg := NewAggregator()
	agg.RegisterCheck(CheckerFunc{
		CheckerName: "transient",
		Func:        func(ctx context.Context) CheckResult { return CheckResult{Status: StatusFailed} },
	})
	agg.UnregisterCheck("transient")

	status := agg.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Overall)
	assert.Empty(t, status.Checks)
}

func TestHaltChecker_HealthyBeforeHaltFailedAfter(t *testing.T) {
	sched := scheduler.New(vtime.MonotonicTime{})
	checker := NewHaltChecker("halt", sched)

	result := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)

	sched.Halt()
	result = checker.Check(context.Background())
	assert.Equal(t, StatusFailed, result.Status)
}

func TestQuiescenceChecker_HealthyWhenNoOutstandingWork(t *testing.T) {
	exec := executor.New(2)
	defer exec.Close()

	checker := NewQuiescenceChecker("quiescence", exec)
	result := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestDeadlockLatchChecker_TripFlipsToFailed(t *testing.T) {
	latch := &DeadlockLatch{}
	checker := NewDeadlockLatchChecker("deadlock", latch)

	result := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)

	latch.Trip()
	result = checker.Check(context.Background())
	assert.Equal(t, StatusFailed, result.Status)

	latch.Reset()
	result = checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestAggregator_WiresHaltAndDeadlockChecksTogether(t *testing.T) {
	sched := scheduler.New(vtime.MonotonicTime{})
	latch := &DeadlockLatch{}

	agg := NewAggregator()
	agg.RegisterCheck(NewHaltChecker("halt", sched))
	agg.RegisterCheck(NewDeadlockLatchChecker("deadlock", latch))

	require.True(t, agg.IsReady(context.Background()))

	latch.Trip()
	assert.False(t, agg.IsReady(context.Background()))
}
