package sim

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/us-irs/asynchronix/action"
	"github.com/us-irs/asynchronix/mailbox"
	"github.com/us-irs/asynchronix/model"
	"github.com/us-irs/asynchronix/port"
	"github.com/us-irs/asynchronix/sink"
	"github.com/us-irs/asynchronix/vtime"
)

// This file exercises the six end-to-end scenarios from spec.md §8 directly
// against the Bench/Simulation API, as a complement to the property-style
// unit tests elsewhere in this package. The same setups are re-used by the
// godog feature files under features/.

type stageKind int

const (
	kindMultiply stageKind = iota
	kindDelay
)

// stage is a generic bench-wiring node: either a "multiply by factor"
// combinator or a "forward unchanged after delay" combinator. Using one
// model type for every node in a bench keeps every Output[T] in the chain
// homogeneous (T == model.Dispatch[stage]), since port.Output only connects
// to a single mailbox element type.
type stage struct {
	model.NoInit
	kind   stageKind
	factor float64
	delay  vtime.Duration
	out    *port.Output[model.Dispatch[stage]]
	sink   sink.EventSink[float64]
}

func stageDispatch(v float64) model.Dispatch[stage] {
	return model.WrapInputWithContext[stage, float64](func(s *stage, v float64, ctx model.Context[stage]) {
		s.receive(v, ctx)
	}, v)
}

func (s *stage) receive(v float64, ctx model.Context[stage]) {
	switch s.kind {
	case kindMultiply:
		s.forward(v * s.factor)
	case kindDelay:
		forward := model.WrapInputWithArg[stage, float64](func(st *stage, arg float64) {
			st.forward(arg)
		}, v)
		_ = ctx.ScheduleIn(s.delay, forward)
	}
}

func (s *stage) forward(v float64) {
	if s.out != nil {
		_ = s.out.Send(context.Background(), stageDispatch(v))
	}
	if s.sink != nil {
		s.sink.Push(v)
	}
}

func newStageModel(bench *Bench, name string, kind stageKind) (*stage, mailbox.Address[model.Dispatch[stage]]) {
	s := &stage{kind: kind, out: port.NewOutput[model.Dispatch[stage]]()}
	mb := mailbox.New[model.Dispatch[stage]](8)
	if err := AddModel(bench, s, mb, name); err != nil {
		panic(err)
	}
	return s, mb.Address()
}

// Scenario 1: Multiplier-and-delays bench.
func TestScenario_MultiplierAndDelaysBench(t *testing.T) {
	ctx := context.Background()
	bench := NewBench()

	oneSecond, err := vtime.NewDuration(1, 0)
	require.NoError(t, err)

	m1, addrM1 := newStageModel(bench, "m1", kindMultiply)
	m1.factor = 2
	m2, addrM2 := newStageModel(bench, "m2", kindMultiply)
	m2.factor = 2
	d1, addrD1 := newStageModel(bench, "d1", kindDelay)
	d1.delay = oneSecond
	d2, addrD2 := newStageModel(bench, "d2", kindDelay)
	d2.delay = oneSecond

	m1.out.Connect(addrD1)
	m1.out.Connect(addrM2)
	m2.out.Connect(addrD2)
	d1.out.Connect(addrD2)

	buf := sink.NewBuffer[float64]()
	d2.sink = buf

	s, err := bench.Init(ctx, at(0), WithWorkerCount(4))
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, ProcessEvent(ctx, s, addrM1, stageDispatch(21)))

	require.NoError(t, s.Step(ctx))
	assert.Equal(t, int64(1), s.Time().Seconds)
	assert.Equal(t, []float64{84}, buf.Drain())

	require.NoError(t, s.Step(ctx))
	assert.Equal(t, int64(2), s.Time().Seconds)
	assert.Equal(t, []float64{42}, buf.Drain())
}

// Scenario 4: Cancel.
func TestScenario_CancelBeforeDeadlineSuppressesEvent(t *testing.T) {
	ctx := context.Background()
	bench := NewBench()
	target, addr := newStageModel(bench, "target", kindDelay)
	target.delay, _ = vtime.NewDuration(0, 0)
	buf := sink.NewBuffer[float64]()
	target.sink = buf

	s, err := bench.Init(ctx, at(0), WithWorkerCount(2))
	require.NoError(t, err)
	defer s.Close(ctx)

	key, err := s.Scheduler().ScheduleKeyed(at(1), func(taskCtx context.Context) error {
		return addr.Send(taskCtx, stageDispatch(7))
	})
	require.NoError(t, err)

	s.Scheduler().Cancel(key)

	err = s.StepUntil(ctx, at(2))
	require.NoError(t, err)
	assert.Empty(t, buf.Drain(), "cancelled event must never be dispatched")
}

// Scenario 5: Deadlock — two models each blocked sending to the other on a
// zero-capacity mailbox, with no external drain.
type pingPong struct {
	model.NoInit
	peer mailbox.Address[model.Dispatch[pingPong]]
}

func pingPongDispatch() model.Dispatch[pingPong] {
	return model.WrapInputWithContext[pingPong, int](func(p *pingPong, _ int, ctx model.Context[pingPong]) {
		_ = p.peer.Send(context.Background(), pingPongDispatch())
	}, 0)
}

func TestScenario_MutualSendOnFullMailboxesDeadlocks(t *testing.T) {
	ctx := context.Background()
	bench := NewBench()

	a := &pingPong{}
	b := &pingPong{}
	mbA := mailbox.New[model.Dispatch[pingPong]](0)
	mbB := mailbox.New[model.Dispatch[pingPong]](0)
	require.NoError(t, AddModel(bench, a, mbA, "a"))
	require.NoError(t, AddModel(bench, b, mbB, "b"))
	a.peer = mbB.Address()
	b.peer = mbA.Address()

	s, err := bench.Init(ctx, at(0), WithWorkerCount(2))
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, s.Scheduler().Schedule(at(1), func(taskCtx context.Context) error {
		return mbA.Address().Send(taskCtx, pingPongDispatch())
	}))
	require.NoError(t, s.Scheduler().Schedule(at(1), func(taskCtx context.Context) error {
		return mbB.Address().Send(taskCtx, pingPongDispatch())
	}))

	stepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = s.Step(stepCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlock)
}

// Scenario 6: Periodic drift-free — a period-7ns periodic event dispatched
// 10000 times lands on exactly t0+k*7ns for every k, with no accumulated
// drift from repeated floating/duration arithmetic.
func TestScenario_PeriodicDispatchIsDriftFree(t *testing.T) {
	ctx := context.Background()
	bench, _, _ := newCounterBench(t)
	s, err := bench.Init(ctx, at(0), WithWorkerCount(2))
	require.NoError(t, err)
	defer s.Close(ctx)

	const count = 10000
	period, err := vtime.NewDuration(0, 7)
	require.NoError(t, err)

	first, err := at(0).Add(period)
	require.NoError(t, err)

	var seen []vtime.MonotonicTime
	require.NoError(t, s.Scheduler().SchedulePeriodic(first, period, func() action.Func {
		return func(_ context.Context) error {
			seen = append(seen, s.Time())
			return nil
		}
	}))

	for i := 0; i < count; i++ {
		require.NoError(t, s.Step(ctx))
	}

	require.Len(t, seen, count)
	sort.Slice(seen, func(i, j int) bool { return seen[i].Compare(seen[j]) < 0 })
	for k := 1; k <= count; k++ {
		want, err := at(0).Add(vtime.Duration{SubsecNanos: uint32(7 * k)})
		require.NoError(t, err)
		assert.Equal(t, want.Compare(seen[k-1]), 0, "dispatch %d landed at %+v, want %+v", k, seen[k-1], want)
	}
}

// Scenario 2: Counter + detector (halt). The detector self-reschedules at
// random intervals in [1ms,100ms) and emits a pulse on every tick; the
// counter accumulates pulses and publishes its mode and running count.

type powerMode int

const (
	modeOff powerMode = iota
	modeOn
)

type pulseCounter struct {
	model.NoInit
	mode      powerMode
	count     int
	modeSink  sink.EventSink[powerMode]
	countSink sink.EventSink[int]
}

func counterPowerOnDispatch() model.Dispatch[pulseCounter] {
	return model.WrapInput[pulseCounter](func(c *pulseCounter) {
		c.mode = modeOn
		if c.modeSink != nil {
			c.modeSink.Push(c.mode)
		}
	})
}

func pulseDispatch() model.Dispatch[pulseCounter] {
	return model.WrapInput[pulseCounter](func(c *pulseCounter) {
		c.count++
		if c.countSink != nil {
			c.countSink.Push(c.count)
		}
	})
}

type pulseDetector struct {
	model.NoInit
	rng *rand.Rand
	out *port.Output[model.Dispatch[pulseCounter]]
}

// randomInterval returns a delay in [1ms,100ms), matching the detector's
// jittered pulse rate.
func (d *pulseDetector) randomInterval() vtime.Duration {
	millis := 1 + d.rng.Intn(99)
	dur, _ := vtime.NewDuration(0, uint32(millis)*1_000_000)
	return dur
}

func TestScenario_CounterAndDetectorHalt(t *testing.T) {
	ctx := context.Background()
	bench := NewBench()

	modeSlot := sink.NewSlot[powerMode]()
	pulses := sink.NewBlockingQueue[int](16)

	counterModel := &pulseCounter{modeSink: modeSlot, countSink: pulses}
	counterMb := mailbox.New[model.Dispatch[pulseCounter]](8)
	require.NoError(t, AddModel(bench, counterModel, counterMb, "counter"))

	detectorModel := &pulseDetector{rng: rand.New(rand.NewSource(1)), out: port.NewOutput[model.Dispatch[pulseCounter]]()}
	detectorModel.out.Connect(counterMb.Address())
	detectorMb := mailbox.New[model.Dispatch[pulseDetector]](8)
	require.NoError(t, AddModel(bench, detectorModel, detectorMb, "detector"))

	// tick re-arms itself with a freshly rolled interval every time it
	// fires, the same self-scheduling shape as the counter chain test in
	// sim_test.go, generalized to also emit across the port wiring to the
	// counter model.
	var tick model.Dispatch[pulseDetector]
	tick = model.WrapInputWithContext[pulseDetector, int](
		func(d *pulseDetector, _ int, ctx model.Context[pulseDetector]) {
			_ = d.out.Send(context.Background(), pulseDispatch())
			_ = ctx.ScheduleIn(d.randomInterval(), tick)
		},
		0,
	)
	powerOnDetector := model.WrapInputWithContext[pulseDetector, int](
		func(d *pulseDetector, _ int, ctx model.Context[pulseDetector]) {
			_ = ctx.ScheduleIn(d.randomInterval(), tick)
		},
		0,
	)

	s, err := bench.Init(ctx, at(0), WithWorkerCount(4))
	require.NoError(t, err)
	defer s.Close(ctx)

	oneMs, err := vtime.NewDuration(0, 1_000_000)
	require.NoError(t, err)
	hundredMs, err := vtime.NewDuration(0, 100_000_000)
	require.NoError(t, err)
	t1, err := at(0).Add(oneMs)
	require.NoError(t, err)
	t100, err := at(0).Add(hundredMs)
	require.NoError(t, err)

	require.NoError(t, s.Scheduler().Schedule(t1, func(taskCtx context.Context) error {
		return counterMb.Address().Send(taskCtx, counterPowerOnDispatch())
	}))
	require.NoError(t, s.Scheduler().Schedule(t100, func(taskCtx context.Context) error {
		return detectorMb.Address().Send(taskCtx, powerOnDetector)
	}))

	for {
		require.NoError(t, s.Step(ctx))
		if mode, ok := modeSlot.Peek(); ok && mode == modeOn {
			break
		}
	}

	for counterModel.count < 10 {
		require.NoError(t, s.Step(ctx))
	}
	assert.Equal(t, 10, counterModel.count)

	s.Halt()
	err = s.Step(ctx)
	assert.ErrorIs(t, err, ErrHalted, "a driver halting on the 10th pulse is a normal exit, not a failure")

	seenPulses := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		v, ok := pulses.Next()
		require.True(t, ok)
		seenPulses = append(seenPulses, v)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seenPulses)
}

// Scenario 3: External listener. A listener model drains an external
// channel every 20ms, starting at t0+2ms, forwarding whatever it finds
// into a sink. Strings "0".."9" are sent concurrently with the simulation
// running; the sink must observe them in send order regardless.
type listener struct {
	model.NoInit
	in   chan string
	sink sink.EventSink[string]
}

func (l *listener) drain() {
	for {
		select {
		case v, ok := <-l.in:
			if !ok {
				return
			}
			if l.sink != nil {
				l.sink.Push(v)
			}
		default:
			return
		}
	}
}

func listenerTickDispatch() model.Dispatch[listener] {
	return model.WrapInput[listener](func(l *listener) { l.drain() })
}

func TestScenario_ExternalListenerObservesSendOrder(t *testing.T) {
	ctx := context.Background()
	bench := NewBench()

	buf := sink.NewBuffer[string]()
	l := &listener{in: make(chan string, 10), sink: buf}
	mb := mailbox.New[model.Dispatch[listener]](8)
	require.NoError(t, AddModel(bench, l, mb, "listener"))

	s, err := bench.Init(ctx, at(0), WithWorkerCount(4))
	require.NoError(t, err)
	defer s.Close(ctx)

	twoMs, err := vtime.NewDuration(0, 2_000_000)
	require.NoError(t, err)
	twentyMs, err := vtime.NewDuration(0, 20_000_000)
	require.NoError(t, err)
	t2, err := at(0).Add(twoMs)
	require.NoError(t, err)

	require.NoError(t, s.Scheduler().SchedulePeriodic(t2, twentyMs, func() action.Func {
		return func(taskCtx context.Context) error {
			return mb.Address().Send(taskCtx, listenerTickDispatch())
		}
	}))

	go func() {
		for i := 0; i < 10; i++ {
			l.in <- strconv.Itoa(i)
		}
	}()

	var seen []string
	for len(seen) < 10 {
		require.NoError(t, s.Step(ctx))
		seen = append(seen, buf.Drain()...)
	}

	want := make([]string, 10)
	for i := range want {
		want[i] = strconv.Itoa(i)
	}
	assert.Equal(t, want, seen)
}
