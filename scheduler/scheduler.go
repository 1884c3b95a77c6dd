// Package scheduler implements the Scheduler Queue component: a binary
// min-heap of deferred actions ordered by (deadline, insertion sequence),
// with O(1) keyed cancellation and lazy reclamation, promoted to a
// top-level package since virtual-time scheduling is core to every
// simulation rather than an optional plug-in concern.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/us-irs/asynchronix/action"
	"github.com/us-irs/asynchronix/registry"
	"github.com/us-irs/asynchronix/vtime"
	"github.com/us-irs/asynchronix/wire"
)

// Static errors for the scheduler package.
var (
	ErrDeadlineInPast = errors.New("scheduler: deadline is before current time")
	ErrInvalidPeriod  = errors.New("scheduler: period must be strictly positive")
	ErrHalted         = errors.New("scheduler: scheduler has been halted")
	ErrEmpty          = errors.New("scheduler: queue is empty")
)

// EventEmitter optionally receives CloudEvents lifecycle notifications for
// scheduler activity (keyed schedule, cancel, halt). A Scheduler with no
// emitter configured skips emission entirely.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event cloudevents.Event) error
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithEventEmitter attaches a CloudEvents sink for scheduler lifecycle
// notifications.
func WithEventEmitter(emitter EventEmitter) Option {
	return func(s *Scheduler) { s.emitter = emitter }
}

// Scheduler is the Scheduler Queue: it orders deferred actions by
// (deadline, insertion_seq), supports keyed cancellation, and advances its
// notion of "now" only when told to by the simulation loop.
type Scheduler struct {
	mu             sync.Mutex
	q              *queue
	seq            atomic.Uint64
	now            vtime.MonotonicTime
	halted         atomic.Bool
	keys           *registry.Registry[action.Key]
	keyHandles     map[*atomic.Bool]registry.Handle
	calendarChains calendarChains
	emitter        EventEmitter
}

// registerKeyLocked inserts key into the Action Key Registry and records
// the Handle naming it, so a later WireKey/CancelWireKey call can translate
// between key's in-process identity and its wire encoding. Callers must
// hold s.mu.
func (s *Scheduler) registerKeyLocked(key action.Key) {
	if s.keyHandles == nil {
		s.keyHandles = make(map[*atomic.Bool]registry.Handle)
	}
	s.keyHandles[key.Identity()] = s.keys.Insert(key)
}

// forgetKeyLocked frees key's registry slot, if any, bumping its
// generation so a wire.Key encoded before this call is rejected by
// CancelWireKey as stale rather than silently resolving to whatever action
// later reuses the slot. Callers must hold s.mu.
func (s *Scheduler) forgetKeyLocked(key action.Key) {
	if !key.Valid() {
		return
	}
	h, ok := s.keyHandles[key.Identity()]
	if !ok {
		return
	}
	delete(s.keyHandles, key.Identity())
	_ = s.keys.Remove(h)
}

// WireKey returns the RPC-boundary encoding of key: the (index, generation)
// pair a host can carry across a wire boundary and later present to
// CancelWireKey. ok is false if key is not a currently live key issued by
// this Scheduler (the zero Key, an already-fired one-shot action, or one
// already forgotten by Cancel).
func (s *Scheduler) WireKey(key action.Key) (wire.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.keyHandles[key.Identity()]
	if !ok {
		return wire.Key{}, false
	}
	return wire.Key{Subkey1: h.Index, Subkey2: h.Generation}, true
}

// CancelWireKey is Cancel's RPC-boundary counterpart: it resolves wk
// through the Action Key Registry before cancelling, so a cancellation
// request racing with key reuse — wk naming a slot whose generation has
// since moved on to a different action, or one already consumed — is
// rejected as ErrCodeInvalidKey instead of silently cancelling the wrong
// action.
func (s *Scheduler) CancelWireKey(wk wire.Key) error {
	s.mu.Lock()
	key, ok := s.keys.Get(registry.Handle{Index: wk.Subkey1, Generation: wk.Subkey2})
	s.mu.Unlock()
	if !ok {
		return wire.NewError(wire.ErrCodeInvalidKey, "no live action for wire key %+v", wk)
	}
	s.Cancel(key)
	return nil
}

// calendarChain tracks the cron.Schedule and factory backing a
// ScheduleCalendar key, so ReArmCalendar can compute the next match
// without the caller having to re-parse the expression.
type calendarChain struct {
	expr     string
	schedule cron.Schedule
	factory  func() action.Func
}

// calendarChains maps an action.Key's identity (its cancel flag pointer)
// to its calendar chain bookkeeping. Keyed by the flag pointer since
// action.Key itself holds no other comparable identity.
type calendarChains struct {
	m map[*atomic.Bool]calendarChain
}

func (c *calendarChains) set(key action.Key, chain calendarChain) {
	if c.m == nil {
		c.m = make(map[*atomic.Bool]calendarChain)
	}
	c.m[key.Identity()] = chain
}

func (c *calendarChains) get(key action.Key) (calendarChain, bool) {
	if c.m == nil {
		return calendarChain{}, false
	}
	chain, ok := c.m[key.Identity()]
	return chain, ok
}

// New creates a Scheduler whose virtual clock starts at start.
func New(start vtime.MonotonicTime, opts ...Option) *Scheduler {
	s := &Scheduler{
		q:    newQueue(),
		now:  start,
		keys: registry.New[action.Key](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the scheduler's current virtual time.
func (s *Scheduler) Now() vtime.MonotonicTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AdvanceTo moves the scheduler's notion of "now" forward. It is the
// simulation loop's responsibility to call this, never a model handler's;
// deadlines are validated against it at schedule time.
func (s *Scheduler) AdvanceTo(t vtime.MonotonicTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Before(s.now) {
		return fmt.Errorf("scheduler: cannot move time backward from %s to %s", s.now, t)
	}
	s.now = t
	return nil
}

// Schedule enqueues fn, anonymous and uncancellable, to run at deadline.
func (s *Scheduler) Schedule(deadline vtime.MonotonicTime, fn action.Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(deadline, action.Entry{Run: fn})
}

// ScheduleKeyed enqueues fn to run at deadline and returns a Key that may
// be used to cancel it before it fires.
func (s *Scheduler) ScheduleKeyed(deadline vtime.MonotonicTime, fn action.Func) (action.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := action.NewKey()
	if err := s.scheduleLocked(deadline, action.Entry{Run: fn, Key: key}); err != nil {
		return action.Key{}, err
	}
	s.registerKeyLocked(key)
	return key, nil
}

// SchedulePeriodic enqueues the first invocation produced by factory at
// deadline; after each firing a fresh invocation is scheduled at
// previousDeadline + period using the same factory, indefinitely.
func (s *Scheduler) SchedulePeriodic(deadline vtime.MonotonicTime, period vtime.Duration, factory func() action.Func) error {
	if period.IsZero() {
		return ErrInvalidPeriod
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedulePeriodicLocked(deadline, period, action.Entry{Run: factory(), Factory: factory}, action.Key{})
}

// ScheduleKeyedPeriodic is SchedulePeriodic with a Key; cancelling the key
// stops the chain at its next pop rather than rescheduling it again.
func (s *Scheduler) ScheduleKeyedPeriodic(deadline vtime.MonotonicTime, period vtime.Duration, factory func() action.Func) (action.Key, error) {
	if period.IsZero() {
		return action.Key{}, ErrInvalidPeriod
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := action.NewKey()
	if err := s.schedulePeriodicLocked(deadline, period, action.Entry{Run: factory(), Key: key, Factory: factory}, key); err != nil {
		return action.Key{}, err
	}
	s.registerKeyLocked(key)
	return key, nil
}

func (s *Scheduler) scheduleLocked(deadline vtime.MonotonicTime, entry action.Entry) error {
	if deadline.Before(s.now) {
		return ErrDeadlineInPast
	}
	s.q.push(&queueEntry{deadline: deadline, seq: s.seq.Add(1), entry: entry})
	s.emit(eventTypeScheduled, entry.Key)
	return nil
}

func (s *Scheduler) schedulePeriodicLocked(deadline vtime.MonotonicTime, period vtime.Duration, entry action.Entry, key action.Key) error {
	if deadline.Before(s.now) {
		return ErrDeadlineInPast
	}
	s.q.push(&queueEntry{deadline: deadline, seq: s.seq.Add(1), entry: entry, period: period, periodic: true})
	s.emit(eventTypeScheduled, key)
	return nil
}

// PopNext removes and returns the action due soonest, skipping (and, for
// periodic chains, permanently dropping) any entry whose key has been
// cancelled. Periodic entries that are not cancelled are re-armed at
// deadline+period before the current firing is returned, so the chain
// survives even though execution is asynchronous on the executor.
func (s *Scheduler) PopNext() (deadline vtime.MonotonicTime, fn action.Func, key action.Key, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		qe, popped := s.q.popMin()
		if !popped {
			return vtime.MonotonicTime{}, nil, action.Key{}, false
		}

		cancelled := qe.entry.Key.Valid() && qe.entry.Key.IsCancelled()
		if cancelled {
			s.forgetKeyLocked(qe.entry.Key) // chain stops here; not re-armed
			continue
		}

		if qe.periodic {
			next, err := qe.deadline.Add(qe.period)
			if err == nil {
				nextFn := qe.entry.Factory()
				s.q.push(&queueEntry{
					deadline: next, seq: s.seq.Add(1),
					entry:    action.Entry{Run: nextFn, Key: qe.entry.Key, Factory: qe.entry.Factory},
					period:   qe.period, periodic: true,
				})
			} else {
				s.forgetKeyLocked(qe.entry.Key) // chain can't re-arm; nothing left to cancel
			}
		} else if qe.entry.Key.Valid() {
			// A calendar-keyed entry looks one-shot here (ReArmCalendar, not
			// this loop, re-enqueues it), but its key stays live across
			// firings just like a periodic key does.
			if _, isCalendar := s.calendarChains.get(qe.entry.Key); !isCalendar {
				s.forgetKeyLocked(qe.entry.Key)
			}
		}

		return qe.deadline, qe.entry.Run, qe.entry.Key, true
	}
}

// PeekDeadline returns the deadline of the next unpopped entry without
// removing it.
func (s *Scheduler) PeekDeadline() (vtime.MonotonicTime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qe, ok := s.q.peekMin()
	if !ok {
		return vtime.MonotonicTime{}, false
	}
	return qe.deadline, true
}

// Len reports the number of entries still in the queue (including ones
// that will be skipped as cancelled on pop).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.len()
}

// Cancel marks key's flag, preventing the action it names from running, and
// frees its Action Key Registry slot so a later CancelWireKey call against
// the same wire encoding is rejected as stale rather than reused.
func (s *Scheduler) Cancel(key action.Key) {
	key.Cancel()
	s.mu.Lock()
	s.forgetKeyLocked(key)
	s.mu.Unlock()
	s.emit(eventTypeCancelled, key)
}

// Halt sets the scheduler's halt flag; the simulation loop checks it at
// each epoch boundary. Already-dispatched handlers are not preempted.
func (s *Scheduler) Halt() {
	s.halted.Store(true)
	s.emit(eventTypeHalted, action.Key{})
}

// IsHalted reports whether Halt has been called.
func (s *Scheduler) IsHalted() bool {
	return s.halted.Load()
}

// ScheduleCalendar parses a standard 5-field cron expression and schedules
// factory's next invocation at the next wall-clock-shaped instant strictly
// after startAfter, mapping MonotonicTime seconds onto a Unix timestamp for
// the sole purpose of cron evaluation. On firing it computes the
// subsequent match and re-schedules under the same key, functionally
// equivalent to ScheduleKeyedPeriodic but with calendar semantics instead
// of a fixed duration.
func (s *Scheduler) ScheduleCalendar(expr string, startAfter vtime.MonotonicTime, factory func() action.Func) (action.Key, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return action.Key{}, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}

	next := nextCalendarMatch(schedule, startAfter)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := action.NewKey()
	entry := action.Entry{Run: factory(), Key: key}
	if err := s.scheduleLocked(next, entry); err != nil {
		return action.Key{}, err
	}
	s.registerKeyLocked(key)
	s.calendarChains.set(key, calendarChain{expr: expr, schedule: schedule, factory: factory})
	return key, nil
}

func nextCalendarMatch(schedule cron.Schedule, after vtime.MonotonicTime) vtime.MonotonicTime {
	wallAfter := time.Unix(after.Seconds, int64(after.SubsecNanos)).UTC()
	wallNext := schedule.Next(wallAfter)
	return vtime.MonotonicTime{Seconds: wallNext.Unix(), SubsecNanos: uint32(wallNext.Nanosecond())}
}

// ReArmCalendar re-enqueues the next occurrence for a key previously
// scheduled via ScheduleCalendar, and is a no-op for any other key. The
// simulation loop calls this for every action it pops, in place of the
// automatic re-arming
// SchedulePeriodic does inline at pop time — cron's "next match" depends
// on wall-clock-shaped semantics the pop path does not otherwise compute.
func (s *Scheduler) ReArmCalendar(key action.Key, firedAt vtime.MonotonicTime) error {
	s.mu.Lock()
	chain, ok := s.calendarChains.get(key)
	s.mu.Unlock()
	if !ok || key.IsCancelled() {
		return nil
	}

	next := nextCalendarMatch(chain.schedule, firedAt)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(next, action.Entry{Run: chain.factory(), Key: key})
}

const (
	eventTypeScheduled = "io.asynchronix.scheduler.scheduled"
	eventTypeCancelled = "io.asynchronix.scheduler.cancelled"
	eventTypeHalted    = "io.asynchronix.scheduler.halted"
)

func (s *Scheduler) emit(eventType string, key action.Key) {
	if s.emitter == nil {
		return
	}
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource("asynchronix/scheduler")
	event.SetType(eventType)
	event.SetTime(time.Now())
	_ = s.emitter.EmitEvent(context.Background(), event)
}
