// Package vtime defines the simulation's virtual timeline: a monotonic,
// saturating (seconds, subsec_nanos) timestamp pair and a non-negative
// elapsed duration, independent of wall-clock time.
package vtime

import (
	"errors"
	"fmt"
	"math"
)

const nanosPerSecond = 1_000_000_000

// ErrOverflow is returned when adding a Duration to a MonotonicTime would
// exceed the representable range.
var ErrOverflow = errors.New("vtime: time addition overflowed")

// ErrNegativeDuration is returned by NewDuration when seconds is negative.
var ErrNegativeDuration = errors.New("vtime: duration must be non-negative")

// MonotonicTime is a point on the simulation's virtual timeline.
// SubsecNanos is always in [0, 1e9).
type MonotonicTime struct {
	Seconds     int64
	SubsecNanos uint32
}

// EPOCH is the origin of the virtual timeline.
var EPOCH = MonotonicTime{}

// Duration is a non-negative elapsed span of virtual time.
type Duration struct {
	Seconds     int64
	SubsecNanos uint32
}

// NewDuration constructs a Duration, normalizing subsecNanos >= 1e9 into
// whole seconds and rejecting a negative span.
func NewDuration(seconds int64, subsecNanos uint32) (Duration, error) {
	if seconds < 0 {
		return Duration{}, ErrNegativeDuration
	}
	extraSeconds := int64(subsecNanos / nanosPerSecond)
	subsecNanos %= nanosPerSecond
	seconds += extraSeconds
	if seconds < 0 {
		return Duration{}, ErrOverflow
	}
	return Duration{Seconds: seconds, SubsecNanos: subsecNanos}, nil
}

// IsZero reports whether d is the zero duration.
func (d Duration) IsZero() bool {
	return d.Seconds == 0 && d.SubsecNanos == 0
}

// Compare returns -1, 0, or 1 as d is less than, equal to, or greater than other.
func (d Duration) Compare(other Duration) int {
	if d.Seconds != other.Seconds {
		if d.Seconds < other.Seconds {
			return -1
		}
		return 1
	}
	switch {
	case d.SubsecNanos < other.SubsecNanos:
		return -1
	case d.SubsecNanos > other.SubsecNanos:
		return 1
	default:
		return 0
	}
}

// Add returns t advanced by d, saturating at math.MaxInt64 seconds
// and reporting ErrOverflow if the addition would exceed that bound.
func (t MonotonicTime) Add(d Duration) (MonotonicTime, error) {
	nanos := t.SubsecNanos + d.SubsecNanos
	carry := int64(nanos / nanosPerSecond)
	nanos %= nanosPerSecond

	seconds := t.Seconds
	if seconds > math.MaxInt64-d.Seconds-carry {
		return MonotonicTime{Seconds: math.MaxInt64, SubsecNanos: nanosPerSecond - 1}, ErrOverflow
	}
	seconds += d.Seconds + carry

	return MonotonicTime{Seconds: seconds, SubsecNanos: nanos}, nil
}

// Sub returns the Duration between t and earlier, panicking-free: if
// earlier is after t, the zero Duration and false are returned.
func (t MonotonicTime) Sub(earlier MonotonicTime) (Duration, bool) {
	if t.Compare(earlier) < 0 {
		return Duration{}, false
	}
	nanos := int64(t.SubsecNanos) - int64(earlier.SubsecNanos)
	seconds := t.Seconds - earlier.Seconds
	if nanos < 0 {
		nanos += nanosPerSecond
		seconds--
	}
	return Duration{Seconds: seconds, SubsecNanos: uint32(nanos)}, true
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after other,
// giving MonotonicTime a total order.
func (t MonotonicTime) Compare(other MonotonicTime) int {
	if t.Seconds != other.Seconds {
		if t.Seconds < other.Seconds {
			return -1
		}
		return 1
	}
	switch {
	case t.SubsecNanos < other.SubsecNanos:
		return -1
	case t.SubsecNanos > other.SubsecNanos:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly before other.
func (t MonotonicTime) Before(other MonotonicTime) bool { return t.Compare(other) < 0 }

// After reports whether t is strictly after other.
func (t MonotonicTime) After(other MonotonicTime) bool { return t.Compare(other) > 0 }

// String renders t as "<seconds>.<nanos>s" for debug output.
func (t MonotonicTime) String() string {
	return fmt.Sprintf("%d.%09ds", t.Seconds, t.SubsecNanos)
}

// String renders d as "<seconds>.<nanos>s" for debug output.
func (d Duration) String() string {
	return fmt.Sprintf("%d.%09ds", d.Seconds, d.SubsecNanos)
}
