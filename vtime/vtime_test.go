package vtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDuration_NormalizesOverflowNanos(t *testing.T) {
	d, err := NewDuration(1, 1_500_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Seconds)
	assert.Equal(t, uint32(500_000_000), d.SubsecNanos)
}

func TestNewDuration_RejectsNegative(t *testing.T) {
	_, err := NewDuration(-1, 0)
	assert.ErrorIs(t, err, ErrNegativeDuration)
}

func TestMonotonicTime_Add(t *testing.T) {
	d, _ := NewDuration(2, 700_000_000)
	got, err := MonotonicTime{Seconds: 1, SubsecNanos: 500_000_000}.Add(d)
	require.NoError(t, err)
	assert.Equal(t, MonotonicTime{Seconds: 4, SubsecNanos: 200_000_000}, got)
}

func TestMonotonicTime_Add_Overflow(t *testing.T) {
	d, _ := NewDuration(1, 0)
	_, err := MonotonicTime{Seconds: math.MaxInt64}.Add(d)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMonotonicTime_Sub(t *testing.T) {
	later := MonotonicTime{Seconds: 5, SubsecNanos: 200_000_000}
	earlier := MonotonicTime{Seconds: 3, SubsecNanos: 700_000_000}

	d, ok := later.Sub(earlier)
	require.True(t, ok)
	assert.Equal(t, int64(1), d.Seconds)
	assert.Equal(t, uint32(500_000_000), d.SubsecNanos)
}

func TestMonotonicTime_Sub_EarlierAfterLater(t *testing.T) {
	_, ok := MonotonicTime{Seconds: 1}.Sub(MonotonicTime{Seconds: 2})
	assert.False(t, ok)
}

func TestMonotonicTime_TotalOrder(t *testing.T) {
	a := MonotonicTime{Seconds: 1, SubsecNanos: 0}
	b := MonotonicTime{Seconds: 1, SubsecNanos: 1}
	c := MonotonicTime{Seconds: 2, SubsecNanos: 0}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.True(t, c.After(a))
	assert.Equal(t, 0, a.Compare(a))
}
