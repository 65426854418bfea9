package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T) (*SlidingResetLimiter, *time.Time) {
	t.Helper()
	l := NewSlidingResetLimiter()
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterCountsAttempts(t *testing.T) {
	l, _ := testLimiter(t)
	window := 15 * time.Minute

	for i, wantRemaining := range []int{4, 3, 2, 1, 0} {
		res := l.Check("login:1.2.3.4", 5, window)
		require.True(t, res.Allowed, "attempt %d", i+1)
		require.Equal(t, wantRemaining, res.Remaining, "attempt %d", i+1)
	}

	res := l.Check("login:1.2.3.4", 5, window)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
	require.Greater(t, res.RetryAfterSeconds, 0)

	// Other keys are unaffected
	res = l.Check("login:5.6.7.8", 5, window)
	require.True(t, res.Allowed)
	require.Equal(t, 4, res.Remaining)
}

func TestLimiterReset(t *testing.T) {
	l, _ := testLimiter(t)
	window := 15 * time.Minute

	for i := 0; i < 6; i++ {
		l.Check("k", 5, window)
	}
	require.False(t, l.Check("k", 5, window).Allowed)

	l.Reset("k")
	res := l.Check("k", 5, window)
	require.True(t, res.Allowed)
	require.Equal(t, 4, res.Remaining)

	// Resetting a key with no record is a no-op
	l.Reset("never-seen")
}

func TestLimiterWindowElapses(t *testing.T) {
	l, now := testLimiter(t)
	window := time.Minute

	for i := 0; i < 6; i++ {
		l.Check("k", 5, window)
	}
	require.False(t, l.Check("k", 5, window).Allowed)

	*now = now.Add(window)
	res := l.Check("k", 5, window)
	require.True(t, res.Allowed)
	require.Equal(t, 4, res.Remaining)
}

func TestLimiterSweep(t *testing.T) {
	l, now := testLimiter(t)

	l.Check("short", 5, time.Minute)
	l.Check("long", 5, time.Hour)

	*now = now.Add(2 * time.Minute)
	l.Sweep()

	l.mu.Lock()
	_, shortKept := l.entries["short"]
	_, longKept := l.entries["long"]
	l.mu.Unlock()
	require.False(t, shortKept)
	require.True(t, longKept)
}
