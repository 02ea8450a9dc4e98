package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter(burst int, interval time.Duration, clock *time.Time) *eventLimiter {
	l := newEventLimiter(burst, interval)
	l.now = func() time.Time { return *clock }
	l.lastEvent = *clock
	return l
}

func TestEventLimiterExhaustsBurst(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(3, time.Second, &clock)

	for i := 0; i < 3; i++ {
		require.True(t, l.allow(), "event %d should fit in the burst", i)
	}
	require.False(t, l.allow())
	require.False(t, l.allow())
}

func TestEventLimiterRefillsOverTime(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(2, time.Second, &clock)

	require.True(t, l.allow())
	require.True(t, l.allow())
	require.False(t, l.allow())

	clock = clock.Add(500 * time.Millisecond)
	require.True(t, l.allow(), "half the interval should refill one token")
	require.False(t, l.allow())
}

func TestEventLimiterIdleCapsAtBurst(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(2, time.Second, &clock)

	clock = clock.Add(time.Minute)
	require.True(t, l.allow())
	require.True(t, l.allow())
	require.False(t, l.allow(), "idle time must not bank more than the burst")
}

func TestNewEventLimiterSanitizesConfig(t *testing.T) {
	l := newEventLimiter(0, 0)

	require.True(t, l.allow())
	require.False(t, l.allow())
}
