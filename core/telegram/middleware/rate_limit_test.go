package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingWindowBudget(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lim := NewSlidingWindow(3, time.Minute)
	lim.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.False(t, lim.IsLimited(7), "request %d should pass", i)
	}
	require.True(t, lim.IsLimited(7))
	require.Equal(t, 0, lim.remaining(7))

	// Another user has an independent budget.
	require.False(t, lim.IsLimited(8))
	require.Equal(t, 2, lim.remaining(8))
}

func TestSlidingWindowSlides(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lim := NewSlidingWindow(2, time.Minute)
	lim.now = func() time.Time { return now }

	require.False(t, lim.IsLimited(7))
	now = now.Add(40 * time.Second)
	require.False(t, lim.IsLimited(7))
	require.True(t, lim.IsLimited(7))

	// The first request leaves the window, freeing one slot.
	now = now.Add(25 * time.Second)
	require.False(t, lim.IsLimited(7))
	require.True(t, lim.IsLimited(7))
}

func TestSlidingWindowDefaults(t *testing.T) {
	lim := NewSlidingWindow(0, 0)
	require.Equal(t, 10, lim.maxRequests)
	require.Equal(t, time.Minute, lim.window)
}
