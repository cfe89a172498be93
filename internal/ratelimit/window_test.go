package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowRateLimiter_Scenario2(t *testing.T) {
	l := NewSlidingWindowRateLimiter(500, 1000, 3)

	for i := 0; i < 3; i++ {
		r := l.Check("U")
		require.True(t, r.Allowed)
		l.Record("U")
	}

	r := l.Check("U")
	require.False(t, r.Allowed)
	assert.GreaterOrEqual(t, r.RetryAfterS, 1)

	time.Sleep(550 * time.Millisecond)
	r = l.Check("U")
	assert.True(t, r.Allowed)
}

func TestSlidingWindowRateLimiter_GlobalLimitIndependentOfIdentity(t *testing.T) {
	l := NewSlidingWindowRateLimiter(1000, 2, 100)
	l.Record("A")
	l.Record("B")
	r := l.Check("C")
	assert.False(t, r.Allowed)
}

func TestSlidingWindowRateLimiter_GCPrunesOldEntries(t *testing.T) {
	l := NewSlidingWindowRateLimiter(50, 100, 100)
	l.Record("A")
	time.Sleep(80 * time.Millisecond)
	l.GC()
	r := l.Check("A")
	assert.True(t, r.Allowed)
}
