package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyTracker_Scenario1(t *testing.T) {
	tr := NewConcurrencyTracker(3, 2)

	tr.Acquire("A")
	tr.Acquire("A")
	r := tr.CanAcquire("A")
	require.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "concurrent agent jobs")

	r = tr.CanAcquire("B")
	assert.True(t, r.Allowed)

	tr.Acquire("B")
	tr.Acquire("C")
	r = tr.CanAcquire("D")
	require.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "maximum capacity")
}

func TestConcurrencyTracker_AcquireReleaseInvariant(t *testing.T) {
	tr := NewConcurrencyTracker(100, 100)
	for i := 0; i < 10; i++ {
		tr.Acquire("X")
	}
	for i := 0; i < 4; i++ {
		tr.Release("X")
	}
	stats := tr.Stats()
	assert.Equal(t, 6, stats.GlobalActive)
	assert.Equal(t, 6, stats.PerIdentity["X"])
}

func TestConcurrencyTracker_ReleaseSaturatesAtZero(t *testing.T) {
	tr := NewConcurrencyTracker(10, 10)
	tr.Release("nobody")
	tr.Release("nobody")
	stats := tr.Stats()
	assert.Equal(t, 0, stats.GlobalActive)
	assert.NotContains(t, stats.PerIdentity, "nobody")
}

func TestConcurrencyTracker_IdentityRemovedAtZero(t *testing.T) {
	tr := NewConcurrencyTracker(10, 10)
	tr.Acquire("A")
	tr.Release("A")
	stats := tr.Stats()
	assert.NotContains(t, stats.PerIdentity, "A")
}

func TestConcurrencyTracker_RejectionsDoNotMutateState(t *testing.T) {
	tr := NewConcurrencyTracker(1, 1)
	tr.Acquire("A")
	before := tr.Stats()
	tr.CanAcquire("B")
	after := tr.Stats()
	assert.Equal(t, before, after)
}
