package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_CheckAcquireReleaseRoundTrip(t *testing.T) {
	g := NewGuard(Config{MaxGlobalConcurrency: 2, MaxUserConcurrency: 2, WindowMS: 60000, MaxGlobalPerWindow: 100, MaxUserPerWindow: 100, QuotaRejectPercent: 5, GCIntervalMS: 60000})
	defer g.Shutdown()

	r := g.Check("A")
	require.True(t, r.Allowed)
	g.Acquire("A")

	stats := g.Stats()
	assert.Equal(t, 1, stats.Concurrency.GlobalActive)

	g.Release("A")
	stats = g.Stats()
	assert.Equal(t, 0, stats.Concurrency.GlobalActive)
}

func TestGuard_CheckOrderConcurrencyFirst(t *testing.T) {
	g := NewGuard(Config{MaxGlobalConcurrency: 1, MaxUserConcurrency: 1, WindowMS: 60000, MaxGlobalPerWindow: 1, MaxUserPerWindow: 1, QuotaRejectPercent: 5, GCIntervalMS: 60000})
	defer g.Shutdown()

	g.Acquire("A")
	r := g.Check("A")
	require.False(t, r.Allowed)
	assert.Contains(t, r.Reason, "maximum capacity")
}

func TestGuard_ShutdownStopsGC(t *testing.T) {
	g := NewGuard(Config{GCIntervalMS: 10})
	g.Shutdown()
	// calling Shutdown twice must not panic or deadlock.
	g.Shutdown()
}
