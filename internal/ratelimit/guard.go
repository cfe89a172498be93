package ratelimit

import (
	"sync"
	"time"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/observability"
)

// Guard composes the concurrency tracker, sliding-window limiter, and quota
// monitor into one check-acquire-release protocol, and owns the periodic GC
// timer that sweeps the window and quota state. Check and Acquire are serialized under the
// same mutex so a passed check cannot be invalidated by a concurrent
// admission racing in between the two calls.
type Guard struct {
	mu sync.Mutex

	concurrency *ConcurrencyTracker
	window      *SlidingWindowRateLimiter
	quota       *QuotaMonitor
	cfg         Config

	stopGC chan struct{}
	gcDone chan struct{}
}

// NewGuard builds a guard from a normalized config and starts its GC loop.
func NewGuard(cfg Config) *Guard {
	cfg = cfg.Normalize()
	g := &Guard{
		concurrency: NewConcurrencyTracker(cfg.MaxGlobalConcurrency, cfg.MaxUserConcurrency),
		window:      NewSlidingWindowRateLimiter(cfg.WindowMS, cfg.MaxGlobalPerWindow, cfg.MaxUserPerWindow),
		quota:       NewQuotaMonitor(cfg.QuotaRejectPercent),
		cfg:         cfg,
		stopGC:      make(chan struct{}),
		gcDone:      make(chan struct{}),
	}
	go g.gcLoop()
	return g
}

// Quota exposes the quota monitor so callers can feed it usage snapshots via
// QuotaMonitor.Update. Nothing in the agent engine or the runtime client
// calls Update, so the quota stage of Check allows every identity unless
// some caller supplies snapshots.
func (g *Guard) Quota() *QuotaMonitor { return g.quota }

// Check evaluates concurrency, then the sliding window, then quota, in that
// fixed order (cheapest first, most informative last), returning the first
// rejection encountered or an allowed result.
func (g *Guard) Check(identity string) CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r := g.concurrency.CanAcquire(identity); !r.Allowed {
		observability.RateLimitRejectionsTotal.WithLabelValues("concurrency").Inc()
		return r
	}
	if r := g.window.Check(identity); !r.Allowed {
		observability.RateLimitRejectionsTotal.WithLabelValues("window").Inc()
		return r
	}
	if r := g.quota.Check(identity); !r.Allowed {
		observability.RateLimitRejectionsTotal.WithLabelValues("quota").Inc()
		return r
	}
	return allow()
}

// Acquire takes a concurrency slot and records a window admission together,
// under the same lock Check used, so the pair behaves as one atomic section.
func (g *Guard) Acquire(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.concurrency.Acquire(identity)
	g.window.Record(identity)
}

// Release gives back only the concurrency slot; rate-limit timestamps are
// left to age out of the window naturally.
func (g *Guard) Release(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.concurrency.Release(identity)
}

// GuardStats bundles a concurrency snapshot with the config fields useful
// for observability surfaces like scorch_agent_rate_limit_status.
type GuardStats struct {
	Concurrency Stats
	Config      Config
}

// Stats returns a snapshot of concurrency state and the guard's config.
func (g *Guard) Stats() GuardStats {
	return GuardStats{Concurrency: g.concurrency.Stats(), Config: g.cfg}
}

func (g *Guard) gcLoop() {
	defer close(g.gcDone)
	ticker := time.NewTicker(time.Duration(g.cfg.GCIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopGC:
			return
		case <-ticker.C:
			g.window.GC()
			g.quota.GC()
		}
	}
}

// Shutdown cancels the internal GC timer and waits for its goroutine to
// exit, so callers can rely on it not firing again after return.
func (g *Guard) Shutdown() {
	select {
	case <-g.stopGC:
		// already closed
	default:
		close(g.stopGC)
	}
	<-g.gcDone
}
