package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/observability"
)

// releaser is the subset of the rate-limit guard the reaper needs: giving
// back a concurrency slot for an identity.
type releaser interface {
	Release(identity string)
}

// Reaper periodically scans the job store for jobs stuck in processing past
// the configured timeout, marks them failed, and releases their admission
// slot. It races with the engine's session task to finalize the same job;
// exactly one of the two performs the release, because both finalize through
// AgentJob.Finalize, which runs only the first caller's function.
type Reaper struct {
	store    *Store
	guard    releaser
	timeout  time.Duration
	interval time.Duration
}

// NewReaper builds a reaper over store, releasing slots on guard.
func NewReaper(store *Store, guard releaser, timeout, interval time.Duration) *Reaper {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{store: store, guard: guard, timeout: timeout, interval: interval}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweepOnce()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale job reaper stopping")
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Reaper) sweepOnce() {
	now := time.Now()
	var reaped int
	r.store.ForEachProcessing(func(job *domain.AgentJob) {
		if now.Sub(job.CreatedAt) <= r.timeout {
			return
		}
		seconds := int(r.timeout.Seconds())
		msg := fmt.Sprintf("Job timed out after %ds without completing.", seconds)
		job.Finalize(func() {
			if job.Fail(msg, now) {
				r.guard.Release(job.IdentityKey)
				observability.StaleJobsReapedTotal.Inc()
				observability.AgentJobsCompletedTotal.WithLabelValues("failed").Inc()
				reaped++
				slog.Warn("stale job reaped", slog.String("job_id", job.ID), slog.String("identity", job.IdentityKey))
			}
		})
	})
}
