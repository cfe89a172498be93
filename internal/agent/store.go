// Package agent implements the asynchronous agent job engine: the job
// store, the stale-job reaper, the session-client cache, the error hook, and
// the engine that ties them together with the admission guard and the
// downstream scraping/LLM runtime clients.
package agent

import (
	"sync"
	"time"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
)

// Store is the mapping from job id to job record, and the source of truth
// for status polling. Jobs are created at admission and mutated only by the
// engine's session task and by the reaper; they are never destroyed, though
// an implementation-defined retention sweep may evict old terminal jobs.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.AgentJob
}

// NewStore builds an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*domain.AgentJob)}
}

// Put inserts a freshly admitted job record.
func (s *Store) Put(job *domain.AgentJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Get returns the job record for id, or ok=false when it was never admitted
// or has since been evicted by retention.
func (s *Store) Get(id string) (*domain.AgentJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// EvictOlderThan removes completed/failed jobs whose CompletedAt predates
// the cutoff, bounding memory growth for long-running processes. The spec
// leaves retention policy implementation-defined; this sweep is conservative
// and only touches terminal jobs.
func (s *Store) EvictOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, j := range s.jobs {
		snap := j.Snapshot()
		if (snap.Status == domain.JobStatusCompleted || snap.Status == domain.JobStatusFailed) &&
			!snap.CompletedAt.IsZero() && snap.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			evicted++
		}
	}
	return evicted
}

// ForEachProcessing calls fn for every job currently in processing status.
// Used by the stale-job reaper to find sweep candidates. The job pointers are
// copied under the read lock and fn runs after the lock is released.
func (s *Store) ForEachProcessing(fn func(*domain.AgentJob)) {
	s.mu.RLock()
	jobs := make([]*domain.AgentJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()
	for _, j := range jobs {
		if j.IsProcessing() {
			fn(j)
		}
	}
}
