// Package domain holds the core types and port interfaces shared across the
// admission core, the agent job engine, and the local-fetch scraper.
package domain

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Sentinel errors returned by the admission core, the agent engine, and the
// local-fetch scraper. Callers use errors.Is against these to decide how to
// map a failure onto an MCP tool result.
var (
	ErrRateLimited       = errors.New("rate limited")
	ErrModelNotAllowed   = errors.New("model not allowed")
	ErrJobNotFound       = errors.New("job not found")
	ErrUpstreamFailure   = errors.New("upstream scraping engine failure")
	ErrAgentFailed       = errors.New("agent run failed")
	ErrLocalFetchFailed  = errors.New("local fetch failed")
	ErrSPAShellDetected  = errors.New("page is a SPA shell with no server-rendered content")
	ErrFormatNeedsServer = errors.New("requested format requires the scraping engine")
)

// JobStatus is the lifecycle state of an agent job.
type JobStatus string

const (
	JobStatusProcessing  JobStatus = "processing"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusRateLimited JobStatus = "rate_limited"
)

// MaxPromptLength is the hard cap on an agent job's prompt, enforced at
// admission time before any concurrency slot is taken.
const MaxPromptLength = 10000

// AgentJob is the full record for one scorch_agent invocation. It is mutated
// in place by the engine goroutine, the reaper, and read by status polls;
// all field access beyond construction goes through its own mutex since two
// goroutines (the session task and the reaper) can race to finalize it.
type AgentJob struct {
	ID          string
	IdentityKey string
	Prompt      string
	Model       string
	CreatedAt   time.Time

	mu          sync.Mutex
	status      JobStatus
	progress    string
	result      string
	errMsg      string
	updatedAt   time.Time
	completedAt time.Time

	// finalizeOnce guards the exactly-once release of this job's concurrency
	// slot: whichever of {engine completion, reaper timeout} transitions the
	// job out of processing first performs the release, the other is a no-op.
	finalizeOnce sync.Once
}

// NewAgentJob constructs a job record in the processing state.
func NewAgentJob(id, identityKey, prompt, model string, createdAt time.Time) *AgentJob {
	return &AgentJob{
		ID:          id,
		IdentityKey: identityKey,
		Prompt:      prompt,
		Model:       model,
		CreatedAt:   createdAt,
		status:      JobStatusProcessing,
		updatedAt:   createdAt,
	}
}

// Snapshot is an immutable, consistent view of a job's mutable fields for
// status polling and serialization.
type Snapshot struct {
	ID          string
	Status      JobStatus
	Progress    string
	Result      string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// Snapshot returns a consistent copy of the job's current mutable state.
func (j *AgentJob) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:          j.ID,
		Status:      j.status,
		Progress:    j.progress,
		Result:      j.result,
		Error:       j.errMsg,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.updatedAt,
		CompletedAt: j.completedAt,
	}
}

// SetProgress updates the human-readable phase string.
func (j *AgentJob) SetProgress(progress string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = progress
	j.updatedAt = time.Now()
}

// IsProcessing reports whether the job is still in the processing state.
func (j *AgentJob) IsProcessing() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == JobStatusProcessing
}

// Complete transitions the job to completed with the given result, but only
// if it is still processing. Returns false if another goroutine already
// finalized it first (e.g. the reaper timed it out).
func (j *AgentJob) Complete(result string, completedAt time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != JobStatusProcessing {
		return false
	}
	j.status = JobStatusCompleted
	j.result = result
	j.completedAt = completedAt
	j.updatedAt = completedAt
	return true
}

// Fail transitions the job to failed with the given error message, but only
// if it is still processing. Returns false if another goroutine already
// finalized it first.
func (j *AgentJob) Fail(errMsg string, completedAt time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != JobStatusProcessing {
		return false
	}
	j.status = JobStatusFailed
	j.errMsg = errMsg
	j.completedAt = completedAt
	j.updatedAt = completedAt
	return true
}

// Finalize runs fn exactly once for this job, regardless of how many
// goroutines (the engine worker, the reaper) race to finalize it.
func (j *AgentJob) Finalize(fn func()) {
	j.finalizeOnce.Do(fn)
}

// ScrapeRequest is the normalized request shape shared by scorch_scrape,
// scorch_map, scorch_search, scorch_crawl, and scorch_extract before they
// diverge into engine-specific payloads.
type ScrapeRequest struct {
	URL     string
	Formats []string
	Query   string
	Schema  map[string]any
	Options map[string]any
}

// ScrapeResult is the normalized response shape returned to the MCP layer
// for rendering into a tool result.
type ScrapeResult struct {
	URL      string
	Markdown string
	HTML     string
	Links    []string
	Metadata map[string]any
	Warning  string
}

// CrawlStatus is the polled state of an in-progress scorch_crawl job.
type CrawlStatus struct {
	ID       string
	Status   string
	Total    int
	Completed int
	Data     []ScrapeResult
}

// ScrapingEngineClient is the port to the downstream scraping engine's HTTP
// API. Implementations must be safe for concurrent use.
type ScrapingEngineClient interface {
	Scrape(ctx context.Context, req ScrapeRequest) (ScrapeResult, error)
	Map(ctx context.Context, req ScrapeRequest) ([]string, error)
	Search(ctx context.Context, req ScrapeRequest) ([]ScrapeResult, error)
	Crawl(ctx context.Context, req ScrapeRequest) (string, error)
	CrawlStatus(ctx context.Context, id string) (CrawlStatus, error)
	Extract(ctx context.Context, req ScrapeRequest) (ScrapeResult, error)
}

// AgentSessionRuntime is the port to the LLM-driven Copilot agent runtime
// that actually executes a scorch_agent prompt. One runtime handle is cached
// per identity key by the session client cache.
type AgentSessionRuntime interface {
	// Run executes prompt against model and returns the final textual result.
	// jobID scopes the session's error hook to this job. Implementations
	// should report incremental progress through onProgress when the
	// underlying runtime supports streaming status.
	Run(ctx context.Context, jobID, prompt, model string, onProgress func(string)) (string, error)
	// Close releases any resources (subprocess, connection) held by the runtime.
	Close() error
}

//go:generate mockery --name=ScrapingEngineClient --with-expecter
//go:generate mockery --name=AgentSessionRuntime --with-expecter
