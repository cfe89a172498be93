package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/observability"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/ratelimit"
	"github.com/scorchcrawl/scorchcrawl-mcp/pkg/textx"
)

// Guard is the subset of ratelimit.Guard the engine depends on.
type Guard interface {
	Check(identity string) ratelimit.CheckResult
	Acquire(identity string)
	Release(identity string)
	Quota() *ratelimit.QuotaMonitor
	Stats() ratelimit.GuardStats
	Shutdown()
}

// StartRequest is the normalized request to start a scorch_agent job.
type StartRequest struct {
	Prompt         string
	Model          string
	FocusURLs      []string
	OutputSchema   map[string]any
	IdentityToken  string
}

// StartResult mirrors the shape returned to the scorch_agent tool.
type StartResult struct {
	ID           string
	Status       domain.JobStatus
	RateLimited  bool
	RetryAfterS  int
	Error        string
}

// Engine composes the guard, job store, reaper, and session client cache,
// and runs each admitted request's LLM session in the background. The
// scraping tools reach the session through the runtime factory.
type Engine struct {
	guard         Guard
	store         *Store
	reaper        *Reaper
	clients       *SessionClientCache
	allowedModels map[string]bool
	defaultModel  string
	processToken  string

	reaperCtx    context.Context
	reaperCancel context.CancelFunc
}

// EngineConfig bundles the engine's static configuration.
type EngineConfig struct {
	AllowedModels   []string
	DefaultModel    string
	ProcessToken    string
	StaleJobTimeout time.Duration
	GCInterval      time.Duration
}

// NewEngine wires guard, store, a factory-backed session client cache, and
// the stale-job reaper into a running engine. The reaper's background loop
// is started immediately.
func NewEngine(guard Guard, factory RuntimeFactory, cfg EngineConfig) *Engine {
	allowed := make(map[string]bool, len(cfg.AllowedModels))
	for _, m := range cfg.AllowedModels {
		allowed[m] = true
	}
	store := NewStore()
	e := &Engine{
		guard:         guard,
		store:         store,
		clients:       NewSessionClientCache(factory),
		allowedModels: allowed,
		defaultModel:  cfg.DefaultModel,
		processToken:  cfg.ProcessToken,
	}
	e.reaper = NewReaper(store, guard, cfg.StaleJobTimeout, cfg.GCInterval)
	e.reaperCtx, e.reaperCancel = context.WithCancel(context.Background())
	go e.reaper.Run(e.reaperCtx)
	return e
}

// Start runs the admission procedure: identity resolution, job id minting,
// guard check, model validation, slot acquisition, job creation, and
// launching the background session task.
func (e *Engine) Start(ctx context.Context, req StartRequest) StartResult {
	identity := req.IdentityToken
	if identity == "" {
		identity = "__server__"
	}
	id := uuid.NewString()

	if r := e.guard.Check(identity); !r.Allowed {
		return StartResult{ID: id, Status: domain.JobStatusRateLimited, RateLimited: true, RetryAfterS: r.RetryAfterS, Error: r.Reason}
	}

	model := req.Model
	if model == "" {
		model = e.defaultModel
	}
	if !e.allowedModels[model] {
		return StartResult{ID: id, Status: domain.JobStatusFailed, Error: fmt.Sprintf("Model %q is not in the allowed list: %s", model, strings.Join(e.sortedAllowedModels(), ", "))}
	}

	e.guard.Acquire(identity)

	job := domain.NewAgentJob(id, identity, req.Prompt, model, time.Now())
	e.store.Put(job)
	observability.AgentJobsStartedTotal.Inc()

	go e.runSession(job, req)

	return StartResult{ID: id, Status: domain.JobStatusProcessing}
}

func (e *Engine) sortedAllowedModels() []string {
	out := make([]string, 0, len(e.allowedModels))
	for m := range e.allowedModels {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// runSession is the session task body: obtain a runtime client, build the
// tool set and prompt, run the session, and finalize the job exactly once
// regardless of outcome, always releasing the concurrency slot.
func (e *Engine) runSession(job *domain.AgentJob, req StartRequest) {
	ctx := context.Background()
	var released bool
	defer func() {
		if !released {
			job.Finalize(func() { e.guard.Release(job.IdentityKey) })
		}
	}()

	token := req.IdentityToken
	if token == "" {
		token = e.processToken
	}
	client, err := e.clients.Get(ctx, job.IdentityKey, token)
	if err != nil {
		job.Finalize(func() {
			job.Fail(fmt.Sprintf("Agent error: %s", err.Error()), time.Now())
			e.guard.Release(job.IdentityKey)
			released = true
			observability.AgentJobsCompletedTotal.WithLabelValues("failed").Inc()
		})
		return
	}

	prompt := buildUserPrompt(req)
	onProgress := func(phase string) { job.SetProgress(phase) }

	result, err := client.Run(ctx, job.ID, prompt, job.Model, onProgress)

	job.Finalize(func() {
		released = true
		e.guard.Release(job.IdentityKey)
		if err != nil {
			job.Fail(fmt.Sprintf("Agent error: %s", err.Error()), time.Now())
			observability.AgentJobsCompletedTotal.WithLabelValues("failed").Inc()
			return
		}
		if result == "" {
			result = "No response generated"
		}
		job.Complete(result, time.Now())
		observability.AgentJobsCompletedTotal.WithLabelValues("completed").Inc()
	})
}

// buildUserPrompt appends an optional bulleted focus-URL list and a
// serialized output schema to the bare request prompt.
func buildUserPrompt(req StartRequest) string {
	var b strings.Builder
	b.WriteString(textx.SanitizeText(req.Prompt))
	if len(req.FocusURLs) > 0 {
		b.WriteString("\n\nFocus URLs:\n")
		for _, u := range req.FocusURLs {
			b.WriteString("- ")
			b.WriteString(u)
			b.WriteString("\n")
		}
	}
	if len(req.OutputSchema) > 0 {
		if raw, err := json.Marshal(req.OutputSchema); err == nil {
			b.WriteString("\n\nRespond in structured output matching this JSON schema:\n")
			b.Write(raw)
		}
	}
	return b.String()
}

// Status returns a consistent snapshot of the job, or ok=false if it was
// never admitted or has since been evicted.
func (e *Engine) Status(id string) (domain.Snapshot, bool) {
	job, ok := e.store.Get(id)
	if !ok {
		return domain.Snapshot{}, false
	}
	return job.Snapshot(), true
}

// GuardStats exposes the guard's concurrency/config snapshot for the
// scorch_agent_rate_limit_status tool.
func (e *Engine) GuardStats() ratelimit.GuardStats {
	return e.guard.Stats()
}

// Shutdown stops the reaper, the guard's GC task, and asks every cached
// client to shut down.
func (e *Engine) Shutdown() {
	e.reaperCancel()
	e.clients.Shutdown()
	e.guard.Shutdown()
	slog.Info("agent engine shut down")
}
