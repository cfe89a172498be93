package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/ratelimit"
)

type fakeGuard struct {
	checkResult ratelimit.CheckResult
	acquired    []string
	released    []string
	quota       *ratelimit.QuotaMonitor
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{checkResult: ratelimit.CheckResult{Allowed: true}, quota: ratelimit.NewQuotaMonitor(5)}
}

func (f *fakeGuard) Check(identity string) ratelimit.CheckResult { return f.checkResult }
func (f *fakeGuard) Acquire(identity string)                     { f.acquired = append(f.acquired, identity) }
func (f *fakeGuard) Release(identity string)                     { f.released = append(f.released, identity) }
func (f *fakeGuard) Quota() *ratelimit.QuotaMonitor               { return f.quota }
func (f *fakeGuard) Stats() ratelimit.GuardStats                  { return ratelimit.GuardStats{} }
func (f *fakeGuard) Shutdown()                                    {}

type fakeRuntime struct {
	result string
	err    error
}

func (r *fakeRuntime) Run(ctx context.Context, jobID, prompt, model string, onProgress func(string)) (string, error) {
	if onProgress != nil {
		onProgress("thinking")
	}
	return r.result, r.err
}
func (r *fakeRuntime) Close() error { return nil }

func waitForTerminal(t *testing.T, e *Engine, id string) domain.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := e.Status(id)
		require.True(t, ok)
		if snap.Status != domain.JobStatusProcessing {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return domain.Snapshot{}
}

func TestEngine_Scenario4_ModelNotAllowed(t *testing.T) {
	guard := newFakeGuard()
	factory := func(ctx context.Context, token string) (domain.AgentSessionRuntime, error) {
		return &fakeRuntime{result: "ok"}, nil
	}
	e := NewEngine(guard, factory, EngineConfig{
		AllowedModels: []string{"gpt-4.1"}, DefaultModel: "gpt-4.1",
		StaleJobTimeout: time.Minute, GCInterval: time.Hour,
	})
	defer e.Shutdown()

	res := e.Start(context.Background(), StartRequest{Prompt: "p", Model: "nonexistent"})
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Contains(t, res.Error, `Model "nonexistent" is not in the allowed list`)
	assert.Empty(t, guard.acquired)
}

func TestEngine_StartToCompletion(t *testing.T) {
	guard := newFakeGuard()
	factory := func(ctx context.Context, token string) (domain.AgentSessionRuntime, error) {
		return &fakeRuntime{result: "final answer"}, nil
	}
	e := NewEngine(guard, factory, EngineConfig{
		AllowedModels: []string{"gpt-4.1"}, DefaultModel: "gpt-4.1",
		StaleJobTimeout: time.Minute, GCInterval: time.Hour,
	})
	defer e.Shutdown()

	res := e.Start(context.Background(), StartRequest{Prompt: "p"})
	require.Equal(t, domain.JobStatusProcessing, res.Status)

	snap := waitForTerminal(t, e, res.ID)
	assert.Equal(t, domain.JobStatusCompleted, snap.Status)
	assert.Equal(t, "final answer", snap.Result)
	assert.Equal(t, []string{"__server__"}, guard.released)
}

func TestEngine_RateLimitedNoJobCreated(t *testing.T) {
	guard := newFakeGuard()
	guard.checkResult = ratelimit.CheckResult{Allowed: false, Reason: "server at maximum capacity, retry in ~10s", RetryAfterS: 10}
	factory := func(ctx context.Context, token string) (domain.AgentSessionRuntime, error) {
		return &fakeRuntime{}, nil
	}
	e := NewEngine(guard, factory, EngineConfig{AllowedModels: []string{"m"}, DefaultModel: "m"})
	defer e.Shutdown()

	res := e.Start(context.Background(), StartRequest{Prompt: "p"})
	assert.True(t, res.RateLimited)
	assert.Equal(t, domain.JobStatusRateLimited, res.Status)
	_, ok := e.Status(res.ID)
	assert.False(t, ok)
}
