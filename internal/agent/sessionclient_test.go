package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
)

type countingRuntime struct {
	closed bool
}

func (r *countingRuntime) Run(ctx context.Context, jobID, prompt, model string, onProgress func(string)) (string, error) {
	return "", nil
}
func (r *countingRuntime) Close() error { r.closed = true; return nil }

func TestSessionClientCache_ReturnsCachedHandle(t *testing.T) {
	created := 0
	factory := func(ctx context.Context, token string) (domain.AgentSessionRuntime, error) {
		created++
		return &countingRuntime{}, nil
	}
	cache := NewSessionClientCache(factory)
	defer cache.Shutdown()

	c1, err := cache.Get(context.Background(), "A", "tok")
	require.NoError(t, err)
	c2, err := cache.Get(context.Background(), "A", "tok")
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, created)
}

func TestSessionClientCache_ShutdownClosesAll(t *testing.T) {
	rt := &countingRuntime{}
	factory := func(ctx context.Context, token string) (domain.AgentSessionRuntime, error) {
		return rt, nil
	}
	cache := NewSessionClientCache(factory)
	_, err := cache.Get(context.Background(), "A", "tok")
	require.NoError(t, err)

	cache.Shutdown()
	assert.True(t, rt.closed)
}
