package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/agent"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/localfetch"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/ratelimit"
)

type fakeScrapeClient struct {
	scrapeCalls int
	lastReq     domain.ScrapeRequest
}

func (f *fakeScrapeClient) Scrape(ctx context.Context, req domain.ScrapeRequest) (domain.ScrapeResult, error) {
	f.scrapeCalls++
	f.lastReq = req
	return domain.ScrapeResult{URL: req.URL, Markdown: "engine markdown"}, nil
}
func (f *fakeScrapeClient) Map(ctx context.Context, req domain.ScrapeRequest) ([]string, error) {
	return []string{req.URL + "/a"}, nil
}
func (f *fakeScrapeClient) Search(ctx context.Context, req domain.ScrapeRequest) ([]domain.ScrapeResult, error) {
	return []domain.ScrapeResult{{URL: "https://example.com"}}, nil
}
func (f *fakeScrapeClient) Crawl(ctx context.Context, req domain.ScrapeRequest) (string, error) {
	return "crawl-1", nil
}
func (f *fakeScrapeClient) CrawlStatus(ctx context.Context, id string) (domain.CrawlStatus, error) {
	return domain.CrawlStatus{ID: id, Status: "completed", Total: 1, Completed: 1}, nil
}
func (f *fakeScrapeClient) Extract(ctx context.Context, req domain.ScrapeRequest) (domain.ScrapeResult, error) {
	return domain.ScrapeResult{URL: req.URL, Markdown: "extracted"}, nil
}

func callReq(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestHandleScrape_RejectsInvalidURL(t *testing.T) {
	deps := &Deps{ScrapeClient: &fakeScrapeClient{}}
	res, err := deps.HandleScrape(context.Background(), callReq(map[string]any{"url": "not-a-url"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleScrape_ForwardsToEngineWhenNotLocalProxy(t *testing.T) {
	sc := &fakeScrapeClient{}
	deps := &Deps{ScrapeClient: sc, LocalProxy: false}
	res, err := deps.HandleScrape(context.Background(), callReq(map[string]any{"url": "https://example.com", "formats": []any{"markdown"}}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 1, sc.scrapeCalls)
}

func TestHandleScrape_LocalProxyFallsBackOnServerFormat(t *testing.T) {
	sc := &fakeScrapeClient{}
	deps := &Deps{ScrapeClient: sc, LocalFetch: localfetch.New(), LocalProxy: true}
	res, err := deps.HandleScrape(context.Background(), callReq(map[string]any{"url": "https://example.com", "formats": []any{"json"}}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 1, sc.scrapeCalls)
}

func TestHandleAgentModels(t *testing.T) {
	deps := &Deps{AllowedModels: []string{"gpt-4.1"}, DefaultModel: "gpt-4.1"}
	res, err := deps.HandleAgentModels(context.Background(), callReq(nil))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "gpt-4.1", out["default_model"])
}

func TestHandleAgentStatus_NotFound(t *testing.T) {
	guard := ratelimit.NewGuard(ratelimit.Config{})
	defer guard.Shutdown()
	e := agent.NewEngine(guard, nil, agent.EngineConfig{
		AllowedModels: []string{"m"}, DefaultModel: "m", StaleJobTimeout: time.Minute, GCInterval: time.Hour,
	})
	defer e.Shutdown()

	deps := &Deps{Engine: e}
	res, err := deps.HandleAgentStatus(context.Background(), callReq(map[string]any{"id": "nonexistent"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, false, out["success"])
}
