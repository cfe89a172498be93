package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/agent"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/localfetch"
)

// OriginLabel tags every request this process forwards upstream, for
// provenance on the scraping-engine side.
const OriginLabel = "scorchcrawl-mcp"

// Deps bundles everything the tool handlers dispatch to.
type Deps struct {
	Engine        *agent.Engine
	ScrapeClient  domain.ScrapingEngineClient
	LocalFetch    *localfetch.Scraper
	LocalProxy    bool
	ProcessToken  string
	AllowedModels []string
	DefaultModel  string
}

func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// HandleScrape implements scorch_scrape's local-proxy-aware dispatch.
func (d *Deps) HandleScrape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := getValidator().Struct(scrapeParams{URL: url}); err != nil {
		return mcp.NewToolResultError(validationError(err)), nil
	}

	formatsRaw, _ := args["formats"].([]any)
	formats := FormatNames(formatsRaw)
	onlyMain, _ := args["onlyMainContent"].(bool)
	skipTLS, _ := args["skipTlsVerification"].(bool)

	if d.LocalProxy && !localfetch.FormatsNeedServer(formats) {
		res, err := d.LocalFetch.LocalScrape(ctx, url, localfetch.Options{
			Formats: formats, OnlyMainContent: onlyMain, SkipTLSVerification: skipTLS,
		})
		switch {
		case err == nil:
			return resultJSON(map[string]any{
				"success": true, "url": res.URL, "markdown": res.Markdown, "html": res.HTML,
				"rawHtml": res.RawHTML, "links": res.Links, "title": res.Title,
				"description": res.Description,
			})
		case errors.Is(err, domain.ErrFormatNeedsServer):
			// fall through to engine below
		case errors.Is(err, domain.ErrSPAShellDetected):
			// opaque at the MCP layer: transparently fall back to the engine
		default:
			return resultJSON(map[string]any{"success": false, "error": err.Error()})
		}
	}

	out, err := d.ScrapeClient.Scrape(ctx, domain.ScrapeRequest{
		URL: url, Formats: formats,
		Options: TruncateEmptyLeaves(args).(map[string]any),
	})
	if err != nil {
		return resultJSON(map[string]any{"success": false, "error": err.Error()})
	}
	return resultJSON(map[string]any{"success": true, "url": out.URL, "markdown": out.Markdown, "html": out.HTML, "links": out.Links})
}

// HandleMap forwards scorch_map to the engine.
func (d *Deps) HandleMap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	search, _ := args["search"].(string)
	links, err := d.ScrapeClient.Map(ctx, domain.ScrapeRequest{URL: url, Query: search, Options: TruncateEmptyLeaves(args).(map[string]any)})
	if err != nil {
		return resultJSON(map[string]any{"success": false, "error": err.Error()})
	}
	return resultJSON(map[string]any{"success": true, "links": links})
}

// HandleSearch forwards scorch_search to the engine.
func (d *Deps) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := d.ScrapeClient.Search(ctx, domain.ScrapeRequest{Query: query, Options: TruncateEmptyLeaves(args).(map[string]any)})
	if err != nil {
		return resultJSON(map[string]any{"success": false, "error": err.Error()})
	}
	return resultJSON(map[string]any{"success": true, "data": results})
}

// HandleCrawl forwards scorch_crawl to the engine, returning the crawl id.
func (d *Deps) HandleCrawl(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := d.ScrapeClient.Crawl(ctx, domain.ScrapeRequest{URL: url, Options: TruncateEmptyLeaves(args).(map[string]any)})
	if err != nil {
		return resultJSON(map[string]any{"success": false, "error": err.Error()})
	}
	return resultJSON(map[string]any{"id": id})
}

// HandleCheckCrawlStatus forwards scorch_check_crawl_status to the engine.
func (d *Deps) HandleCheckCrawlStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := d.ScrapeClient.CrawlStatus(ctx, id)
	if err != nil {
		return resultJSON(map[string]any{"success": false, "error": err.Error()})
	}
	return resultJSON(status)
}

// HandleExtract forwards scorch_extract to the engine across every url.
func (d *Deps) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	urlsRaw, _ := args["urls"].([]any)
	if len(urlsRaw) == 0 {
		return mcp.NewToolResultError("urls is required"), nil
	}
	prompt, _ := args["prompt"].(string)
	schema, _ := args["schema"].(map[string]any)

	var results []domain.ScrapeResult
	for _, u := range urlsRaw {
		url, _ := u.(string)
		res, err := d.ScrapeClient.Extract(ctx, domain.ScrapeRequest{URL: url, Schema: schema, Options: map[string]any{"prompt": prompt}})
		if err != nil {
			return resultJSON(map[string]any{"success": false, "error": err.Error()})
		}
		results = append(results, res)
	}
	return resultJSON(map[string]any{"success": true, "data": results})
}

// HandleAgent implements scorch_agent's admission dispatch.
func (d *Deps) HandleAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := getValidator().Struct(agentParams{Prompt: prompt}); err != nil {
		return resultJSON(map[string]any{"status": "failed", "error": validationError(err)})
	}
	model, _ := args["model"].(string)
	var urls []string
	if raw, ok := args["urls"].([]any); ok {
		for _, u := range raw {
			if s, ok := u.(string); ok {
				urls = append(urls, s)
			}
		}
	}
	schema, _ := args["schema"].(map[string]any)
	identity := ResolveIdentity(HeadersFromContext(ctx), d.ProcessToken)

	res := d.Engine.Start(ctx, agent.StartRequest{
		Prompt: prompt, Model: model, FocusURLs: urls, OutputSchema: schema, IdentityToken: identity,
	})
	out := map[string]any{"id": res.ID, "status": string(res.Status)}
	if res.RateLimited {
		out["rate_limited"] = true
		out["retry_after_s"] = res.RetryAfterS
	}
	if res.Error != "" {
		out["error"] = res.Error
	}
	return resultJSON(out)
}

// HandleAgentStatus implements scorch_agent_status.
func (d *Deps) HandleAgentStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, ok := d.Engine.Status(id)
	if !ok {
		return resultJSON(map[string]any{"success": false, "error": domain.ErrJobNotFound.Error()})
	}
	out := map[string]any{"success": true, "status": string(snap.Status)}
	if snap.Progress != "" {
		out["progress"] = snap.Progress
	}
	if snap.Status == domain.JobStatusCompleted {
		out["data"] = snap.Result
	}
	if snap.Status == domain.JobStatusFailed {
		out["error"] = snap.Error
	}
	if !snap.CompletedAt.IsZero() {
		out["duration"] = snap.CompletedAt.Sub(snap.CreatedAt).Seconds()
	}
	return resultJSON(out)
}

// HandleAgentModels implements scorch_agent_models.
func (d *Deps) HandleAgentModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(map[string]any{"allowed_models": d.AllowedModels, "default_model": d.DefaultModel})
}

// HandleAgentRateLimitStatus implements scorch_agent_rate_limit_status.
func (d *Deps) HandleAgentRateLimitStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := d.Engine.GuardStats()
	return resultJSON(stats)
}
