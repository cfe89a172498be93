package agent

import (
	"context"
	"fmt"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
)

// ToolResultType classifies a callback's outcome to the session runtime.
type ToolResultType string

const (
	ToolResultSuccess ToolResultType = "success"
	ToolResultFailure ToolResultType = "failure"
)

// ToolResult is the shape every callable tool returns to the LLM runtime.
type ToolResult struct {
	TextForLLM string
	ResultType ToolResultType
	Error      string
}

// ToolSet is the four scraping callbacks exposed to an agent session, bound
// to a concrete scraping client and an origin label for provenance.
type ToolSet struct {
	client domain.ScrapingEngineClient
	origin string
}

// NewToolSet builds a tool set forwarding to client, tagging every forwarded
// request with origin for upstream provenance tracking.
func NewToolSet(client domain.ScrapingEngineClient, origin string) *ToolSet {
	return &ToolSet{client: client, origin: origin}
}

func failure(err error) ToolResult {
	return ToolResult{TextForLLM: fmt.Sprintf("tool call failed: %s", err.Error()), ResultType: ToolResultFailure, Error: err.Error()}
}

// WebScrape forwards to the scraping engine's scrape endpoint.
func (t *ToolSet) WebScrape(ctx context.Context, url string, formats []string, onlyMainContent bool, waitForMS int) ToolResult {
	req := domain.ScrapeRequest{
		URL:     url,
		Formats: formats,
		Options: map[string]any{
			"onlyMainContent": onlyMainContent,
			"waitFor":         waitForMS,
			"origin":          t.origin,
		},
	}
	res, err := t.client.Scrape(ctx, req)
	if err != nil {
		return failure(err)
	}
	return ToolResult{TextForLLM: res.Markdown, ResultType: ToolResultSuccess}
}

// WebSearch forwards to the scraping engine's search endpoint.
func (t *ToolSet) WebSearch(ctx context.Context, query string, limit int) ToolResult {
	req := domain.ScrapeRequest{
		Query:   query,
		Options: map[string]any{"limit": limit, "origin": t.origin},
	}
	results, err := t.client.Search(ctx, req)
	if err != nil {
		return failure(err)
	}
	text := ""
	for _, r := range results {
		text += fmt.Sprintf("- %s: %s\n", r.URL, r.Markdown)
	}
	return ToolResult{TextForLLM: text, ResultType: ToolResultSuccess}
}

// WebMap forwards to the scraping engine's map endpoint.
func (t *ToolSet) WebMap(ctx context.Context, url, search string, limit int) ToolResult {
	req := domain.ScrapeRequest{
		URL:   url,
		Query: search,
		Options: map[string]any{"limit": limit, "origin": t.origin},
	}
	urls, err := t.client.Map(ctx, req)
	if err != nil {
		return failure(err)
	}
	text := ""
	for _, u := range urls {
		text += u + "\n"
	}
	return ToolResult{TextForLLM: text, ResultType: ToolResultSuccess}
}

// WebExtract forwards to the scraping engine's extract endpoint for each url
// and aggregates the results for the session.
func (t *ToolSet) WebExtract(ctx context.Context, urls []string, prompt string, schema map[string]any) ToolResult {
	var out string
	for _, u := range urls {
		req := domain.ScrapeRequest{
			URL:     u,
			Schema:  schema,
			Options: map[string]any{"prompt": prompt, "origin": t.origin},
		}
		res, err := t.client.Extract(ctx, req)
		if err != nil {
			out += fmt.Sprintf("%s: error: %s\n", u, err.Error())
			continue
		}
		out += fmt.Sprintf("%s: %s\n", u, res.Markdown)
	}
	return ToolResult{TextForLLM: out, ResultType: ToolResultSuccess}
}
