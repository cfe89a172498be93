// Package scrapeengine is the HTTP client for the downstream scraping
// engine. Only the request/response shape of its scrape/map/search/crawl/
// extract endpoints is modeled here; the engine's internals (browser pool,
// queues, datastores) are out of scope.
package scrapeengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/observability"
)

// Client forwards scraping operations to the downstream engine's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// New builds a client bound to baseURL, instrumented with otelhttp and
// retried with exponential backoff for transient failures.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "scrapeengine " + r.Method + " " + r.URL.Path
		}))
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 3 * time.Second
	b.MaxElapsedTime = 15 * time.Second
	b.Multiplier = 2.0
	return b
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	endpoint := path
	timer := prometheusTimer(endpoint)
	defer timer()

	var payload []byte
	var err error
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("scrapeengine: marshal request: %w", err)
		}
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("scrapeengine: %s %s: status %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrUpstreamFailure, method, path, resp.StatusCode, string(data)))
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("scrapeengine: decode response: %w", err))
			}
		}
		return nil
	}

	bo := backoff.WithContext(c.backoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUpstreamFailure, err.Error())
	}
	return nil
}

func prometheusTimer(endpoint string) func() {
	start := time.Now()
	return func() {
		observability.EngineRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type scrapeResponse struct {
	URL      string         `json:"url"`
	Markdown string         `json:"markdown"`
	HTML     string         `json:"html"`
	Links    []string       `json:"links"`
	Metadata map[string]any `json:"metadata"`
	Warning  string         `json:"warning"`
}

func (r scrapeResponse) toDomain() domain.ScrapeResult {
	return domain.ScrapeResult{URL: r.URL, Markdown: r.Markdown, HTML: r.HTML, Links: r.Links, Metadata: r.Metadata, Warning: r.Warning}
}

// Scrape forwards to /v1/scrape.
func (c *Client) Scrape(ctx context.Context, req domain.ScrapeRequest) (domain.ScrapeResult, error) {
	var out scrapeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/scrape", req, &out); err != nil {
		return domain.ScrapeResult{}, err
	}
	return out.toDomain(), nil
}

// Map forwards to /v1/map.
func (c *Client) Map(ctx context.Context, req domain.ScrapeRequest) ([]string, error) {
	var out struct {
		Links []string `json:"links"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/map", req, &out); err != nil {
		return nil, err
	}
	return out.Links, nil
}

// Search forwards to /v1/search.
func (c *Client) Search(ctx context.Context, req domain.ScrapeRequest) ([]domain.ScrapeResult, error) {
	var out struct {
		Data []scrapeResponse `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/search", req, &out); err != nil {
		return nil, err
	}
	results := make([]domain.ScrapeResult, 0, len(out.Data))
	for _, d := range out.Data {
		results = append(results, d.toDomain())
	}
	return results, nil
}

// Crawl forwards to /v1/crawl and returns the started crawl's id.
func (c *Client) Crawl(ctx context.Context, req domain.ScrapeRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/crawl", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CrawlStatus forwards to /v1/crawl/{id}.
func (c *Client) CrawlStatus(ctx context.Context, id string) (domain.CrawlStatus, error) {
	var out struct {
		Status    string           `json:"status"`
		Total     int              `json:"total"`
		Completed int              `json:"completed"`
		Data      []scrapeResponse `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/crawl/"+id, nil, &out); err != nil {
		return domain.CrawlStatus{}, err
	}
	data := make([]domain.ScrapeResult, 0, len(out.Data))
	for _, d := range out.Data {
		data = append(data, d.toDomain())
	}
	return domain.CrawlStatus{ID: id, Status: out.Status, Total: out.Total, Completed: out.Completed, Data: data}, nil
}

// Extract forwards to /v1/extract.
func (c *Client) Extract(ctx context.Context, req domain.ScrapeRequest) (domain.ScrapeResult, error) {
	var out scrapeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/extract", req, &out); err != nil {
		return domain.ScrapeResult{}, err
	}
	return out.toDomain(), nil
}

var _ domain.ScrapingEngineClient = (*Client)(nil)
