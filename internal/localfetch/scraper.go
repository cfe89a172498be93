// Package localfetch implements the local-fetch fallback scraper: a
// single-URL HTTP fetch performed inside the server process, reduction of
// the response into markdown/html/links, and the SPA-shell detector that
// decides whether the fetch actually returned usable content.
package localfetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/observability"
)

// formatsRequiringServer are the output formats the local fetcher can never
// produce; requesting any of them forces a fallback to the scraping engine.
var formatsRequiringServer = map[string]bool{
	"json": true, "screenshot": true, "branding": true, "summary": true,
}

// FormatsNeedServer reports whether any requested format cannot be served
// locally, letting callers decide to fall back before even attempting a
// fetch.
func FormatsNeedServer(formats []string) bool {
	for _, f := range formats {
		if formatsRequiringServer[strings.ToLower(f)] {
			return true
		}
	}
	return false
}

// Options mirrors the recognized local_scrape options.
type Options struct {
	Formats             []string
	OnlyMainContent     bool
	IncludeTags         []string
	ExcludeTags         []string
	Timeout             time.Duration
	SkipTLSVerification bool
	Headers             map[string]string
}

// Result is the data payload returned by a local scrape attempt.
type Result struct {
	URL         string
	StatusCode  int
	Title       string
	Description string
	Language    string
	Markdown    string
	HTML        string
	RawHTML     string
	Links       []string
}

const defaultTimeout = 30 * time.Second

var desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Scraper performs one-shot HTTP fetches and reduces them locally.
type Scraper struct{}

// New builds a local-fetch scraper.
func New() *Scraper { return &Scraper{} }

// LocalScrape performs the full local_scrape procedure: fetch, parse,
// reduce, SPA detection.
func (s *Scraper) LocalScrape(ctx context.Context, rawURL string, opts Options) (Result, error) {
	if FormatsNeedServer(opts.Formats) {
		observability.LocalFetchTotal.WithLabelValues("format_needs_server").Inc()
		return Result{}, domain.ErrFormatNeedsServer
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, finalURL, statusCode, err := fetch(fetchCtx, rawURL, opts)
	if err != nil {
		observability.LocalFetchTotal.WithLabelValues("fetch_error").Inc()
		return Result{}, fmt.Errorf("%w: %s", domain.ErrLocalFetchFailed, err.Error())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		observability.LocalFetchTotal.WithLabelValues("parse_error").Inc()
		return Result{}, fmt.Errorf("%w: parse html: %s", domain.ErrLocalFetchFailed, err.Error())
	}

	meta := extractMetadata(doc)
	doc.Find("iframe").Remove()
	if opts.OnlyMainContent {
		stripNoise(doc)
	}
	dropExcludeTags(doc, opts.ExcludeTags)

	targetHTML := selectTargetHTML(doc, opts.OnlyMainContent, opts.IncludeTags, body)
	markdown, err := toMarkdown(targetHTML)
	if err != nil {
		markdown = ""
	}

	base, _ := url.Parse(finalURL)
	links := extractLinks(doc, base)

	result := Result{
		URL: finalURL, StatusCode: statusCode,
		Title: meta.Title, Description: meta.Description, Language: meta.Language,
		Markdown: markdown, HTML: targetHTML, RawHTML: body, Links: links,
	}

	if reason := DetectSPAShell(body, doc); reason != "" {
		observability.LocalFetchTotal.WithLabelValues("spa_shell_detected").Inc()
		return result, fmt.Errorf("%w: %s", domain.ErrSPAShellDetected, reason)
	}

	observability.LocalFetchTotal.WithLabelValues("success").Inc()
	return result, nil
}

func fetch(ctx context.Context, rawURL string, opts Options) (body, finalURL string, statusCode int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", 0, err
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Accept-Encoding is deliberately left unset: net/http advertises
	// "gzip" on our behalf and transparently decompresses the response body
	// only when the header isn't set explicitly. Setting it ourselves (even
	// to a browser-realistic "gzip, deflate, br") would hand goquery
	// compressed bytes to parse as if they were plain HTML.
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error { return nil },
	}
	if opts.SkipTLSVerification {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} // #nosec G402 -- opt-in per request
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", "", 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", 0, err
	}

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return string(data), final, resp.StatusCode, nil
}
