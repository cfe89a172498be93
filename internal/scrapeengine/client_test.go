package scrapeengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
)

func TestClient_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(scrapeResponse{URL: "https://example.com", Markdown: "# hi"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 2*time.Second)
	res, err := c.Scrape(context.Background(), domain.ScrapeRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "# hi", res.Markdown)
}

func TestClient_UpstreamClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad url"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", 2*time.Second)
	_, err := c.Scrape(context.Background(), domain.ScrapeRequest{URL: "not-a-url"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	assert.Equal(t, 1, calls)
}

func TestClient_CrawlStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/crawl/abc123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "completed", "total": 3, "completed": 3})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 2*time.Second)
	status, err := c.CrawlStatus(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 3, status.Total)
}
