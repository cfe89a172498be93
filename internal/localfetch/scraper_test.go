package localfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
)

func TestScraper_FormatNeedsServer(t *testing.T) {
	s := New()
	_, err := s.LocalScrape(context.Background(), "https://example.com", Options{Formats: []string{"screenshot"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFormatNeedsServer)
}

func TestScraper_RealArticleSucceeds(t *testing.T) {
	var body strings.Builder
	body.WriteString(`<html lang="en"><head><title>Great Article</title><meta name="description" content="a fine read"></head><body><main><h1>Great Article</h1>`)
	paragraph := "This is a long enough paragraph of real prose that should comfortably clear the meaningful text length threshold used by the detector so the page is treated as genuine content rather than a shell. "
	for i := 0; i < 6; i++ {
		body.WriteString("<p>")
		body.WriteString(paragraph)
		body.WriteString("</p>")
	}
	body.WriteString(`<a href="/next">Next</a></main></body></html>`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.String()))
	}))
	defer srv.Close()

	s := New()
	res, err := s.LocalScrape(context.Background(), srv.URL, Options{OnlyMainContent: true})
	require.NoError(t, err)
	assert.Equal(t, "Great Article", res.Title)
	assert.Equal(t, "a fine read", res.Description)
	assert.Equal(t, "en", res.Language)
	assert.Contains(t, res.Markdown, "Great Article")
	assert.Len(t, res.Links, 1)
	assert.Equal(t, srv.URL+"/next", res.Links[0])
}

func TestScraper_SPAShellReturnsErrorButKeepsPartialData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="root"></div><script src="/bundle.js"></script></body></html>`))
	}))
	defer srv.Close()

	s := New()
	res, err := s.LocalScrape(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSPAShellDetected)
	assert.Equal(t, srv.URL, res.URL)
}
