package localfetch

import (
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/scorchcrawl/scorchcrawl-mcp/pkg/textx"
)

// noiseSelectors are semantic-noise elements dropped when onlyMainContent is
// requested.
var noiseSelectors = []string{
	"nav", "header", "footer", "aside",
	"[role=banner]", "[role=navigation]", "[role=complementary]",
	".sidebar", ".menu", ".cookie-banner", ".ad", ".advertisement",
}

// mainContentSelectors are tried in order; the first whose inner HTML
// exceeds 100 characters is used as the reduction target.
var mainContentSelectors = []string{
	"main", "article", "[role=main]", ".main-content", ".content", "#content", "#main",
}

// Metadata is the page metadata extracted ahead of content reduction.
type Metadata struct {
	Title       string
	Description string
	Language    string
}

// extractMetadata reads title/description/language, sanitizing the text
// fields since upstream pages routinely embed stray control characters that
// would otherwise corrupt downstream markdown and JSON-RPC framing.
func extractMetadata(doc *goquery.Document) Metadata {
	m := Metadata{}
	if title := doc.Find("title").First().Text(); strings.TrimSpace(title) != "" {
		m.Title = textx.SanitizeText(title)
	} else if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		m.Title = textx.SanitizeText(v)
	}
	if v, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		m.Description = textx.SanitizeText(v)
	} else if v, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
		m.Description = textx.SanitizeText(v)
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		m.Language = lang
	}
	return m
}

func stripNoise(doc *goquery.Document) {
	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()
}

func dropExcludeTags(doc *goquery.Document, excludeTags []string) {
	if len(excludeTags) == 0 {
		return
	}
	doc.Find(strings.Join(excludeTags, ", ")).Remove()
}

// selectTargetHTML implements the target-selection order from the spec: an
// explicit include-tag list wins, otherwise the first matching
// main-content-ish selector with enough inner HTML, otherwise body,
// otherwise the raw document.
func selectTargetHTML(doc *goquery.Document, onlyMainContent bool, includeTags []string, raw string) string {
	if len(includeTags) > 0 {
		var b strings.Builder
		doc.Find(strings.Join(includeTags, ", ")).Each(func(_ int, s *goquery.Selection) {
			if h, err := s.Html(); err == nil {
				b.WriteString(h)
			}
		})
		return b.String()
	}
	if onlyMainContent {
		for _, sel := range mainContentSelectors {
			node := doc.Find(sel).First()
			if node.Length() == 0 {
				continue
			}
			if h, err := node.Html(); err == nil && len(h) > 100 {
				return h
			}
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		if h, err := body.Html(); err == nil {
			return h
		}
	}
	return raw
}

// extractLinks resolves every <a href> against base, deduplicating and
// discarding in-page anchors and javascript: pseudo-links.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		resolved := href
		if u, err := url.Parse(href); err == nil && base != nil {
			resolved = base.ResolveReference(u).String()
		}
		if !seen[resolved] {
			seen[resolved] = true
			out = append(out, resolved)
		}
	})
	return out
}

// toMarkdown renders target HTML to markdown, stripping executable/non-
// content elements the converter shouldn't see.
func toMarkdown(targetHTML string) (string, error) {
	return htmltomarkdown.ConvertString(targetHTML)
}
