package localfetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// textOnlyTree re-parses raw HTML into a fresh document with script, style,
// and noscript elements stripped, standing in for "clone the tree and strip
// noise elements" without mutating the document callers still need intact.
func textOnlyTree(raw string) (*goquery.Document, error) {
	clone, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	clone.Find("script, style, noscript").Remove()
	return clone, nil
}

// MinMeaningfulTextLength is the floor below which a page's visible text is
// treated as too thin to be real content.
const MinMeaningfulTextLength = 200

// ScriptHeavyRatio is the script-to-raw-bytes ratio above which a thin page
// is additionally flagged as script-heavy.
const ScriptHeavyRatio = 0.65

// SPALoadingPatterns are case-insensitive substrings that indicate the page
// is a placeholder waiting on client-side JavaScript.
var SPALoadingPatterns = []string{
	"loading...", "loading…", "please wait", "just a moment", "checking your browser",
	"one moment please", "redirecting", "enable javascript", "javascript is required",
	"javascript must be enabled", "this app requires javascript",
	"you need to enable javascript", "noscript",
}

// SPARootSelectors are CSS selectors for common SPA mount points.
var SPARootSelectors = []string{
	"#root", "#app", "#__next", "#__nuxt", "#svelte", "app-root", "#___gatsby", "#main-app",
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// DetectSPAShell decides whether the fetched document is an un-hydrated
// single-page-application shell. It returns a short human-readable reason,
// or an empty string when the page looks like real content.
func DetectSPAShell(raw string, doc *goquery.Document) string {
	visibleText := ""
	if clone, err := textOnlyTree(raw); err == nil {
		visibleText = collapseWhitespace(clone.Find("body").Text())
	}
	lower := strings.ToLower(visibleText)

	if len(visibleText) < MinMeaningfulTextLength {
		for _, sel := range SPARootSelectors {
			var reason string
			doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				text := collapseWhitespace(s.Text())
				if len(text) < MinMeaningfulTextLength {
					reason = fmt.Sprintf(`SPA root container %q with minimal content (%d chars)`, sel, len(text))
					return false
				}
				return true
			})
			if reason != "" {
				return reason
			}
		}
		for _, pattern := range SPALoadingPatterns {
			if strings.Contains(lower, pattern) {
				return fmt.Sprintf("Loading indicator detected: %q", pattern)
			}
		}
		if len(visibleText) < 50 {
			return fmt.Sprintf("Near-empty body text (%d chars)", len(visibleText))
		}
	} else if len(visibleText) < 500 {
		for _, pattern := range SPALoadingPatterns {
			if strings.Contains(lower, pattern) {
				return fmt.Sprintf("Short page with loading indicator: %q", pattern)
			}
		}
	}

	scriptContentLength := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scriptContentLength += len(s.Text())
	})
	if len(raw) > 1000 && float64(scriptContentLength)/float64(len(raw)) > ScriptHeavyRatio && len(visibleText) < MinMeaningfulTextLength {
		pct := float64(scriptContentLength) / float64(len(raw)) * 100
		return fmt.Sprintf("Script-heavy page (%.0f%% scripts, %d chars text)", pct, len(visibleText))
	}

	return ""
}
