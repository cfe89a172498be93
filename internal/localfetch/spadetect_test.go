package localfetch

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestDetectSPAShell_EmptyBody(t *testing.T) {
	html := `<html><body></body></html>`
	doc := parse(t, html)
	reason := DetectSPAShell(html, doc)
	assert.Contains(t, reason, "Near-empty body")
}

func TestDetectSPAShell_Scenario5_RootContainer(t *testing.T) {
	html := `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`
	doc := parse(t, html)
	reason := DetectSPAShell(html, doc)
	assert.Contains(t, reason, "#root")
}

func TestDetectSPAShell_Scenario6_RealArticleNotFlagged(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><h1>How Loading Times Affect User Experience</h1>")
	paragraph := "Research consistently shows that users abandon sites when pages take too long to respond, and the psychological impact of waiting compounds with every additional second spent staring at a blank screen without any indication of progress. "
	for i := 0; i < 6; i++ {
		b.WriteString("<p>")
		b.WriteString(paragraph)
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	html := b.String()
	doc := parse(t, html)
	reason := DetectSPAShell(html, doc)
	assert.Empty(t, reason)
}

func TestDetectSPAShell_LoadingIndicator(t *testing.T) {
	html := `<html><body><div>Just a moment... checking your browser before accessing.</div></body></html>`
	doc := parse(t, html)
	reason := DetectSPAShell(html, doc)
	assert.Contains(t, reason, "Loading indicator detected")
}

func TestDetectSPAShell_Short4xxPageNotFlagged(t *testing.T) {
	html := `<html><body><h1>404 Not Found</h1><p>The page you requested could not be located on this server. Please check the URL and try again, or return to the homepage to continue browsing our site.</p></body></html>`
	doc := parse(t, html)
	reason := DetectSPAShell(html, doc)
	assert.Empty(t, reason)
}

func TestDetectSPAShell_ScriptHeavyPage(t *testing.T) {
	var script strings.Builder
	for i := 0; i < 200; i++ {
		script.WriteString("var x = 1; function f() { return x++; } ")
	}
	html := `<html><body><div id="app"></div><script>` + script.String() + `</script></body></html>`
	doc := parse(t, html)
	reason := DetectSPAShell(html, doc)
	assert.NotEmpty(t, reason)
}
