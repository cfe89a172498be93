package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateEmptyLeaves_RemovesEmptyValues(t *testing.T) {
	in := map[string]any{
		"keep":     "value",
		"empty":    "",
		"nilval":   nil,
		"emptyArr": []any{},
		"emptyMap": map[string]any{},
		"nested":   map[string]any{"a": "", "b": "x"},
	}
	out := TruncateEmptyLeaves(in)
	m, ok := out.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "value", m["keep"])
	assert.NotContains(t, m, "empty")
	assert.NotContains(t, m, "nilval")
	assert.NotContains(t, m, "emptyArr")
	assert.NotContains(t, m, "emptyMap")
	nested, ok := m["nested"].(map[string]any)
	assert.True(t, ok)
	assert.NotContains(t, nested, "a")
	assert.Equal(t, "x", nested["b"])
}

func TestTruncateEmptyLeaves_Idempotent(t *testing.T) {
	in := map[string]any{"a": "", "b": map[string]any{"c": []any{}}, "d": "keep"}
	once := TruncateEmptyLeaves(in)
	twice := TruncateEmptyLeaves(once)
	assert.Equal(t, once, twice)
}

func TestTruncateEmptyLeaves_AllEmptyBecomesNil(t *testing.T) {
	in := map[string]any{"a": "", "b": []any{}}
	out := TruncateEmptyLeaves(in)
	assert.Nil(t, out)
}

func TestParseFormat_String(t *testing.T) {
	f, ok := ParseFormat("markdown")
	assert.True(t, ok)
	assert.Equal(t, FormatString, f.Kind)
	assert.Equal(t, "markdown", f.Name)
}

func TestParseFormat_JSON(t *testing.T) {
	f, ok := ParseFormat(map[string]any{"type": "json", "prompt": "extract title"})
	assert.True(t, ok)
	assert.Equal(t, FormatJSON, f.Kind)
	assert.Equal(t, "extract title", f.JSONPrompt)
}

func TestParseFormat_Screenshot(t *testing.T) {
	f, ok := ParseFormat(map[string]any{"type": "screenshot", "fullPage": true, "quality": 80.0})
	assert.True(t, ok)
	assert.Equal(t, FormatScreenshot, f.Kind)
	assert.True(t, f.ScreenshotFullPage)
	assert.Equal(t, 80, f.ScreenshotQuality)
}

func TestFormatNames_MixesStringAndTyped(t *testing.T) {
	names := FormatNames([]any{"markdown", map[string]any{"type": "screenshot"}})
	assert.Equal(t, []string{"markdown", "screenshot"}, names)
}
