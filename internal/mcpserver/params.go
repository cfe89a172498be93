package mcpserver

// TruncateEmptyLeaves removes nil, empty-string, empty-slice, and empty-map
// leaves from a parameter tree before it is forwarded upstream. It is
// idempotent: applying it twice yields the same result as applying it once.
func TruncateEmptyLeaves(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			reduced := TruncateEmptyLeaves(child)
			if isEmptyLeaf(reduced) {
				continue
			}
			out[k] = reduced
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, child := range val {
			reduced := TruncateEmptyLeaves(child)
			if isEmptyLeaf(reduced) {
				continue
			}
			out = append(out, reduced)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

func isEmptyLeaf(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// FormatKind distinguishes the three shapes a "format" scrape parameter can
// take.
type FormatKind string

const (
	FormatString     FormatKind = "string"
	FormatJSON       FormatKind = "json"
	FormatScreenshot FormatKind = "screenshot"
)

// Format is a tagged-union stand-in for the scrape "format" parameter, which
// the wire protocol allows as either a bare string or a typed object.
type Format struct {
	Kind FormatKind

	// Name is populated for FormatString (e.g. "markdown", "html", "links").
	Name string

	// JSON fields, populated for FormatKind == FormatJSON.
	JSONPrompt string
	JSONSchema map[string]any

	// Screenshot fields, populated for FormatKind == FormatScreenshot.
	ScreenshotFullPage bool
	ScreenshotQuality  int
	ScreenshotViewport map[string]any
}

// ParseFormat decodes one element of the "formats" tool argument, which
// arrives from JSON as either a string or an object.
func ParseFormat(raw any) (Format, bool) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return Format{}, false
		}
		return Format{Kind: FormatString, Name: v}, true
	case map[string]any:
		name, _ := v["type"].(string)
		switch name {
		case "json":
			f := Format{Kind: FormatJSON}
			f.JSONPrompt, _ = v["prompt"].(string)
			f.JSONSchema, _ = v["schema"].(map[string]any)
			return f, true
		case "screenshot":
			f := Format{Kind: FormatScreenshot}
			f.ScreenshotFullPage, _ = v["fullPage"].(bool)
			if q, ok := v["quality"].(float64); ok {
				f.ScreenshotQuality = int(q)
			}
			f.ScreenshotViewport, _ = v["viewport"].(map[string]any)
			return f, true
		default:
			return Format{}, false
		}
	default:
		return Format{}, false
	}
}

// FormatNames flattens a raw "formats" argument into names: a plain string
// format contributes its name, a json/screenshot object contributes its kind
// ("json" or "screenshot"), and unparseable entries are skipped. Used to
// decide whether a request is purely local-capable.
func FormatNames(raw []any) []string {
	var out []string
	for _, r := range raw {
		f, ok := ParseFormat(r)
		if !ok {
			continue
		}
		if f.Kind == FormatString {
			out = append(out, f.Name)
		} else {
			out = append(out, string(f.Kind))
		}
	}
	return out
}
