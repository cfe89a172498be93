// Package mcpserver wires the ten ScorchCrawl MCP tools onto mark3labs/
// mcp-go, translating incoming tool calls into local-fetch, scraping-engine,
// or agent-engine calls.
package mcpserver

import (
	"context"
	"net/http"
	"strings"
)

const serverIdentitySentinel = "__server__"

// IdentityHeaders is the preference order tool dispatch uses to resolve a
// per-request identity key from request metadata.
var IdentityHeaders = []string{"x-copilot-token", "x-github-token"}

type headersContextKey struct{}

// ContextWithHeaders stashes a request's HTTP headers on ctx so tool handlers
// running later in the call chain can resolve identity from them. Used as
// the HTTP transport's per-request context hook.
func ContextWithHeaders(ctx context.Context, r *http.Request) context.Context {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[strings.ToLower(k)] = r.Header.Get(k)
	}
	return context.WithValue(ctx, headersContextKey{}, headers)
}

// HeadersFromContext retrieves the headers stashed by ContextWithHeaders, or
// an empty map for stdio sessions that never called it.
func HeadersFromContext(ctx context.Context) map[string]string {
	if h, ok := ctx.Value(headersContextKey{}).(map[string]string); ok {
		return h
	}
	return map[string]string{}
}

// ResolveIdentity derives the opaque identity key used for accounting,
// preferring per-request Copilot/GitHub tokens, then the process-wide
// token, then the server sentinel. headers keys are matched
// case-insensitively.
func ResolveIdentity(headers map[string]string, processToken string) string {
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lower[strings.ToLower(k)] = v
	}
	for _, h := range IdentityHeaders {
		if v := strings.TrimSpace(lower[h]); v != "" {
			return v
		}
	}
	if processToken != "" {
		return processToken
	}
	return serverIdentitySentinel
}
