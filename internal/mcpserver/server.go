package mcpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/observability"
)

// toolHandler matches mark3labs/mcp-go's tool handler signature.
type toolHandler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// withRequestID mints a ULID per tool call, attaches it to the context the
// way the teacher's HTTP middleware attaches a request id, and logs the
// call's latency on return.
func withRequestID(name string, next toolHandler) toolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		requestID := ulid.Make().String()
		ctx = observability.ContextWithRequestID(ctx, requestID)
		start := time.Now()
		result, err := next(ctx, req)
		slog.Info("mcp tool call", slog.String("tool", name), slog.String("request_id", requestID), slog.Duration("duration", time.Since(start)))
		return result, err
	}
}

const (
	serverName    = "scorchcrawl"
	serverVersion = "0.1.0"
)

// New builds the MCP server and registers all ten ScorchCrawl tools against
// deps.
func New(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("scorch_scrape",
		mcp.WithDescription("Fetch a single URL and return it as markdown, html, links, or other formats."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to scrape.")),
		mcp.WithArray("formats", mcp.Description("Output formats: markdown, html, links, rawHtml, or typed json/screenshot objects.")),
		mcp.WithBoolean("onlyMainContent", mcp.Description("Strip navigation, ads, and other boilerplate before extraction.")),
		mcp.WithArray("includeTags", mcp.Description("CSS selectors that must always be kept.")),
		mcp.WithArray("excludeTags", mcp.Description("CSS selectors to always remove.")),
		mcp.WithBoolean("skipTlsVerification", mcp.Description("Skip TLS certificate verification for this request only.")),
		mcp.WithObject("headers", mcp.Description("Extra HTTP headers to send with the fetch.")),
	), withRequestID("scorch_scrape", deps.HandleScrape))

	s.AddTool(mcp.NewTool("scorch_map",
		mcp.WithDescription("Discover URLs reachable from a site, optionally filtered by a search term."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The site to map.")),
		mcp.WithString("search", mcp.Description("Only return URLs whose text matches this term.")),
	), withRequestID("scorch_map", deps.HandleMap))

	s.AddTool(mcp.NewTool("scorch_search",
		mcp.WithDescription("Run a web search and return matching results."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results to return.")),
	), withRequestID("scorch_search", deps.HandleSearch))

	s.AddTool(mcp.NewTool("scorch_crawl",
		mcp.WithDescription("Start an asynchronous multi-page crawl starting from a URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to start crawling from.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of pages to crawl.")),
		mcp.WithNumber("maxDepth", mcp.Description("Maximum link depth to follow.")),
	), withRequestID("scorch_crawl", deps.HandleCrawl))

	s.AddTool(mcp.NewTool("scorch_check_crawl_status",
		mcp.WithDescription("Check the status of a previously started crawl."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The crawl id returned by scorch_crawl.")),
	), withRequestID("scorch_check_crawl_status", deps.HandleCheckCrawlStatus))

	s.AddTool(mcp.NewTool("scorch_extract",
		mcp.WithDescription("Extract structured data from one or more URLs against a schema or prompt."),
		mcp.WithArray("urls", mcp.Required(), mcp.Description("The URLs to extract from.")),
		mcp.WithString("prompt", mcp.Description("Natural-language instructions describing what to extract.")),
		mcp.WithObject("schema", mcp.Description("A JSON schema the extracted data must conform to.")),
	), withRequestID("scorch_extract", deps.HandleExtract))

	s.AddTool(mcp.NewTool("scorch_agent",
		mcp.WithDescription("Start an autonomous research agent session that can browse and scrape on its own."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The task for the agent to perform.")),
		mcp.WithArray("urls", mcp.Description("URLs the agent should focus on first.")),
		mcp.WithString("model", mcp.Description("The model to run the session with.")),
		mcp.WithObject("schema", mcp.Description("A JSON schema the agent's final answer must conform to.")),
	), withRequestID("scorch_agent", deps.HandleAgent))

	s.AddTool(mcp.NewTool("scorch_agent_status",
		mcp.WithDescription("Poll the status of a previously started agent session."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The job id returned by scorch_agent.")),
	), withRequestID("scorch_agent_status", deps.HandleAgentStatus))

	s.AddTool(mcp.NewTool("scorch_agent_models",
		mcp.WithDescription("List the models allowed for scorch_agent sessions."),
	), withRequestID("scorch_agent_models", deps.HandleAgentModels))

	s.AddTool(mcp.NewTool("scorch_agent_rate_limit_status",
		mcp.WithDescription("Inspect current agent concurrency and rate-limit accounting."),
	), withRequestID("scorch_agent_rate_limit_status", deps.HandleAgentRateLimitStatus))

	return s
}

// ServeStdio runs the server over the stdio transport, blocking until the
// process's stdin is closed.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// ServeHTTP runs the server over the HTTP streaming transport at addr,
// stashing each request's headers on its context so tool handlers can
// resolve per-request identity from them.
func ServeHTTP(s *server.MCPServer, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return ContextWithHeaders(ctx, r)
		}),
	)
	slog.Info("mcp server listening", slog.String("addr", addr), slog.String("transport", "http"))
	return httpServer.Start(addr)
}
