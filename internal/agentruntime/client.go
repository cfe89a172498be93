// Package agentruntime implements the downstream LLM-driven agent session
// the rest of the module treats as an opaque collaborator: it owns nothing
// but the chat-completions request/response cycle and the tool-calling loop
// that lets the model drive the four scraping callables.
package agentruntime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/agent"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
)

// maxErrBodyBytes bounds how much of an error response body is read into
// the error text the error hook classifies against.
const maxErrBodyBytes = 2048

// maxToolCallRounds bounds the tool-calling loop so a misbehaving model
// cannot keep the session (and its concurrency slot) alive forever.
const maxToolCallRounds = 8

// Config describes how to reach the chat-completions-compatible endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a single LLM-runtime session handle, cached per identity by
// agent.SessionClientCache.
type Client struct {
	cfg     Config
	hc      *http.Client
	tools   *agent.ToolSet
	token   string
}

// New builds a session client bound to cfg and the scraping tool set,
// authenticating outbound requests with token (the per-identity or
// process-wide LLM-runtime token).
func New(cfg Config, tools *agent.ToolSet, token string) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "agentruntime " + r.Method + " " + r.URL.Path
		}),
	)
	return &Client{
		cfg:   cfg,
		hc:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		tools: tools,
		token: token,
	}
}

var _ domain.AgentSessionRuntime = (*Client)(nil)

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolSchema  `json:"tools,omitempty"`
}

type toolSchema struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Run drives the tool-calling loop until the model stops requesting tools or
// maxToolCallRounds is reached, returning the final assistant message. Every
// model-call and tool-execution error is routed through the job's error
// hook (agent.HandleError) so the hook's abort/retry/skip decisions, and any
// user-visible note, actually take effect instead of being decided ad hoc
// here.
func (c *Client) Run(ctx context.Context, jobID, prompt, model string, onProgress func(string)) (string, error) {
	messages := []chatMessage{{Role: "user", Content: prompt}}

	for round := 0; round < maxToolCallRounds; round++ {
		if onProgress != nil {
			onProgress(fmt.Sprintf("round %d: calling model", round+1))
		}
		msg, err := c.chatOnceWithErrorHook(ctx, jobID, model, messages)
		if err != nil {
			return "", err
		}
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			if onProgress != nil {
				onProgress(fmt.Sprintf("round %d: running tool %s", round+1, call.Function.Name))
			}
			result := c.dispatchTool(ctx, call)
			if result.ResultType == agent.ToolResultFailure {
				decision := agent.HandleError(agent.ErrorOccurrence{
					JobID:       jobID,
					ErrorText:   result.Error,
					Context:     agent.ErrorContextToolExecution,
					Recoverable: true,
				})
				if decision.Decision == agent.DecisionAbort {
					if decision.Note != "" {
						return "", fmt.Errorf("%w: %s", domain.ErrAgentFailed, decision.Note)
					}
					return "", fmt.Errorf("%w: tool %s failed: %s", domain.ErrAgentFailed, call.Function.Name, result.Error)
				}
				// retry or skip: feed the failure back to the model as the
				// tool result and let the next round decide what to do.
			}
			messages = append(messages, chatMessage{Role: "tool", ToolCallID: call.ID, Content: result.TextForLLM})
		}
	}
	return "", fmt.Errorf("%w: exceeded %d tool-call rounds without a final answer", domain.ErrAgentFailed, maxToolCallRounds)
}

// chatOnceWithErrorHook wraps chatOnce with the job's error hook: a
// recoverable model-call failure is retried up to the hook's retry budget,
// while an abort decision (quota, auth, rate limit) surfaces immediately,
// using the hook's user-visible note when one is set.
func (c *Client) chatOnceWithErrorHook(ctx context.Context, jobID, model string, messages []chatMessage) (chatMessage, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		msg, err := c.chatOnce(ctx, model, messages)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		decision := agent.HandleError(agent.ErrorOccurrence{
			JobID:       jobID,
			ErrorText:   err.Error(),
			Context:     agent.ErrorContextModelCall,
			Recoverable: !errors.Is(err, domain.ErrAgentFailed),
		})
		if decision.Decision == agent.DecisionRetry && attempt < decision.RetryCount {
			continue
		}
		if decision.Note != "" {
			return chatMessage{}, fmt.Errorf("%w: %s", domain.ErrAgentFailed, decision.Note)
		}
		return chatMessage{}, lastErr
	}
}

func (c *Client) dispatchTool(ctx context.Context, call toolCall) agent.ToolResult {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return agent.ToolResult{TextForLLM: "invalid tool arguments: " + err.Error(), ResultType: agent.ToolResultFailure, Error: err.Error()}
	}
	switch call.Function.Name {
	case "web_scrape":
		url, _ := args["url"].(string)
		formats := stringSlice(args["formats"])
		onlyMain, _ := args["onlyMainContent"].(bool)
		return c.tools.WebScrape(ctx, url, formats, onlyMain, 0)
	case "web_search":
		query, _ := args["query"].(string)
		limit := intArg(args["limit"])
		return c.tools.WebSearch(ctx, query, limit)
	case "web_map":
		url, _ := args["url"].(string)
		search, _ := args["search"].(string)
		limit := intArg(args["limit"])
		return c.tools.WebMap(ctx, url, search, limit)
	case "web_extract":
		urls := stringSlice(args["urls"])
		prompt, _ := args["prompt"].(string)
		schema, _ := args["schema"].(map[string]any)
		return c.tools.WebExtract(ctx, urls, prompt, schema)
	default:
		return agent.ToolResult{TextForLLM: "unknown tool: " + call.Function.Name, ResultType: agent.ToolResultFailure, Error: "unknown tool"}
	}
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intArg(v any) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

func (c *Client) chatOnce(ctx context.Context, model string, messages []chatMessage) (chatMessage, error) {
	body, _ := json.Marshal(chatRequest{Model: model, Messages: messages, Tools: toolSchemas()})

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 250 * time.Millisecond
	expo.MaxInterval = 4 * time.Second
	expo.MaxElapsedTime = 20 * time.Second

	var out chatMessage
	op := func() error {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Content-Type", "application/json")
		// The BYOK provider's own key, when configured, always wins over the
		// per-session Copilot/GitHub token: a BYOK endpoint has no use for a
		// Copilot credential, and without this the configured BYOK key would
		// be silently ignored in favor of the passed-through session token.
		auth := c.cfg.APIKey
		if auth == "" {
			auth = c.token
		}
		if auth != "" {
			r.Header.Set("Authorization", "Bearer "+auth)
		}
		resp, err := c.hc.Do(r)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("agent runtime status %d: %s", resp.StatusCode, readErrBody(resp))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%w: agent runtime status %d: %s", domain.ErrAgentFailed, resp.StatusCode, readErrBody(resp)))
		}
		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decoding agent runtime response: %s", domain.ErrAgentFailed, err.Error()))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: agent runtime returned no choices", domain.ErrAgentFailed))
		}
		out = parsed.Choices[0].Message
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		slog.Warn("agent runtime chat call failed", slog.Any("error", err))
		return chatMessage{}, err
	}
	return out, nil
}

// readErrBody returns a bounded snippet of a non-2xx response body, so the
// error hook's pattern table has real provider error text ("quota
// exceeded", "not licensed", ...) to classify against instead of just a
// status code.
func readErrBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
	return strings.TrimSpace(string(body))
}

func toolSchemas() []toolSchema {
	return []toolSchema{
		stringSchema("web_scrape", "Fetch a single URL and return its content.", map[string]any{
			"url":             map[string]any{"type": "string"},
			"formats":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"onlyMainContent": map[string]any{"type": "boolean"},
		}, []string{"url"}),
		stringSchema("web_search", "Run a web search.", map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "number"},
		}, []string{"query"}),
		stringSchema("web_map", "Discover URLs reachable from a site.", map[string]any{
			"url":    map[string]any{"type": "string"},
			"search": map[string]any{"type": "string"},
			"limit":  map[string]any{"type": "number"},
		}, []string{"url"}),
		stringSchema("web_extract", "Extract structured data from URLs.", map[string]any{
			"urls":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"prompt": map[string]any{"type": "string"},
			"schema": map[string]any{"type": "object"},
		}, []string{"urls"}),
	}
}

func stringSchema(name, description string, props map[string]any, required []string) toolSchema {
	var s toolSchema
	s.Type = "function"
	s.Function.Name = name
	s.Function.Description = description
	s.Function.Parameters = map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	return s
}

// Close is a no-op: the client holds no subprocess or persistent connection,
// only a pooled http.Client the transport already manages.
func (c *Client) Close() error { return nil }
