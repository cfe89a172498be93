// Package config defines configuration parsing for the MCP bridge.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all process configuration parsed from environment variables.
type Config struct {
	AppEnv          string `env:"APP_ENV" envDefault:"dev"`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"scorchcrawl-mcp"`

	// Transport selects how the MCP server exposes itself to clients.
	Transport string `env:"MCP_TRANSPORT" envDefault:"stdio"` // stdio | http
	MCPHost   string `env:"MCP_HOST" envDefault:"0.0.0.0"`
	MCPPort   int    `env:"MCP_PORT" envDefault:"8931"`

	// Admin HTTP bind, serving only /healthz and /metrics.
	AdminHost string `env:"ADMIN_HOST" envDefault:"0.0.0.0"`
	AdminPort int    `env:"ADMIN_PORT" envDefault:"8932"`

	// Upstream targets.
	ScrapingAPIURL string `env:"SCORCHCRAWL_API_URL" envDefault:"http://localhost:3002"`
	ScrapingAPIKey string `env:"SCORCHCRAWL_API_KEY"`
	CopilotToken   string `env:"COPILOT_TOKEN"`

	// Agent models.
	AllowedModels []string `env:"SCORCHCRAWL_ALLOWED_MODELS" envSeparator:"," envDefault:"gpt-4.1,claude-3.5-sonnet,gpt-4o-mini"`
	DefaultModel  string   `env:"SCORCHCRAWL_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`

	// Rate/concurrency thresholds (see ratelimit.Config.Normalize for normalized use).
	MaxGlobalConcurrency int           `env:"SCORCHCRAWL_MAX_GLOBAL_CONCURRENCY" envDefault:"20"`
	MaxUserConcurrency   int           `env:"SCORCHCRAWL_MAX_USER_CONCURRENCY" envDefault:"3"`
	RateWindowMS         int64         `env:"SCORCHCRAWL_RATE_WINDOW_MS" envDefault:"60000"`
	MaxGlobalPerWindow   int           `env:"SCORCHCRAWL_MAX_GLOBAL_PER_WINDOW" envDefault:"300"`
	MaxUserPerWindow     int           `env:"SCORCHCRAWL_MAX_USER_PER_WINDOW" envDefault:"30"`
	QuotaRejectPercent   float64       `env:"SCORCHCRAWL_QUOTA_REJECT_PERCENT" envDefault:"5"`
	StaleJobTimeoutMS    int64         `env:"SCORCHCRAWL_STALE_JOB_TIMEOUT_MS" envDefault:"600000"`
	GCIntervalMS         int64         `env:"SCORCHCRAWL_GC_INTERVAL_MS" envDefault:"60000"`
	HTTPClientTimeout    time.Duration `env:"SCORCHCRAWL_HTTP_TIMEOUT" envDefault:"30s"`

	// BYOK provider, enabled only when both Type and BaseURL are set.
	BYOKProviderType string `env:"SCORCHCRAWL_BYOK_PROVIDER"` // openai | azure | anthropic
	BYOKBaseURL      string `env:"SCORCHCRAWL_BYOK_BASE_URL"`
	BYOKAPIKey       string `env:"SCORCHCRAWL_BYOK_API_KEY"`

	// Modes.
	CloudService bool `env:"SCORCHCRAWL_CLOUD_SERVICE" envDefault:"false"`
	LocalProxy   bool `env:"SCORCHCRAWL_LOCAL_PROXY" envDefault:"false"`
	SafeMode     bool `env:"SCORCHCRAWL_SAFE_MODE" envDefault:"false"`

	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses environment variables into a Config and normalizes derived modes.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	cfg.AllowedModels = trimNonEmpty(cfg.AllowedModels)
	if cfg.CloudService {
		// cloud-service implies safe-mode regardless of the operator's explicit setting.
		cfg.SafeMode = true
	}
	proxyFromURL, strippedURL := extractLocalProxyQueryParam(cfg.ScrapingAPIURL)
	cfg.LocalProxy = cfg.LocalProxy || proxyFromURL
	cfg.ScrapingAPIURL = strippedURL
	return cfg, nil
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractLocalProxyQueryParam reports whether the engine URL carries
// ?localProxy=true|1 and returns the URL with that query parameter stripped,
// since the scraping client must never forward it upstream.
func extractLocalProxyQueryParam(rawURL string) (bool, string) {
	idx := strings.IndexByte(rawURL, '?')
	if idx < 0 {
		return false, rawURL
	}
	base, query := rawURL[:idx], rawURL[idx+1:]
	params := strings.Split(query, "&")
	kept := make([]string, 0, len(params))
	found := false
	for _, p := range params {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 && kv[0] == "localProxy" {
			v := strings.ToLower(kv[1])
			if v == "true" || v == "1" {
				found = true
			}
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return found, base
	}
	return found, base + "?" + strings.Join(kept, "&")
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// BYOKEnabled reports whether a bring-your-own-key provider override is configured.
func (c Config) BYOKEnabled() bool {
	return c.BYOKProviderType != "" && c.BYOKBaseURL != ""
}
