// Command server starts the ScorchCrawl MCP bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/agent"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/agentruntime"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/config"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/domain"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/localfetch"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/mcpserver"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/observability"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/ratelimit"
	"github.com/scorchcrawl/scorchcrawl-mcp/internal/scrapeengine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	scrapeClient := scrapeengine.New(cfg.ScrapingAPIURL, cfg.ScrapingAPIKey, cfg.HTTPClientTimeout)
	toolSet := agent.NewToolSet(scrapeClient, mcpserver.OriginLabel)

	runtimeCfg := agentruntime.Config{
		BaseURL: resolveRuntimeBaseURL(cfg),
		APIKey:  resolveRuntimeAPIKey(cfg),
		Timeout: cfg.HTTPClientTimeout,
	}
	factory := func(ctx context.Context, token string) (domain.AgentSessionRuntime, error) {
		return agentruntime.New(runtimeCfg, toolSet, token), nil
	}

	guard := ratelimit.NewGuard(ratelimit.Config{
		MaxGlobalConcurrency: cfg.MaxGlobalConcurrency,
		MaxUserConcurrency:   cfg.MaxUserConcurrency,
		WindowMS:             cfg.RateWindowMS,
		MaxGlobalPerWindow:   cfg.MaxGlobalPerWindow,
		MaxUserPerWindow:     cfg.MaxUserPerWindow,
		QuotaRejectPercent:   cfg.QuotaRejectPercent,
		StaleJobTimeoutMS:    cfg.StaleJobTimeoutMS,
		GCIntervalMS:         cfg.GCIntervalMS,
	})

	engine := agent.NewEngine(guard, factory, agent.EngineConfig{
		AllowedModels:   cfg.AllowedModels,
		DefaultModel:    cfg.DefaultModel,
		ProcessToken:    cfg.CopilotToken,
		StaleJobTimeout: time.Duration(cfg.StaleJobTimeoutMS) * time.Millisecond,
		GCInterval:      time.Duration(cfg.GCIntervalMS) * time.Millisecond,
	})

	deps := &mcpserver.Deps{
		Engine:        engine,
		ScrapeClient:  scrapeClient,
		LocalFetch:    localfetch.New(),
		LocalProxy:    cfg.LocalProxy,
		ProcessToken:  cfg.CopilotToken,
		AllowedModels: cfg.AllowedModels,
		DefaultModel:  cfg.DefaultModel,
	}
	mcpSrv := mcpserver.New(deps)

	adminRouter := chi.NewRouter()
	adminRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	adminRouter.Mount("/metrics", observability.Handler())

	adminHTTP := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.AdminHost, cfg.AdminPort),
		Handler:           adminRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("admin server starting", slog.Int("port", cfg.AdminPort))
		if err := adminHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		switch cfg.Transport {
		case "http":
			addr := fmt.Sprintf("%s:%d", cfg.MCPHost, cfg.MCPPort)
			errCh <- mcpserver.ServeHTTP(mcpSrv, addr)
		default:
			slog.Info("mcp server listening", slog.String("transport", "stdio"))
			errCh <- mcpserver.ServeStdio(mcpSrv)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = adminHTTP.Shutdown(shutdownCtx)
	engine.Shutdown()
}

// resolveRuntimeBaseURL prefers an operator-configured BYOK endpoint,
// falling back to the default Copilot runtime base URL.
func resolveRuntimeBaseURL(cfg config.Config) string {
	if cfg.BYOKEnabled() {
		return cfg.BYOKBaseURL
	}
	return "https://api.githubcopilot.com"
}

// resolveRuntimeAPIKey returns the BYOK provider's API key when one is
// configured. Outside BYOK mode the runtime authenticates with each
// session's own per-identity or process-wide Copilot token instead (see
// agentruntime.Client.chatOnce), so there is no process-wide key to return.
func resolveRuntimeAPIKey(cfg config.Config) string {
	if cfg.BYOKEnabled() {
		return cfg.BYOKAPIKey
	}
	return ""
}
