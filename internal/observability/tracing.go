package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/scorchcrawl/scorchcrawl-mcp/internal/config"
)

// SetupTracing installs a process-wide TracerProvider so that otelhttp
// instrumentation on outbound scraping-engine and agent-runtime calls has
// something to record spans against (local fetches use a plain http.Client
// and produce no spans). Unlike the teacher's OTLP-exporting setup, no span
// processor or exporter is registered, so sampled spans are not shipped
// anywhere; operators who want export can add a batcher with an OTLP
// exporter here without touching call sites.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.OTELServiceName),
	))
	if err != nil {
		return nil, err
	}

	samplingRatio := 1.0
	if cfg.IsProd() {
		samplingRatio = 0.1
	}
	sampler := trace.ParentBased(trace.TraceIDRatioBased(samplingRatio))
	slog.Info("tracing configured", slog.Float64("sampling_ratio", samplingRatio))

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
