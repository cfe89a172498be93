package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConcurrencyGlobalActive is registered for the tracker's global count;
	// no code path sets it, so it reports zero.
	ConcurrencyGlobalActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scorchcrawl_agent_concurrency_global_active",
		Help: "Number of agent jobs currently in flight across all identities",
	})
	// ConcurrencyPerIdentity is registered for per-identity counts; no code
	// path sets it, so it exposes no series.
	ConcurrencyPerIdentity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scorchcrawl_agent_concurrency_per_identity",
		Help: "Number of agent jobs currently in flight for a given identity",
	}, []string{"identity"})

	// RateLimitRejectionsTotal counts admission rejections by the stage that rejected them.
	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorchcrawl_rate_limit_rejections_total",
		Help: "Total admission rejections by guard stage",
	}, []string{"stage"})

	// AgentJobsStartedTotal counts jobs admitted into the engine.
	AgentJobsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorchcrawl_agent_jobs_started_total",
		Help: "Total agent jobs admitted and started",
	})
	// AgentJobsCompletedTotal counts jobs that reached a terminal status, by status.
	AgentJobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorchcrawl_agent_jobs_completed_total",
		Help: "Total agent jobs that reached a terminal status",
	}, []string{"status"})

	// StaleJobsReapedTotal counts jobs the reaper force-failed for exceeding the timeout.
	StaleJobsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scorchcrawl_agent_stale_jobs_reaped_total",
		Help: "Total agent jobs forcibly failed by the stale-job reaper",
	})

	// LocalFetchTotal counts local-fetch outcomes by result.
	LocalFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scorchcrawl_local_fetch_total",
		Help: "Total local-fetch attempts by outcome",
	}, []string{"outcome"})

	// EngineRequestDuration records downstream scraping-engine call durations by endpoint.
	EngineRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scorchcrawl_engine_request_duration_seconds",
		Help:    "Downstream scraping engine request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})
)

// Handler exposes the process's Prometheus registry as an http.Handler.
// The server mounts it at /metrics alongside the MCP transport.
func Handler() http.Handler {
	return promhttp.Handler()
}
