// Package metrics defines Prometheus instrumentation for the engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engram",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"layer", "result"}, // layer: "local"/"store", result: "hit"/"miss"
	)

	EmbeddingBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "engram",
			Name:      "embedding_breaker_state",
			Help:      "Encoder circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)
)

// Search metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "searches_total",
			Help:      "Total number of search requests",
		},
		[]string{"outcome"}, // "ok" / "partial" / "error"
	)

	SearchTierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "engram",
			Name:      "search_tier_duration_seconds",
			Help:      "Per-tier search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"scope"},
	)
)

// Write and lifecycle metrics.
var (
	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "writes_total",
			Help:      "Total number of write requests",
		},
		[]string{"status"}, // "ok" / "rejected" / "error"
	)

	SummariesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "summaries_total",
			Help:      "Total number of summarization runs",
		},
		[]string{"outcome"}, // "created" / "skipped" / "error"
	)

	EventsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "engram",
			Name:      "events_pruned_total",
			Help:      "Total number of events archived by the pruner",
		},
	)
)

var registered bool

// Register registers all engine metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingCacheTotal,
		EmbeddingBreakerState,
		SearchesTotal,
		SearchTierDuration,
		WritesTotal,
		SummariesTotal,
		EventsPrunedTotal,
	)
	registered = true
}
