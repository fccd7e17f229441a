package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion counters and histograms, partitioned by source.

var (
	// Fetcher
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "fetch",
		Name:      "attempts_total",
		Help:      "Total HTTP fetch attempts, including retries",
	}, []string{"source"})

	FetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "fetch",
		Name:      "retries_total",
		Help:      "Total retried fetch attempts",
	}, []string{"source"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "fetch",
		Name:      "errors_total",
		Help:      "Total fetches that failed after retry exhaustion",
	}, []string{"source"})

	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "fetch",
		Name:      "rate_limit_waits_total",
		Help:      "Total acquisitions that had to wait for the rate limiter",
	}, []string{"source"})

	// Ingestion
	PollsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "ingest",
		Name:      "polls_fetched_total",
		Help:      "Total poll items seen in source payloads",
	}, []string{"source"})

	PollsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "ingest",
		Name:      "polls_upserted_total",
		Help:      "Total polls persisted (created or replaced)",
	}, []string{"source"})

	ItemErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "ingest",
		Name:      "item_errors_total",
		Help:      "Total poll items skipped due to schema validation failure",
	}, []string{"source"})

	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Total ingestion runs by terminal status",
	}, []string{"source", "status"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pollindexer",
		Subsystem: "ingest",
		Name:      "run_duration_seconds",
		Help:      "Ingestion run duration",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"source"})

	// Read API
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollindexer",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total read API requests by path and status code",
	}, []string{"path", "code"})
)
