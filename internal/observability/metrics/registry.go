package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Fetch pipeline metrics
var (
	// SourcesTotal tracks the number of active sources
	SourcesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sources_active_total",
			Help: "Number of active feed sources",
		},
	)

	// FetchRunsTotal counts fetch runs by outcome
	FetchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_runs_total",
			Help: "Total number of fetch runs",
		},
		[]string{"outcome"}, // fetched, not_modified, failed, skipped, aborted
	)

	// FetchDuration measures the wall time of executed fetch runs
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Time taken by a fetch run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"outcome"},
	)

	// FetchItemsTotal counts feed entries processed by fetches
	FetchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_items_total",
			Help: "Total number of feed entries processed",
		},
		[]string{"result"}, // created, updated, failed
	)

	// RetryDecisionsTotal counts retry policy decisions
	RetryDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_retry_decisions_total",
			Help: "Total number of retry policy decisions",
		},
		[]string{"class", "decision"}, // decision: retry, open_circuit
	)

	// LockContentionTotal counts fetch runs rejected because the source lock was held
	LockContentionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_lock_contention_total",
			Help: "Total number of fetch runs that found the source lock held",
		},
	)

	// SchedulerEnqueuedTotal counts work enqueued by the periodic schedulers
	SchedulerEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_enqueued_total",
			Help: "Total number of jobs enqueued by schedulers",
		},
		[]string{"pipeline"}, // fetch, scrape
	)

	// StalledFetchesTotal counts orphaned fetching sources reset by the reconciler
	StalledFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_stalled_reset_total",
			Help: "Total number of stalled fetches reset",
		},
	)

	// ScrapesRecoveredTotal counts in-flight items cleared by the scrape reconciler
	ScrapesRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_inflight_recovered_total",
			Help: "Total number of stuck in-flight scrapes recovered",
		},
	)

	// HealthTransitionsTotal counts source health status changes
	HealthTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_health_transitions_total",
			Help: "Total number of source health status transitions",
		},
		[]string{"from", "to"},
	)

	// ScrapeOutcomesTotal counts finished scrape attempts by status
	ScrapeOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_outcomes_total",
			Help: "Total number of finished item scrapes",
		},
		[]string{"status"},
	)

	// JobsProcessedTotal counts jobs handled by workers
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed by workers",
		},
		[]string{"kind", "result"}, // result: success, retry, failed, interrupted
	)

	// JobDuration measures job handler duration
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Job handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind"},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}
