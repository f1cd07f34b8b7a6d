package worker

import (
	"time"

	"feed-monitor/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cron trigger names used as metric labels.
const (
	TriggerFetchScheduler   = "fetch_scheduler"
	TriggerScrapeScheduler  = "scrape_scheduler"
	TriggerReconciler       = "reconciler"
	TriggerScrapeReconciler = "scrape_reconciler"
)

// WorkerMetrics provides Prometheus metrics for the worker process.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// per-trigger cron metrics and dispatcher gauges.
//
// Worker-specific metrics:
//   - worker_cron_trigger_runs_total{trigger,status}
//   - worker_cron_trigger_duration_seconds{trigger}
//   - worker_cron_trigger_enqueued_total{trigger}
//   - worker_cron_trigger_last_success_timestamp{trigger}
//   - worker_jobs_in_flight
//   - worker_jobs_released_total
type WorkerMetrics struct {
	*config.ConfigMetrics

	CronTriggerRunsTotal            *prometheus.CounterVec
	CronTriggerDurationSeconds      *prometheus.HistogramVec
	CronTriggerEnqueuedTotal        *prometheus.CounterVec
	CronTriggerLastSuccessTimestamp *prometheus.GaugeVec
	JobsInFlight                    prometheus.Gauge
	JobsReleasedTotal               prometheus.Counter
}

// NewWorkerMetrics creates and registers the worker metrics with the default
// registry. It must be called once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		CronTriggerRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_trigger_runs_total",
			Help: "Total number of cron trigger runs by trigger and status (success/failure)",
		}, []string{"trigger", "status"}),

		CronTriggerDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_cron_trigger_duration_seconds",
			Help:    "Duration of cron trigger runs in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 60},
		}, []string{"trigger"}),

		CronTriggerEnqueuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_trigger_enqueued_total",
			Help: "Total number of jobs enqueued or rows reset by cron triggers",
		}, []string{"trigger"}),

		CronTriggerLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_cron_trigger_last_success_timestamp",
			Help: "Unix timestamp of the last successful run of each cron trigger",
		}, []string{"trigger"}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_jobs_in_flight",
			Help: "Number of jobs currently executing in this worker",
		}),

		JobsReleasedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_jobs_released_total",
			Help: "Total number of stale job locks released",
		}),
	}
}

// RecordTriggerRun records one run of a cron trigger. count is the number of
// jobs the trigger enqueued (or rows it reset) and is ignored on failure.
func (m *WorkerMetrics) RecordTriggerRun(trigger string, count int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.CronTriggerRunsTotal.WithLabelValues(trigger, status).Inc()
	m.CronTriggerDurationSeconds.WithLabelValues(trigger).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.CronTriggerEnqueuedTotal.WithLabelValues(trigger).Add(float64(count))
	m.CronTriggerLastSuccessTimestamp.WithLabelValues(trigger).SetToCurrentTime()
}

// AddJobsInFlight adjusts the in-flight gauge. A nil receiver is a no-op.
func (m *WorkerMetrics) AddJobsInFlight(delta float64) {
	if m == nil || m.JobsInFlight == nil {
		return
	}
	m.JobsInFlight.Add(delta)
}

// RecordJobsReleased counts stale job locks released by the dispatcher.
func (m *WorkerMetrics) RecordJobsReleased(n int64) {
	if m == nil || m.JobsReleasedTotal == nil {
		return
	}
	m.JobsReleasedTotal.Add(float64(n))
}
