// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - HTTP request metrics for the admin API
//   - Fetch pipeline metrics (runs, retry decisions, lock contention)
//   - Health and scraping metrics
//   - Job queue and database metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint. Most pipeline metrics are recorded by
// the Instrumentation event listener rather than by the use cases themselves.
//
// Example usage:
//
//	import "feed-monitor/internal/observability/metrics"
//
//	bus.Register(metrics.NewInstrumentation())
//	metrics.RecordJobProcessed("fetch_source", "success", time.Since(start))
package metrics
