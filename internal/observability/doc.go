// Package observability groups the logging, metrics and tracing packages
// used by every binary of the monitor.
//
// Subpackages:
//   - logging: slog logger construction and context propagation
//   - metrics: Prometheus collectors and the event bus Instrumentation listener
//   - tracing: OpenTelemetry provider setup and HTTP middleware
package observability
