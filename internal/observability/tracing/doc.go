// Package tracing wires OpenTelemetry into the monitor: the tracer used by
// the fetch and scrape pipelines, provider setup for the cmd binaries, and
// an HTTP middleware for the admin API.
package tracing
