package config

import "log/slog"

// Recorder collects the fallbacks of one configuration load, logging each
// and mirroring it into ConfigMetrics. logger and metrics may be nil.
type Recorder struct {
	logger   *slog.Logger
	metrics  *ConfigMetrics
	warnings []string
}

func NewRecorder(logger *slog.Logger, metrics *ConfigMetrics) *Recorder {
	return &Recorder{logger: logger, metrics: metrics}
}

// Apply records res under field and returns its value.
func Apply[T any](r *Recorder, field string, res Result[T]) T {
	r.metrics.SetFallbackActive(field, res.FallbackApplied)
	if !res.FallbackApplied {
		return res.Value
	}

	r.warnings = append(r.warnings, res.Warning)
	r.metrics.RecordValidationError(field)
	r.metrics.RecordFallback(field, "default")
	if r.logger != nil {
		r.logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", res.Warning))
	}
	return res.Value
}

// Warnings returns the fallback warnings recorded so far.
func (r *Recorder) Warnings() []string { return r.warnings }

// Done stamps the load time.
func (r *Recorder) Done() { r.metrics.RecordLoadTimestamp() }
