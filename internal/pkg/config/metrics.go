package config

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConfigMetrics exposes the health of a component's configuration:
//   - <component>_config_load_timestamp
//   - <component>_config_validation_errors_total{field}
//   - <component>_config_fallbacks_total{field,reason}
//   - <component>_config_fallback_active{field}
//
// A nil *ConfigMetrics is valid and records nothing.
type ConfigMetrics struct {
	LoadTimestamp         prometheus.Gauge
	ValidationErrorsTotal *prometheus.CounterVec
	FallbacksTotal        *prometheus.CounterVec
	FallbackActive        *prometheus.GaugeVec
}

// NewConfigMetrics registers the metrics for component with the default
// registry. Registering the same component twice panics.
func NewConfigMetrics(component string) *ConfigMetrics {
	return NewConfigMetricsWith(component, prometheus.DefaultRegisterer)
}

// NewConfigMetricsWith registers the metrics with reg.
func NewConfigMetricsWith(component string, reg prometheus.Registerer) *ConfigMetrics {
	f := promauto.With(reg)
	return &ConfigMetrics{
		LoadTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_config_load_timestamp", component),
			Help: fmt.Sprintf("Unix timestamp of the last %s configuration load", component),
		}),
		ValidationErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_config_validation_errors_total", component),
			Help: fmt.Sprintf("Rejected %s configuration values by field", component),
		}, []string{"field"}),
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_config_fallbacks_total", component),
			Help: fmt.Sprintf("%s configuration fallbacks by field and reason", component),
		}, []string{"field", "reason"}),
		FallbackActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_config_fallback_active", component),
			Help: fmt.Sprintf("1 while a %s field runs on its default after a rejected value", component),
		}, []string{"field"}),
	}
}

func (m *ConfigMetrics) RecordLoadTimestamp() {
	if m == nil {
		return
	}
	m.LoadTimestamp.SetToCurrentTime()
}

func (m *ConfigMetrics) RecordValidationError(field string) {
	if m == nil {
		return
	}
	m.ValidationErrorsTotal.WithLabelValues(field).Inc()
}

func (m *ConfigMetrics) RecordFallback(field, reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(field, reason).Inc()
}

func (m *ConfigMetrics) SetFallbackActive(field string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	m.FallbackActive.WithLabelValues(field).Set(v)
}
