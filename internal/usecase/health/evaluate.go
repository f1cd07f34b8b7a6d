package health

import (
	"time"

	"feed-monitor/internal/domain/entity"
)

// SuccessRate returns the share of successes in window. An empty window counts as healthy.
func SuccessRate(window []bool) float64 {
	if len(window) == 0 {
		return 1
	}
	ok := 0
	for _, success := range window {
		if success {
			ok++
		}
	}
	return float64(ok) / float64(len(window))
}

// Push appends an outcome to window, dropping the oldest entries beyond size.
func Push(window []bool, success bool, size int) []bool {
	out := append(append(make([]bool, 0, len(window)+1), window...), success)
	if len(out) > size {
		out = out[len(out)-size:]
	}
	return out
}

// classify maps a success rate onto a status for a source that is not paused.
func (c Config) classify(rate float64) entity.HealthStatus {
	if rate >= c.HealthyThreshold {
		return entity.HealthStatusHealthy
	}
	return entity.HealthStatusWarning
}

// Apply records one outcome on src and re-evaluates its health at now.
func (c Config) Apply(src *entity.Source, success bool, now time.Time) {
	src.HealthWindow = Push(src.HealthWindow, success, c.WindowSize)
	c.Evaluate(src, now)
}

// Evaluate recomputes HealthSuccessRate, HealthStatus and AutoPausedUntil from
// the window already stored on src.
//
// A paused source resumes once its rate reaches AutoResumeThreshold. When the
// cooldown has elapsed it is re-evaluated: still below AutoPauseThreshold
// starts a fresh cooldown, anything else resumes.
func (c Config) Evaluate(src *entity.Source, now time.Time) {
	rate := SuccessRate(src.HealthWindow)
	src.HealthSuccessRate = rate

	if src.HealthStatus == entity.HealthStatusAutoPaused {
		cooling := src.AutoPausedUntil != nil && src.AutoPausedUntil.After(now)
		switch {
		case rate >= c.AutoResumeThreshold:
			c.resume(src, rate)
		case cooling:
			// stay paused until the cooldown ends
		case rate < c.AutoPauseThreshold:
			c.pause(src, now)
		default:
			c.resume(src, rate)
		}
		return
	}

	minSamples := c.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	if rate < c.AutoPauseThreshold && len(src.HealthWindow) >= minSamples {
		c.pause(src, now)
		return
	}
	src.HealthStatus = c.classify(rate)
	src.AutoPausedUntil = nil
}

func (c Config) pause(src *entity.Source, now time.Time) {
	until := now.Add(c.Cooldown)
	src.HealthStatus = entity.HealthStatusAutoPaused
	src.AutoPausedUntil = &until
	if src.NextFetchAt == nil || src.NextFetchAt.Before(until) {
		src.NextFetchAt = &until
	}
}

func (c Config) resume(src *entity.Source, rate float64) {
	src.HealthStatus = c.classify(rate)
	src.AutoPausedUntil = nil
}
