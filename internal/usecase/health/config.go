// Package health tracks a rolling window of fetch outcomes per source and
// derives the source's health status, auto-pausing sources that keep failing.
package health

import (
	"fmt"
	"time"
)

// Config holds the health thresholds. It is passed by value and never
// mutated after construction.
type Config struct {
	// WindowSize is the number of most recent fetch outcomes kept.
	WindowSize int
	// HealthyThreshold is the minimum success rate of a healthy source.
	HealthyThreshold float64
	// WarningThreshold marks the lower edge of the warning band. Rates between
	// AutoPauseThreshold and WarningThreshold are also reported as warning.
	WarningThreshold float64
	// AutoPauseThreshold pauses the source when the rate falls below it.
	AutoPauseThreshold float64
	// AutoResumeThreshold resumes a paused source before its cooldown ends.
	AutoResumeThreshold float64
	// Cooldown is how long an auto-pause lasts before re-evaluation.
	Cooldown time.Duration
	// MinSamples is the number of outcomes required before a source can be
	// auto-paused. Values below 1 are treated as 1.
	MinSamples int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSize:          20,
		HealthyThreshold:    0.8,
		WarningThreshold:    0.5,
		AutoPauseThreshold:  0.2,
		AutoResumeThreshold: 0.6,
		Cooldown:            60 * time.Minute,
		MinSamples:          1,
	}
}

// Validate checks that the thresholds are ordered and in range.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	for name, v := range map[string]float64{
		"healthy_threshold":     c.HealthyThreshold,
		"warning_threshold":     c.WarningThreshold,
		"auto_pause_threshold":  c.AutoPauseThreshold,
		"auto_resume_threshold": c.AutoResumeThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if !(c.AutoPauseThreshold <= c.WarningThreshold && c.WarningThreshold <= c.HealthyThreshold) {
		return fmt.Errorf("thresholds must satisfy auto_pause <= warning <= healthy")
	}
	if c.AutoResumeThreshold < c.AutoPauseThreshold {
		return fmt.Errorf("auto_resume_threshold must not be below auto_pause_threshold")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %s", c.Cooldown)
	}
	return nil
}
