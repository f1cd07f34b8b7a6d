// Package config loads the operator policy file that tunes the fetch retry
// table and the source health thresholds.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"feed-monitor/internal/usecase/fetch"
	"feed-monitor/internal/usecase/health"
)

// RetryRuleOverride replaces fields of one retry table row. Unset fields
// keep the built-in value.
type RetryRuleOverride struct {
	MaxAttempts *int           `yaml:"max_attempts"`
	Wait        *time.Duration `yaml:"wait"`
	CircuitWait *time.Duration `yaml:"circuit_wait"`
}

// HealthOverride replaces fields of the health configuration.
type HealthOverride struct {
	WindowSize          *int           `yaml:"window_size"`
	HealthyThreshold    *float64       `yaml:"healthy_threshold"`
	WarningThreshold    *float64       `yaml:"warning_threshold"`
	AutoPauseThreshold  *float64       `yaml:"auto_pause_threshold"`
	AutoResumeThreshold *float64       `yaml:"auto_resume_threshold"`
	Cooldown            *time.Duration `yaml:"cooldown"`
	MinSamples          *int           `yaml:"min_samples"`
}

// Policy is the parsed policy file:
//
//	retry:
//	  http_429: {max_attempts: 3, wait: 20m, circuit_wait: 2h}
//	health:
//	  window_size: 30
//	  cooldown: 2h
type Policy struct {
	Retry  map[fetch.ErrorClass]RetryRuleOverride `yaml:"retry"`
	Health *HealthOverride                         `yaml:"health"`
}

// LoadPolicy reads and validates the policy file at path.
// An empty path yields an empty policy, which keeps every default.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a policy document. Unknown keys and unknown error
// classes are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if _, err := p.RetryTable(); err != nil {
		return nil, fmt.Errorf("policy validation failed: %w", err)
	}
	if _, err := p.HealthConfig(); err != nil {
		return nil, fmt.Errorf("policy validation failed: %w", err)
	}
	return &p, nil
}

// RetryTable returns the built-in retry table with the overrides applied.
func (p *Policy) RetryTable() (fetch.RetryTable, error) {
	table := fetch.DefaultRetryTable()
	for class, o := range p.Retry {
		rule, ok := table[class]
		if !ok {
			return nil, fmt.Errorf("retry: unknown error class %q", class)
		}
		if o.MaxAttempts != nil {
			rule.MaxAttempts = *o.MaxAttempts
		}
		if o.Wait != nil {
			rule.Wait = *o.Wait
		}
		if o.CircuitWait != nil {
			rule.CircuitWait = *o.CircuitWait
		}
		if rule.MaxAttempts < 0 {
			return nil, fmt.Errorf("retry.%s: max_attempts must not be negative", class)
		}
		if rule.Wait <= 0 || rule.CircuitWait <= 0 {
			return nil, fmt.Errorf("retry.%s: wait and circuit_wait must be positive", class)
		}
		table[class] = rule
	}
	return table, nil
}

// HealthConfig returns the default health configuration with the overrides
// applied and validated.
func (p *Policy) HealthConfig() (health.Config, error) {
	cfg := health.DefaultConfig()
	if o := p.Health; o != nil {
		setIf(&cfg.WindowSize, o.WindowSize)
		setIf(&cfg.HealthyThreshold, o.HealthyThreshold)
		setIf(&cfg.WarningThreshold, o.WarningThreshold)
		setIf(&cfg.AutoPauseThreshold, o.AutoPauseThreshold)
		setIf(&cfg.AutoResumeThreshold, o.AutoResumeThreshold)
		setIf(&cfg.Cooldown, o.Cooldown)
		setIf(&cfg.MinSamples, o.MinSamples)
	}
	if err := cfg.Validate(); err != nil {
		return health.Config{}, fmt.Errorf("health: %w", err)
	}
	return cfg, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
