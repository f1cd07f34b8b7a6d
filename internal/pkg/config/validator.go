package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronSchedule accepts standard five-field cron expressions.
// Descriptors such as "@every 5m" are also accepted.
func ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("invalid cron schedule: cannot be empty")
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateTimezone accepts IANA names understood by time.LoadLocation.
func ValidateTimezone(timezone string) error {
	if timezone == "" {
		return fmt.Errorf("invalid timezone: cannot be empty")
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return nil
}

// ValidateDuration checks min <= d <= max.
func ValidateDuration(d, min, max time.Duration) error {
	return validateRange(d, min, max)
}

// ValidateIntRange checks min <= v <= max.
func ValidateIntRange(v, min, max int) error {
	return validateRange(v, min, max)
}

func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}

// IntRange, DurationRange and FloatRange adapt the range checks to the
// validator argument of the loaders.
func IntRange(min, max int) func(int) error {
	return func(v int) error { return validateRange(v, min, max) }
}

func DurationRange(min, max time.Duration) func(time.Duration) error {
	return func(d time.Duration) error { return validateRange(d, min, max) }
}

func FloatRange(min, max float64) func(float64) error {
	return func(f float64) error { return validateRange(f, min, max) }
}

func validateRange[T int | float64 | time.Duration](v, min, max T) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", min, max)
	}
	if v < min {
		return fmt.Errorf("value %v is below minimum %v", v, min)
	}
	if v > max {
		return fmt.Errorf("value %v exceeds maximum %v", v, max)
	}
	return nil
}
