// Package config reads settings from environment variables with a
// fail-open policy: a value that does not parse or validate is replaced by
// the caller's default and reported as a warning instead of an error, so a
// typo in one variable never keeps the worker from starting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of loading one variable.
type Result[T any] struct {
	Value T

	// Warning explains why the default was used. Empty unless FallbackApplied.
	Warning         string
	FallbackApplied bool
}

// Lookup returns the variable's value, or def when it is unset or empty.
func Lookup(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads key, parses it and validates the parsed value. An unset or
// empty variable yields def without a warning. validate may be nil.
func Load[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := os.Getenv(key)
	if raw == "" {
		return Result[T]{Value: def}
	}

	v, err := parse(strings.TrimSpace(raw))
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return Result[T]{
			Value:           def,
			Warning:         fmt.Sprintf("invalid %s=%q: %v, falling back to default %v", key, raw, err, def),
			FallbackApplied: true,
		}
	}
	return Result[T]{Value: v}
}

func String(key, def string, validate func(string) error) Result[string] {
	return Load(key, def, func(s string) (string, error) { return s, nil }, validate)
}

func Int(key string, def int, validate func(int) error) Result[int] {
	return Load(key, def, parseInt, validate)
}

func Float(key string, def float64, validate func(float64) error) Result[float64] {
	return Load(key, def, parseFloat, validate)
}

func Duration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return Load(key, def, time.ParseDuration, validate)
}

// Bool accepts the spellings of strconv.ParseBool.
func Bool(key string, def bool) Result[bool] {
	return Load(key, def, parseBool, nil)
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	return f, nil
}

func parseBool(s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected true or false")
	}
	return b, nil
}
