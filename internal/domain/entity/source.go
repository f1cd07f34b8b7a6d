package entity

import (
	"time"
)

// FetchStatus is the UI-facing state of a source's fetch pipeline.
// It is advisory only: exclusivity of a fetch is enforced by the advisory lock.
type FetchStatus string

const (
	FetchStatusIdle     FetchStatus = "idle"
	FetchStatusQueued   FetchStatus = "queued"
	FetchStatusFetching FetchStatus = "fetching"
	FetchStatusFailed   FetchStatus = "failed"
)

// HealthStatus is the rolling health classification of a source.
type HealthStatus string

const (
	HealthStatusHealthy    HealthStatus = "healthy"
	HealthStatusWarning    HealthStatus = "warning"
	HealthStatusAutoPaused HealthStatus = "auto_paused"
)

// RetentionStrategy controls how pruned items are removed.
type RetentionStrategy string

const (
	RetentionDestroy    RetentionStrategy = "destroy"
	RetentionSoftDelete RetentionStrategy = "soft_delete"
)

// DefaultFetchInterval is used when a source has no interval configured.
const DefaultFetchInterval = 60 * time.Minute

// Source represents a monitored feed endpoint.
// Fetch and health columns are written only by the fetch and health use cases.
type Source struct {
	ID            int64
	Name          string
	FeedURL       string
	FetchInterval time.Duration
	Active        bool

	// Fetch scheduling state
	FetchStatus           FetchStatus
	FetchRetryAttempt     int
	FetchCircuitOpenUntil *time.Time
	NextFetchAt           *time.Time
	LastFetchedAt         *time.Time
	LastFetchStartedAt    *time.Time
	FailureCount          int
	LastError             string

	// Conditional GET validators remembered from the last successful fetch
	ETag         string
	LastModified string

	// Rolling health
	HealthStatus      HealthStatus
	HealthWindow      []bool // oldest first
	HealthSuccessRate float64
	AutoPausedUntil   *time.Time

	// Scraping
	ScrapingEnabled   bool
	AutoScrape        bool
	ScrapeMaxInFlight int

	// Retention
	RetentionDays     int
	MaxItems          int
	RetentionStrategy RetentionStrategy
}

// CircuitOpen reports whether the fetch circuit is open at now.
func (s *Source) CircuitOpen(now time.Time) bool {
	return s.FetchCircuitOpenUntil != nil && s.FetchCircuitOpenUntil.After(now)
}

// AutoPaused reports whether the source is auto-paused and still cooling down at now.
func (s *Source) AutoPaused(now time.Time) bool {
	return s.HealthStatus == HealthStatusAutoPaused &&
		s.AutoPausedUntil != nil && s.AutoPausedUntil.After(now)
}

// ScrapesAutomatically reports whether new items should be queued for scraping.
func (s *Source) ScrapesAutomatically() bool {
	return s.ScrapingEnabled && s.AutoScrape
}

// Interval returns the fetch interval, falling back to DefaultFetchInterval.
func (s *Source) Interval() time.Duration {
	if s.FetchInterval <= 0 {
		return DefaultFetchInterval
	}
	return s.FetchInterval
}

// Validate validates the Source entity fields.
func (s *Source) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if err := ValidateURL(s.FeedURL); err != nil {
		return err
	}
	if s.FetchInterval < 0 {
		return &ValidationError{Field: "fetch_interval", Message: "fetch interval must not be negative"}
	}
	if s.ScrapeMaxInFlight < 0 {
		return &ValidationError{Field: "scrape_max_in_flight", Message: "must not be negative"}
	}
	switch s.RetentionStrategy {
	case "", RetentionDestroy, RetentionSoftDelete:
	default:
		return &ValidationError{Field: "retention_strategy", Message: "must be destroy or soft_delete"}
	}
	return nil
}
