package admin

import (
	"time"

	"feed-monitor/internal/domain/entity"
)

// SourceDTO is the operator view of a source's fetch and health state.
type SourceDTO struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	FeedURL               string     `json:"feed_url"`
	Active                bool       `json:"active"`
	FetchIntervalSeconds  int64      `json:"fetch_interval_seconds"`
	FetchStatus           string     `json:"fetch_status"`
	FetchRetryAttempt     int        `json:"fetch_retry_attempt"`
	FetchCircuitOpenUntil *time.Time `json:"fetch_circuit_open_until,omitempty"`
	NextFetchAt           *time.Time `json:"next_fetch_at,omitempty"`
	LastFetchedAt         *time.Time `json:"last_fetched_at,omitempty"`
	FailureCount          int        `json:"failure_count"`
	LastError             string     `json:"last_error,omitempty"`
	HealthStatus          string     `json:"health_status"`
	HealthSuccessRate     float64    `json:"health_success_rate"`
	HealthSamples         int        `json:"health_samples"`
	AutoPausedUntil       *time.Time `json:"auto_paused_until,omitempty"`
	ScrapingEnabled       bool       `json:"scraping_enabled"`
	AutoScrape            bool       `json:"auto_scrape"`
}

func toSourceDTO(s *entity.Source) SourceDTO {
	return SourceDTO{
		ID:                    s.ID,
		Name:                  s.Name,
		FeedURL:               s.FeedURL,
		Active:                s.Active,
		FetchIntervalSeconds:  int64(s.Interval() / time.Second),
		FetchStatus:           string(s.FetchStatus),
		FetchRetryAttempt:     s.FetchRetryAttempt,
		FetchCircuitOpenUntil: s.FetchCircuitOpenUntil,
		NextFetchAt:           s.NextFetchAt,
		LastFetchedAt:         s.LastFetchedAt,
		FailureCount:          s.FailureCount,
		LastError:             s.LastError,
		HealthStatus:          string(s.HealthStatus),
		HealthSuccessRate:     s.HealthSuccessRate,
		HealthSamples:         len(s.HealthWindow),
		AutoPausedUntil:       s.AutoPausedUntil,
		ScrapingEnabled:       s.ScrapingEnabled,
		AutoScrape:            s.AutoScrape,
	}
}

// FetchQueuedResponse acknowledges a manual fetch.
type FetchQueuedResponse struct {
	SourceID int64 `json:"source_id"`
	Force    bool  `json:"force"`
	Queued   bool  `json:"queued"`
}

// RunResponse reports a manual scheduler run.
type RunResponse struct {
	Runner string `json:"runner"`
	Count  int    `json:"count"`
}
