package entity

import (
	"encoding/json"
	"time"
)

// JobKind names the handler a queued job is dispatched to.
type JobKind string

const (
	JobKindFetchSource JobKind = "fetch_source"
	JobKindScrapeItem  JobKind = "scrape_item"
)

// Job is a unit of asynchronous work persisted in the job queue.
// RunAt in the future delays execution; that is how retries are scheduled.
type Job struct {
	ID        string
	Kind      JobKind
	Payload   json.RawMessage
	RunAt     time.Time
	Attempts  int
	LockedAt  *time.Time
	LockedBy  string
	LastError string
	CreatedAt time.Time
}

// FetchSourcePayload is the payload of a JobKindFetchSource job.
type FetchSourcePayload struct {
	SourceID int64 `json:"source_id"`
	Force    bool  `json:"force,omitempty"`
	Attempt  int   `json:"attempt,omitempty"`
}

// ScrapeItemPayload is the payload of a JobKindScrapeItem job.
type ScrapeItemPayload struct {
	ItemID   int64  `json:"item_id"`
	SourceID int64  `json:"source_id"`
	Reason   string `json:"reason,omitempty"`
}
