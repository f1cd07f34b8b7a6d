package entity

import "time"

// FetchOutcome is the status of one fetch attempt.
type FetchOutcome string

const (
	FetchOutcomeFetched     FetchOutcome = "fetched"
	FetchOutcomeNotModified FetchOutcome = "not_modified"
	FetchOutcomeFailed      FetchOutcome = "failed"
)

// ItemProcessing counts what a fetch did with the entries of the feed.
type ItemProcessing struct {
	Created      int
	Updated      int
	Failed       int
	CreatedItems []*Item
}

// RetryDecision is the retry policy's verdict on a failed fetch attempt.
// It is never persisted; its effects are written onto the Source.
type RetryDecision struct {
	Class        string
	Retry        bool
	Wait         time.Duration
	NextAttempt  int
	OpenCircuit  bool
	CircuitUntil *time.Time
}

// FetchResult summarizes one fetch attempt.
type FetchResult struct {
	Outcome FetchOutcome
	Items   ItemProcessing
	Retry   *RetryDecision
	Err     error

	// Validators returned by the server, stored for the next conditional GET.
	ETag         string
	LastModified string
}

// Succeeded reports whether the attempt reached the feed, modified or not.
func (r *FetchResult) Succeeded() bool {
	return r != nil && r.Outcome != FetchOutcomeFailed && r.Err == nil
}
