// Package fetch implements the fetch/retry scheduling subsystem: the retry
// policy, the per-source fetch runner, the due-source scheduler and the
// stalled fetch reconciler.
package fetch

import (
	"errors"
	"fmt"
)

// ErrSourceNotFound is returned when a job references a source that no longer exists.
var ErrSourceNotFound = errors.New("source not found")

// ConcurrencyError means a fetch for the source is already running elsewhere.
// It is expected under concurrent scheduling and never changes source state.
type ConcurrencyError struct {
	SourceID int64
	Err      error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("fetch already running for source %d", e.SourceID)
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// TimeoutError is returned by fetchers when the request timed out.
type TimeoutError struct{ Err error }

func (e *TimeoutError) Error() string { return "fetch timed out: " + errString(e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectionError is returned by fetchers when no response could be obtained.
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return "connection failed: " + errString(e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// HTTPError carries a non-success HTTP status.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// ParsingError is returned when the response body is not a readable feed.
type ParsingError struct{ Err error }

func (e *ParsingError) Error() string { return "feed parsing failed: " + errString(e.Err) }
func (e *ParsingError) Unwrap() error { return e.Err }

// UnexpectedError wraps failures the fetcher recognised but could not classify further.
type UnexpectedError struct{ Err error }

func (e *UnexpectedError) Error() string { return "unexpected fetch error: " + errString(e.Err) }
func (e *UnexpectedError) Unwrap() error { return e.Err }

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
