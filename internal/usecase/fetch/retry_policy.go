package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"feed-monitor/internal/domain/entity"
)

// ErrorClass is the retry classification of a failed fetch.
type ErrorClass string

const (
	ClassTimeout    ErrorClass = "timeout"
	ClassConnection ErrorClass = "connection"
	ClassHTTP429    ErrorClass = "http_429"
	ClassHTTP5xx    ErrorClass = "http_5xx"
	ClassHTTP4xx    ErrorClass = "http_4xx"
	ClassParsing    ErrorClass = "parsing"
	ClassUnexpected ErrorClass = "unexpected"
	ClassFallback   ErrorClass = "fallback"
)

// AllClasses lists every classification in table order.
var AllClasses = []ErrorClass{
	ClassTimeout, ClassConnection, ClassHTTP429, ClassHTTP5xx,
	ClassHTTP4xx, ClassParsing, ClassUnexpected, ClassFallback,
}

// RetryRule is one row of the retry table.
type RetryRule struct {
	MaxAttempts int
	Wait        time.Duration
	CircuitWait time.Duration
}

// RetryTable maps each classification to its rule.
type RetryTable map[ErrorClass]RetryRule

// DefaultRetryTable returns the built-in retry table.
func DefaultRetryTable() RetryTable {
	return RetryTable{
		ClassTimeout:    {MaxAttempts: 2, Wait: 2 * time.Minute, CircuitWait: time.Hour},
		ClassConnection: {MaxAttempts: 3, Wait: 5 * time.Minute, CircuitWait: time.Hour},
		ClassHTTP429:    {MaxAttempts: 2, Wait: 15 * time.Minute, CircuitWait: 90 * time.Minute},
		ClassHTTP5xx:    {MaxAttempts: 2, Wait: 10 * time.Minute, CircuitWait: 90 * time.Minute},
		ClassHTTP4xx:    {MaxAttempts: 1, Wait: 45 * time.Minute, CircuitWait: 2 * time.Hour},
		ClassParsing:    {MaxAttempts: 1, Wait: 30 * time.Minute, CircuitWait: 2 * time.Hour},
		ClassUnexpected: {MaxAttempts: 1, Wait: 30 * time.Minute, CircuitWait: 2 * time.Hour},
		ClassFallback:   {MaxAttempts: 1, Wait: 30 * time.Minute, CircuitWait: 2 * time.Hour},
	}
}

// Decision is the outcome of applying the retry policy to one failed attempt.
type Decision = entity.RetryDecision

// Policy maps a failed fetch to a retry or circuit-open decision.
// It is immutable after construction and safe for concurrent use.
type Policy struct {
	table RetryTable
}

// NewPolicy creates a policy from table. A nil table means DefaultRetryTable.
// Classes missing from table use the fallback row; a table without a
// fallback row gets the default one.
func NewPolicy(table RetryTable) *Policy {
	defaults := DefaultRetryTable()
	if table == nil {
		table = defaults
	}
	copied := make(RetryTable, len(defaults))
	for class, rule := range table {
		copied[class] = rule
	}
	if _, ok := copied[ClassFallback]; !ok {
		copied[ClassFallback] = defaults[ClassFallback]
	}
	return &Policy{table: copied}
}

// Rule returns the rule applied to class.
func (p *Policy) Rule(class ErrorClass) RetryRule {
	if rule, ok := p.table[class]; ok {
		return rule
	}
	return p.table[ClassFallback]
}

// Decide computes the decision for src failing with err at now.
// The only state consulted is src.FetchRetryAttempt.
func (p *Policy) Decide(src *entity.Source, err error, now time.Time) Decision {
	class := Classify(err)
	rule := p.Rule(class)
	next := src.FetchRetryAttempt + 1

	if next <= rule.MaxAttempts {
		return Decision{
			Class:       string(class),
			Retry:       true,
			Wait:        rule.Wait,
			NextAttempt: next,
		}
	}

	until := now.Add(rule.CircuitWait)
	return Decision{
		Class:        string(class),
		Retry:        false,
		Wait:         rule.CircuitWait,
		NextAttempt:  0,
		OpenCircuit:  true,
		CircuitUntil: &until,
	}
}

// Classify maps err onto a retry classification.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassFallback
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch code := httpErr.StatusCode; {
		case code == http.StatusTooManyRequests:
			return ClassHTTP429
		case code >= 500:
			return ClassHTTP5xx
		case code >= 400:
			return ClassHTTP4xx
		default:
			return ClassFallback
		}
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var parseErr *ParsingError
	if errors.As(err, &parseErr) {
		return ClassParsing
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return ClassConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return ClassConnection
	}

	var unexpectedErr *UnexpectedError
	if errors.As(err, &unexpectedErr) {
		return ClassUnexpected
	}

	return ClassFallback
}
