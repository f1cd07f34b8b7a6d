// Package resilience groups the fault tolerance helpers of the worker:
//
//   - circuitbreaker: in-process breakers, one per scraped host
//   - retry: short exponential backoff for database bookkeeping and page downloads
//   - lock: the advisory lock contract that serializes fetches of one source
//
// Durable retry and circuit state for feed fetches is not kept here; it is
// stored on the source and driven by the fetch use case.
package resilience
