// Package lock provides non-blocking, non-reentrant advisory locks keyed by
// (namespace, key). Backends differ in visibility: the in-memory table only
// excludes callers inside one process, the Postgres and NATS backends exclude
// callers across processes.
package lock

import (
	"context"
	"fmt"
)

// FetchNamespace is the advisory lock namespace for per-source fetch execution.
const FetchNamespace int32 = 7_317_001

// Locker runs fn while holding the lock for (namespace, key).
//
// WithLock never waits: if another holder owns the lock it returns a
// *NotAcquiredError without calling fn. The lock is released when fn returns
// or panics.
type Locker interface {
	WithLock(ctx context.Context, namespace int32, key int64, fn func(ctx context.Context) error) error
}

// NotAcquiredError reports lock contention.
type NotAcquiredError struct {
	Namespace int32
	Key       int64
}

func (e *NotAcquiredError) Error() string {
	return fmt.Sprintf("advisory lock %d:%d not acquired", e.Namespace, e.Key)
}
