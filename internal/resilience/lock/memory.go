package lock

import (
	"context"
	"sync"
)

type lockKey struct {
	namespace int32
	key       int64
}

// MemoryLocker is an in-process lock table.
// Use it only when every worker shares one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[lockKey]struct{}
}

// NewMemoryLocker creates an empty lock table.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[lockKey]struct{})}
}

// WithLock implements Locker.
func (l *MemoryLocker) WithLock(ctx context.Context, namespace int32, key int64, fn func(ctx context.Context) error) error {
	k := lockKey{namespace: namespace, key: key}

	l.mu.Lock()
	if _, busy := l.held[k]; busy {
		l.mu.Unlock()
		return &NotAcquiredError{Namespace: namespace, Key: key}
	}
	l.held[k] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, k)
		l.mu.Unlock()
	}()

	return fn(ctx)
}

// Held reports whether (namespace, key) is currently locked.
func (l *MemoryLocker) Held(namespace int32, key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[lockKey{namespace: namespace, key: key}]
	return ok
}
