package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"feed-monitor/internal/resilience/lock"
)

// AdvisoryLocker implements lock.Locker with session-level Postgres advisory
// locks. Each WithLock pins one pool connection for the duration of fn,
// because the lock belongs to the session that took it.
type AdvisoryLocker struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAdvisoryLocker(db *sql.DB, logger *slog.Logger) *AdvisoryLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryLocker{db: db, logger: logger}
}

// WithLock implements lock.Locker.
func (l *AdvisoryLocker) WithLock(ctx context.Context, namespace int32, key int64, fn func(ctx context.Context) error) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("WithLock: acquire conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryKey(namespace, key)).Scan(&acquired); err != nil {
		return fmt.Errorf("WithLock: try lock: %w", err)
	}
	if !acquired {
		return &lock.NotAcquiredError{Namespace: namespace, Key: key}
	}

	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, advisoryKey(namespace, key)); err != nil {
			// closing the session releases the lock as well
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			l.logger.Warn("advisory unlock failed",
				slog.Int64("namespace", int64(namespace)),
				slog.Int64("key", key),
				slog.Any("error", err))
		}
	}()

	return fn(ctx)
}

// advisoryKey folds the namespace into the high 32 bits of the bigint lock key.
func advisoryKey(namespace int32, key int64) int64 {
	return int64(namespace)<<32 ^ key
}
