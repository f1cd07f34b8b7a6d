package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"feed-monitor/internal/resilience/lock"
)

// lockStore is the subset of jetstream.KeyValue the locker needs.
type lockStore interface {
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
}

type kvStore struct{ kv jetstream.KeyValue }

func (s kvStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.kv.Create(ctx, key, value)
}

func (s kvStore) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

// KVLocker implements lock.Locker on a JetStream KV bucket. Create fails with
// ErrKeyExists while another holder owns the key.
type KVLocker struct {
	store  lockStore
	owner  string
	logger *slog.Logger
}

func NewKVLocker(kv jetstream.KeyValue, logger *slog.Logger) *KVLocker {
	return newKVLocker(kvStore{kv: kv}, logger)
}

func newKVLocker(store lockStore, logger *slog.Logger) *KVLocker {
	if logger == nil {
		logger = slog.Default()
	}
	host, _ := os.Hostname()
	return &KVLocker{
		store:  store,
		owner:  fmt.Sprintf("%s/%d", host, os.Getpid()),
		logger: logger,
	}
}

func lockKeyName(namespace int32, key int64) string {
	return fmt.Sprintf("lock.%d.%d", namespace, key)
}

// WithLock implements lock.Locker.
func (l *KVLocker) WithLock(ctx context.Context, namespace int32, key int64, fn func(ctx context.Context) error) error {
	name := lockKeyName(namespace, key)
	if _, err := l.store.Create(ctx, name, []byte(l.owner)); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return &lock.NotAcquiredError{Namespace: namespace, Key: key}
		}
		return fmt.Errorf("WithLock: create %s: %w", name, err)
	}

	defer func() {
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.store.Delete(delCtx, name); err != nil {
			l.logger.Warn("failed to release KV lock",
				slog.String("key", name),
				slog.Any("error", err))
		}
	}()

	return fn(ctx)
}
