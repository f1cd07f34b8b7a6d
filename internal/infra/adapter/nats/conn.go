// Package nats holds the NATS-backed adapters: a JetStream KV advisory lock
// for multi-process deployments without Postgres advisory locks, and a
// broadcaster that republishes bus events on NATS subjects.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// LockBucket is the KV bucket holding advisory lock keys.
const LockBucket = "feed_monitor_locks"

// Connect dials NATS with unlimited reconnects and opens a JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("feed-monitor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	return nc, js, nil
}

// OpenLockBucket creates or updates the lock bucket. ttl bounds how long a
// key left behind by a crashed holder survives.
func OpenLockBucket(ctx context.Context, js jetstream.JetStream, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      LockBucket,
		Description: "feed-monitor advisory locks",
		Storage:     jetstream.FileStorage,
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("creating KV bucket %s: %w", LockBucket, err)
	}
	return kv, nil
}
