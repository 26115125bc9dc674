// Package store abstracts the shared key-value state behind the rate
// limiter and the response cache. The gateway never talks to redis
// directly; components receive a Store so tests can substitute the
// in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key with the given TTL. A zero TTL means
	// no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr atomically increments the counter at key and returns the new
	// count. The TTL is applied when the increment creates the key, so
	// counters expire relative to their first hit.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Close() error
}
