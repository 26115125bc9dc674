// Package cache implements the cache-through layer for idempotent
// memory-service reads. Entries are keyed by the verbatim path and
// query string and expire after a fixed TTL; there is no explicit
// invalidation path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/blackroad/edge-gateway/internal/metrics"
	"github.com/blackroad/edge-gateway/internal/models"
	"github.com/blackroad/edge-gateway/internal/store"
)

type ResponseCache struct {
	store   store.Store
	ttl     time.Duration
	metrics *metrics.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func New(s store.Store, ttl time.Duration, m *metrics.Metrics) *ResponseCache {
	return &ResponseCache{store: s, ttl: ttl, metrics: m}
}

// Key is the verbatim, case-sensitive cache key for a request.
func Key(path, rawQuery string) string {
	if rawQuery == "" {
		return "cache:" + path
	}
	return "cache:" + path + "?" + rawQuery
}

// Lookup returns the cached entry for the request, if any. Store errors
// degrade to a miss.
func (c *ResponseCache) Lookup(ctx context.Context, path, rawQuery string) (*models.CacheEntry, bool) {
	raw, err := c.store.Get(ctx, Key(path, rawQuery))
	if errors.Is(err, store.ErrNotFound) {
		c.misses.Add(1)
		c.metrics.CacheEvent("miss")
		return nil, false
	}
	if err != nil {
		log.Printf("cache lookup failed, treating as miss: %v", err)
		c.metrics.CacheEvent("error")
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Printf("cache entry corrupt, treating as miss: %v", err)
		c.metrics.CacheEvent("error")
		return nil, false
	}

	c.hits.Add(1)
	c.metrics.CacheEvent("hit")
	return &entry, true
}

// Put stores a successful upstream response under the request's key.
// Failures are logged and swallowed; caching is best-effort.
func (c *ResponseCache) Put(ctx context.Context, path, rawQuery string, entry *models.CacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, Key(path, rawQuery), raw, c.ttl); err != nil {
		log.Printf("cache store failed: %v", err)
		c.metrics.CacheEvent("error")
	}
}

func (c *ResponseCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
