// Package ratelimit counts requests per client in fixed time windows
// over the shared store.
//
// Fixed-window counting admits up to 2x the limit across a window
// boundary (a burst at the end of one window followed by a burst at the
// start of the next). That is an accepted trade-off for a single INCR
// per request instead of a sliding log.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/blackroad/edge-gateway/internal/metrics"
	"github.com/blackroad/edge-gateway/internal/store"
)

type RateLimiter struct {
	store    store.Store
	max      int
	window   time.Duration
	ipHeader string
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRateLimiter(s store.Store, max int, window time.Duration, ipHeader string, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		store:    s,
		max:      max,
		window:   window,
		ipHeader: ipHeader,
		metrics:  m,
		now:      time.Now,
	}
}

// Allow decides whether the client may proceed and returns the remaining
// quota in the current window. A store failure allows the request: a
// counter outage must degrade to unlimited, not to total denial.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string) (allowed bool, remaining int) {
	windowIndex := rl.now().Unix() / int64(rl.window/time.Second)
	key := fmt.Sprintf("ratelimit:%s:%d", clientID, windowIndex)

	// TTL of 2x the window so boundary windows always self-expire.
	count, err := rl.store.Incr(ctx, key, 2*rl.window)
	if err != nil {
		log.Printf("rate limit store error, failing open: %v", err)
		rl.metrics.RateLimitEvent("error")
		return true, rl.max
	}

	if count > int64(rl.max) {
		rl.metrics.RateLimitEvent("limited")
		return false, 0
	}

	rl.metrics.RateLimitEvent("allowed")
	return true, rl.max - int(count)
}

// ClientID extracts the client identity from the trusted forwarded-IP
// header. Requests without it share the "unknown" bucket.
func (rl *RateLimiter) ClientID(r *http.Request) string {
	if ip := r.Header.Get(rl.ipHeader); ip != "" {
		return ip
	}
	return "unknown"
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining := rl.Allow(r.Context(), rl.ClientID(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window/time.Second)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "Rate limit exceeded"})
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}
