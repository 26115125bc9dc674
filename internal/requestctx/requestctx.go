// Package requestctx builds the per-request context carried through the
// pipeline: a collision-resistant request ID, the start timestamp, and
// the optional agent/session correlation IDs clients send.
package requestctx

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestContextKey contextKey = "request_context"

type RequestContext struct {
	RequestID string
	StartTime time.Time
	AgentID   string
	SessionID string
}

// New derives a RequestContext from the inbound request.
func New(r *http.Request) *RequestContext {
	return &RequestContext{
		RequestID: uuid.NewString(),
		StartTime: time.Now(),
		AgentID:   r.Header.Get("X-Agent-ID"),
		SessionID: r.Header.Get("X-Session-ID"),
	}
}

func With(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

func From(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(*RequestContext)
	return rc, ok
}

// Middleware attaches a fresh RequestContext to every request and echoes
// the request ID back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := New(r)
		w.Header().Set("X-Request-ID", rc.RequestID)
		next.ServeHTTP(w, r.WithContext(With(r.Context(), rc)))
	})
}
