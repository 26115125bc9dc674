package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/blackroad/edge-gateway/internal/models"
	"github.com/blackroad/edge-gateway/internal/requestctx"
)

// statusWriter captures the status code without buffering the body.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// observe records metrics and the access log entry once the response is
// finalized. Logging is best-effort and never blocks the response.
func (g *Gateway) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		rc, ok := requestctx.From(r.Context())
		if !ok {
			return
		}
		elapsed := time.Since(rc.StartTime)

		g.metrics.ObserveRequest(routeLabel(r.URL.Path), r.Method, sw.status, elapsed)

		g.logs.Record(&models.LogEntry{
			RequestID:  rc.RequestID,
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: sw.status,
			DurationMs: int(elapsed.Milliseconds()),
			ClientIP:   r.Header.Get(g.cfg.ClientIPHeader),
			AgentID:    rc.AgentID,
			SessionID:  rc.SessionID,
			Timestamp:  rc.StartTime,
		})
	})
}

func routeLabel(path string) string {
	switch {
	case path == "/" || path == "/health":
		return "health"
	case path == "/metrics":
		return "metrics"
	case strings.HasPrefix(path, "/admin"):
		return "admin"
	case strings.HasPrefix(path, "/agents"):
		return "agents"
	case strings.HasPrefix(path, "/memory"):
		return "memory"
	case strings.HasPrefix(path, "/api"):
		return "api"
	case strings.HasPrefix(path, "/public"):
		return "public"
	default:
		return "unmatched"
	}
}
