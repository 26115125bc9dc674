// Package admin exposes the authenticated analytics endpoints built on
// the retained access logs and the cache counters.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/blackroad/edge-gateway/internal/accesslog"
	"github.com/blackroad/edge-gateway/internal/cache"
)

type AdminHandler struct {
	logs  *accesslog.Logger
	cache *cache.ResponseCache
}

func NewAdminHandler(logs *accesslog.Logger, c *cache.ResponseCache) *AdminHandler {
	return &AdminHandler{logs: logs, cache: c}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/admin/cache/stats", h.GetCacheStats).Methods("GET")
}

// GetStats returns per-route request counts, error counts and average
// latency over the requested time range (default: the last 24h, which
// is the whole retention window).
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		http.Error(w, "Access log store not configured", http.StatusServiceUnavailable)
		return
	}

	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid 'from' timestamp", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "Invalid 'to' timestamp", http.StatusBadRequest)
			return
		}
		to = t
	}

	stats, err := h.logs.RouteStats(r.Context(), from, to)
	if err != nil {
		http.Error(w, "Failed to get route stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"from":   from,
		"to":     to,
		"routes": stats,
	})
}

func (h *AdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.cache.Stats())
}
