package gateway

import (
	"context"
	"net/http"

	"github.com/blackroad/edge-gateway/internal/models"
	"github.com/blackroad/edge-gateway/internal/proxy"
)

// handleMemory is the cache-through path. Only GETs are cacheable; a
// hit answers from the store without touching the upstream, a miss
// forwards and populates the cache from the recorded response.
func (g *Gateway) handleMemory(w http.ResponseWriter, r *http.Request) {
	if g.memory == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "Memory service not configured",
		})
		return
	}

	if r.Method != http.MethodGet {
		g.metrics.CacheEvent("bypass")
		g.memory.ServeHTTP(w, r)
		return
	}

	path, query := r.URL.Path, r.URL.RawQuery

	if entry, ok := g.cache.Lookup(r.Context(), path, query); ok {
		if entry.ContentType != "" {
			w.Header().Set("Content-Type", entry.ContentType)
		}
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(entry.StatusCode)
		w.Write(entry.Body)
		return
	}

	rec := proxy.NewRecorder(w)
	g.memory.ServeHTTP(rec, r)

	if rec.StatusCode() >= 200 && rec.StatusCode() < 300 {
		entry := &models.CacheEntry{
			StatusCode:  rec.StatusCode(),
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.Body(),
		}
		// The response is already on the wire; populate in the
		// background so a slow store never holds the client.
		go g.cache.Put(context.Background(), path, query, entry)
	}
}
