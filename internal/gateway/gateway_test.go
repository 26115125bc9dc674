package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackroad/edge-gateway/internal/config"
	"github.com/blackroad/edge-gateway/internal/metrics"
	"github.com/blackroad/edge-gateway/internal/store"
)

const testKey = "test-api-key"

func testConfig() *config.Config {
	return &config.Config{
		Environment:     "test",
		GatewayName:     "edge-test",
		AllowedOrigins:  []string{"*"},
		APIKey:          testKey,
		RateLimitMax:    1000,
		RateLimitWindow: time.Minute,
		ClientIPHeader:  "CF-Connecting-IP",
		CacheTTL:        time.Minute,
		UpstreamTimeout: 5 * time.Second,
	}
}

func newGateway(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	gw, err := New(cfg, store.NewMemoryStore(), nil, metrics.New())
	if err != nil {
		t.Fatal(err)
	}
	return gw.Handler()
}

func do(h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testKey}
}

func TestHealthIgnoresAuth(t *testing.T) {
	h := newGateway(t, testConfig())

	for _, path := range []string{"/", "/health"} {
		for _, hdrs := range []map[string]string{nil, {"Authorization": "Bearer wrong"}} {
			rec := do(h, http.MethodGet, path, hdrs)
			if rec.Code != http.StatusOK {
				t.Fatalf("GET %s status = %d, want 200", path, rec.Code)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("health body not JSON: %v", err)
			}
			if body["status"] != "ok" {
				t.Fatalf("status field = %v, want ok", body["status"])
			}
			if body["gateway"] != "edge-test" {
				t.Fatalf("gateway field = %v", body["gateway"])
			}
			if routes, ok := body["routes"].([]interface{}); !ok || len(routes) != 4 {
				t.Fatalf("routes = %v, want four prefixes", body["routes"])
			}
		}
	}
}

func TestMissingCredentialIs401(t *testing.T) {
	h := newGateway(t, testConfig())

	rec := do(h, http.MethodGet, "/api/widgets", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestInvalidCredentialIs403(t *testing.T) {
	h := newGateway(t, testConfig())

	rec := do(h, http.MethodGet, "/api/widgets", map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestUnmatchedPathIs404(t *testing.T) {
	h := newGateway(t, testConfig())

	rec := do(h, http.MethodGet, "/nonexistent", authed())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body struct {
		Error     string   `json:"error"`
		Path      string   `json:"path"`
		Available []string `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("404 body not JSON: %v", err)
	}
	if body.Error != "Not found" || body.Path != "/nonexistent" {
		t.Fatalf("body = %+v", body)
	}
	want := []string{"/agents", "/memory", "/api", "/public"}
	if len(body.Available) != len(want) {
		t.Fatalf("available = %v, want %v", body.Available, want)
	}
	for i, p := range want {
		if body.Available[i] != p {
			t.Fatalf("available = %v, want %v", body.Available, want)
		}
	}
}

func TestUnconfiguredUpstreamIs503(t *testing.T) {
	h := newGateway(t, testConfig()) // no upstream URLs set

	rec := do(h, http.MethodGet, "/agents/run", authed())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Agents service not configured" {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 1 // preflights must not spend quota

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()
	cfg.APIURL = upstream.URL

	h := newGateway(t, cfg)

	for i := 0; i < 3; i++ {
		rec := do(h, http.MethodOptions, "/api/widgets", map[string]string{"Origin": "https://a.example"})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("preflight status = %d, want 204", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("preflight body = %q, want empty", rec.Body.String())
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "https://a.example" {
			t.Fatal("missing Allow-Origin on preflight")
		}
		if rec.Header().Get("Access-Control-Max-Age") != "86400" {
			t.Fatal("missing Max-Age on preflight")
		}
	}

	// The single unit of quota is still available.
	rec := do(h, http.MethodGet, "/api/widgets", authed())
	if rec.Code != http.StatusOK {
		t.Fatalf("status after preflights = %d, want 200", rec.Code)
	}
}

func TestRateLimitWindow(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 3
	// A wide window keeps the test inside a single bucket.
	cfg.RateLimitWindow = time.Hour

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()
	cfg.APIURL = upstream.URL

	h := newGateway(t, cfg)
	hdrs := authed()
	hdrs["CF-Connecting-IP"] = "203.0.113.9"

	for i := 0; i < 3; i++ {
		rec := do(h, http.MethodGet, "/api/widgets", hdrs)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := do(h, http.MethodGet, "/api/widgets", hdrs)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3600" {
		t.Fatalf("Retry-After = %q, want the window in seconds", rec.Header().Get("Retry-After"))
	}

	// A different client is unaffected.
	other := authed()
	other["CF-Connecting-IP"] = "198.51.100.7"
	if rec := do(h, http.MethodGet, "/api/widgets", other); rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d, want 200", rec.Code)
	}
}

func TestAPIPrefixStripped(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.APIURL = upstream.URL
	h := newGateway(t, cfg)

	rec := do(h, http.MethodGet, "/api/widgets", authed())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotPath != "/widgets" {
		t.Fatalf("upstream path = %q, want /widgets", gotPath)
	}
}

func TestPublicForwardsVerbatimWithoutAuth(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.APIURL = upstream.URL
	h := newGateway(t, cfg)

	rec := do(h, http.MethodGet, "/public/docs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without credentials", rec.Code)
	}
	if gotPath != "/public/docs" {
		t.Fatalf("upstream path = %q, want /public/docs", gotPath)
	}
}

func TestMemoryCacheThrough(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"records":[1,2,3]}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.MemoryURL = upstream.URL
	h := newGateway(t, cfg)

	first := do(h, http.MethodGet, "/memory/x?y=1", authed())
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d", first.Code)
	}
	if first.Header().Get("X-Cache") == "HIT" {
		t.Fatal("first request cannot be a cache hit")
	}

	// Population is asynchronous; wait for the hit.
	var second *httptest.ResponseRecorder
	deadline := time.Now().Add(2 * time.Second)
	for {
		second = do(h, http.MethodGet, "/memory/x?y=1", authed())
		if second.Header().Get("X-Cache") == "HIT" || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if second.Header().Get("X-Cache") != "HIT" {
		t.Fatal("cache never served a hit")
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatalf("cached body differs: %q vs %q", first.Body.String(), second.Body.String())
	}

	// Once cached, the upstream is no longer consulted.
	before := hits.Load()
	third := do(h, http.MethodGet, "/memory/x?y=1", authed())
	if third.Header().Get("X-Cache") != "HIT" {
		t.Fatal("expected hit")
	}
	if hits.Load() != before {
		t.Fatal("cache hit still reached the upstream")
	}

	// A different query string is its own entry.
	miss := do(h, http.MethodGet, "/memory/x?y=2", authed())
	if miss.Header().Get("X-Cache") == "HIT" {
		t.Fatal("different query served from cache")
	}
}

func TestMemoryNonGETBypassesCache(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.MemoryURL = upstream.URL
	h := newGateway(t, cfg)

	for i := 0; i < 2; i++ {
		rec := do(h, http.MethodPost, "/memory/x", authed())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if rec.Header().Get("X-Cache") == "HIT" {
			t.Fatal("POST served from cache")
		}
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hits = %d, want 2", hits.Load())
	}
}

func TestResponseCarriesRequestID(t *testing.T) {
	h := newGateway(t, testConfig())

	a := do(h, http.MethodGet, "/health", nil)
	b := do(h, http.MethodGet, "/health", nil)

	if a.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
	if a.Header().Get("X-Request-ID") == b.Header().Get("X-Request-ID") {
		t.Fatal("request IDs repeat")
	}
}

func TestCORSHeadersOnErrorResponses(t *testing.T) {
	h := newGateway(t, testConfig())

	rec := do(h, http.MethodGet, "/api/widgets", map[string]string{"Origin": "https://a.example"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://a.example" {
		t.Fatal("401 response missing CORS grant")
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("401 response missing Allow-Methods")
	}
}

func TestSecurityHeadersOnProxiedResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.AgentsURL = upstream.URL
	h := newGateway(t, cfg)

	rec := do(h, http.MethodPost, "/agents/run", authed())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing X-Frame-Options")
	}
}
