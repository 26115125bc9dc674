// Package gateway assembles the request pipeline: request context, CORS,
// authentication, rate limiting, then prefix dispatch to the configured
// upstreams with cache-through on memory reads.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/blackroad/edge-gateway/internal/accesslog"
	"github.com/blackroad/edge-gateway/internal/admin"
	"github.com/blackroad/edge-gateway/internal/auth"
	"github.com/blackroad/edge-gateway/internal/breaker"
	"github.com/blackroad/edge-gateway/internal/cache"
	"github.com/blackroad/edge-gateway/internal/config"
	"github.com/blackroad/edge-gateway/internal/cors"
	"github.com/blackroad/edge-gateway/internal/metrics"
	"github.com/blackroad/edge-gateway/internal/proxy"
	"github.com/blackroad/edge-gateway/internal/ratelimit"
	"github.com/blackroad/edge-gateway/internal/requestctx"
	"github.com/blackroad/edge-gateway/internal/store"
)

// knownPrefixes is the advertised route table, in matching order.
var knownPrefixes = []string{"/agents", "/memory", "/api", "/public"}

type Gateway struct {
	cfg     *config.Config
	cors    *cors.Policy
	auth    *auth.Middleware
	limiter *ratelimit.RateLimiter
	cache   *cache.ResponseCache
	logs    *accesslog.Logger
	metrics *metrics.Metrics

	agents *proxy.Forwarder
	memory *proxy.Forwarder
	api    *proxy.Forwarder
	public *proxy.Forwarder

	handler http.Handler
}

func New(cfg *config.Config, kv store.Store, logs *accesslog.Logger, m *metrics.Metrics) (*Gateway, error) {
	g := &Gateway{
		cfg:     cfg,
		cors:    cors.NewPolicy(cfg.AllowedOrigins),
		auth:    auth.NewMiddleware(cfg.APIKey),
		limiter: ratelimit.NewRateLimiter(kv, cfg.RateLimitMax, cfg.RateLimitWindow, cfg.ClientIPHeader, m),
		cache:   cache.New(kv, cfg.CacheTTL, m),
		logs:    logs,
		metrics: m,
	}

	opts := proxy.Options{
		ClientIPHeader: cfg.ClientIPHeader,
		Environment:    cfg.Environment,
		Timeout:        cfg.UpstreamTimeout,
	}

	if cfg.AgentsURL != "" {
		fwd, err := proxy.NewForwarder("agents", cfg.AgentsURL, opts, g.newBreaker("agents"))
		if err != nil {
			return nil, err
		}
		g.agents = fwd
	}

	if cfg.MemoryURL != "" {
		fwd, err := proxy.NewForwarder("memory", cfg.MemoryURL, opts, g.newBreaker("memory"))
		if err != nil {
			return nil, err
		}
		g.memory = fwd
	}

	if cfg.APIURL != "" {
		cb := g.newBreaker("api")

		stripOpts := opts
		stripOpts.StripPrefix = "/api"
		fwd, err := proxy.NewForwarder("api", cfg.APIURL, stripOpts, cb)
		if err != nil {
			return nil, err
		}
		g.api = fwd

		// /public/* shares the API upstream (and its breaker) but keeps
		// the path verbatim.
		pub, err := proxy.NewForwarder("api", cfg.APIURL, opts, cb)
		if err != nil {
			return nil, err
		}
		g.public = pub
	}

	g.handler = g.buildPipeline()
	return g, nil
}

func (g *Gateway) newBreaker(upstream string) *breaker.Breaker {
	cb := breaker.New()
	cb.OnStateChange(func(s breaker.State) {
		g.metrics.SetBreakerState(upstream, float64(s))
	})
	return cb
}

// Handler is the fully assembled pipeline.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// buildPipeline wires the middleware chain around the router. Order
// matters: the request context exists for everything, CORS answers
// preflights before auth or rate limiting run and stamps every other
// response, observation wraps all non-preflight traffic, and auth runs
// before the limiter spends quota.
func (g *Gateway) buildPipeline() http.Handler {
	var h http.Handler = g.buildRouter()

	h = g.limiter.Middleware(h)
	h = g.auth.Authenticate(h)
	h = g.observe(h)
	h = g.cors.Middleware(h)
	h = requestctx.Middleware(h)

	return h
}

func (g *Gateway) buildRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", g.handleHealth).Methods("GET")
	router.HandleFunc("/health", g.handleHealth).Methods("GET")
	router.Handle("/metrics", g.metrics.Handler()).Methods("GET")

	adminHandler := admin.NewAdminHandler(g.logs, g.cache)
	adminHandler.RegisterRoutes(router)

	router.PathPrefix("/agents").Handler(g.upstreamHandler("Agents", g.agents))
	router.PathPrefix("/memory").Handler(http.HandlerFunc(g.handleMemory))
	router.PathPrefix("/api").Handler(g.upstreamHandler("API", g.api))
	router.PathPrefix("/public").Handler(g.upstreamHandler("API", g.public))

	router.NotFoundHandler = http.HandlerFunc(g.handleNotFound)

	return router
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"gateway":     g.cfg.GatewayName,
		"environment": g.cfg.Environment,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"routes":      knownPrefixes,
	})
}

func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":     "Not found",
		"path":      r.URL.Path,
		"available": knownPrefixes,
	})
}

// upstreamHandler forwards to fwd, or answers 503 when the upstream URL
// was never configured.
func (g *Gateway) upstreamHandler(displayName string, fwd *proxy.Forwarder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fwd == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": displayName + " service not configured",
			})
			return
		}
		fwd.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
