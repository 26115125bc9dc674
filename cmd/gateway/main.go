package main

import (
	"log"
	"net/http"

	"github.com/blackroad/edge-gateway/internal/accesslog"
	"github.com/blackroad/edge-gateway/internal/config"
	"github.com/blackroad/edge-gateway/internal/gateway"
	"github.com/blackroad/edge-gateway/internal/metrics"
	"github.com/blackroad/edge-gateway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.APIKey == "" {
		log.Fatal("API_KEY must be set")
	}

	m := metrics.New()

	// Shared counter/cache state: redis when configured, otherwise a
	// process-local store (fine for a single instance, counters are not
	// shared across replicas).
	var kv store.Store
	if cfg.RedisURL != "" {
		kv, err = store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to redis:", err)
		}
	} else {
		log.Println("REDIS_URL not set, using in-process store")
		kv = store.NewMemoryStore()
	}
	defer kv.Close()

	// Access logging is optional; without a database the gateway still
	// serves traffic and only analytics are unavailable.
	var logs *accesslog.Logger
	if cfg.DatabaseURL != "" {
		logs, err = accesslog.New(cfg.DatabaseURL, m)
		if err != nil {
			log.Fatal("Failed to connect to access log store:", err)
		}
		defer logs.Close()
	} else {
		log.Println("DATABASE_URL not set, access logging disabled")
	}

	gw, err := gateway.New(cfg, kv, logs, m)
	if err != nil {
		log.Fatal("Failed to initialize gateway:", err)
	}

	log.Printf("Gateway %s starting on port %s (%s)", cfg.GatewayName, cfg.ServerPort, cfg.Environment)
	log.Printf("Routes: /agents -> %s, /memory -> %s, /api -> %s", orUnset(cfg.AgentsURL), orUnset(cfg.MemoryURL), orUnset(cfg.APIURL))
	if err := http.ListenAndServe(":"+cfg.ServerPort, gw.Handler()); err != nil {
		log.Fatal("Server failed:", err)
	}
}

func orUnset(url string) string {
	if url == "" {
		return "(not configured)"
	}
	return url
}
