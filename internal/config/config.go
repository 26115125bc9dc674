package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	ServerPort  string
	GatewayName string

	// Upstream base URLs. An empty value means the route is not configured
	// and the gateway answers 503 for it.
	APIURL    string
	AgentsURL string
	MemoryURL string

	// Origin allow-list. A single "*" entry allows any origin.
	AllowedOrigins []string

	// Single static bearer key shared with all clients.
	APIKey string

	RateLimitMax    int
	RateLimitWindow time.Duration

	// Trusted header carrying the originating client IP.
	ClientIPHeader string

	CacheTTL        time.Duration
	UpstreamTimeout time.Duration

	RedisURL    string
	DatabaseURL string
}

func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		GatewayName:     getEnv("GATEWAY_NAME", "blackroad-edge-gateway"),
		APIURL:          getEnv("API_URL", ""),
		AgentsURL:       getEnv("AGENTS_URL", ""),
		MemoryURL:       getEnv("MEMORY_URL", ""),
		AllowedOrigins:  splitOrigins(getEnv("ALLOWED_ORIGINS", "*")),
		APIKey:          getEnv("API_KEY", ""),
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		ClientIPHeader:  getEnv("CLIENT_IP_HEADER", "CF-Connecting-IP"),
		CacheTTL:        time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		UpstreamTimeout: time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 15)) * time.Second,
		RedisURL:        getEnv("REDIS_URL", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
