// Package auth enforces the gateway's bearer-key check. There is a
// single static shared secret; no token expiry, rotation, or multi-key
// support.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type Middleware struct {
	apiKey string
}

func NewMiddleware(apiKey string) *Middleware {
	return &Middleware{apiKey: apiKey}
}

// Bypass reports whether path is served without credentials: the health
// and metrics surfaces plus everything under /public/.
func Bypass(path string) bool {
	if path == "/" || path == "/health" || path == "/metrics" {
		return true
	}
	return strings.HasPrefix(path, "/public/") || path == "/public"
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Bypass(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(m.apiKey)) != 1 {
			unauthorized(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
