// Package cors computes the cross-origin headers attached to every
// gateway response and short-circuits preflight requests.
package cors

import "net/http"

const (
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders = "Authorization, Content-Type, X-Agent-ID, X-Session-ID, X-Request-ID"
	maxAge       = "86400"
)

type Policy struct {
	allowed  map[string]bool
	wildcard bool
}

func NewPolicy(allowedOrigins []string) *Policy {
	p := &Policy{allowed: make(map[string]bool, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		if o == "*" {
			p.wildcard = true
			continue
		}
		p.allowed[o] = true
	}
	return p
}

// ComputeHeaders returns the CORS header set for a request from origin.
// Allow-Origin is present only when the origin is allowed; an origin
// outside the allow-list gets no grant at all rather than a fallback to
// some configured origin.
func (p *Policy) ComputeHeaders(origin string) map[string]string {
	headers := map[string]string{
		"Access-Control-Allow-Methods": allowMethods,
		"Access-Control-Allow-Headers": allowHeaders,
		"Access-Control-Max-Age":       maxAge,
	}

	if origin != "" && (p.wildcard || p.allowed[origin]) {
		headers["Access-Control-Allow-Origin"] = origin
	} else if p.wildcard {
		headers["Access-Control-Allow-Origin"] = "*"
	}

	return headers
}

// Middleware attaches the CORS header set to every response and answers
// OPTIONS preflights with an empty 204 before auth or rate limiting run.
func (p *Policy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range p.ComputeHeaders(r.Header.Get("Origin")) {
			w.Header().Set(k, v)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
