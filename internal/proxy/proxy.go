// Package proxy forwards requests to a single upstream service. Each
// upstream gets its own Forwarder with its own transport, deadline and
// circuit breaker. Calls are single-attempt: a timeout surfaces as 504
// and any other transport failure as 502, never as a retry.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/blackroad/edge-gateway/internal/breaker"
)

type Options struct {
	// StripPrefix is removed from the request path exactly once before
	// forwarding. Empty means forward the path verbatim.
	StripPrefix string

	// ClientIPHeader is the trusted inbound header carrying the
	// originating client IP, propagated downstream.
	ClientIPHeader string

	Environment string
	Timeout     time.Duration
}

type Forwarder struct {
	name    string
	target  *url.URL
	opts    Options
	breaker *breaker.Breaker
	proxy   *httputil.ReverseProxy
}

func NewForwarder(name, baseURL string, opts Options, cb *breaker.Breaker) (*Forwarder, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s upstream URL: %w", name, err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	f := &Forwarder{
		name:    name,
		target:  target,
		opts:    opts,
		breaker: cb,
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.Transport = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	director := rp.Director
	rp.Director = func(r *http.Request) {
		// Strip before the default director joins the target base path,
		// so a base URL with its own path segment still rewrites cleanly.
		f.stripPath(r)
		director(r)
		f.rewriteHeaders(r)
	}

	rp.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Set("X-Content-Type-Options", "nosniff")
		resp.Header.Set("X-Frame-Options", "DENY")
		resp.Header.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		return nil
	}

	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("upstream %s error: %v", name, err)

		status := http.StatusBadGateway
		msg := fmt.Sprintf("%s service unreachable", name)
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			msg = fmt.Sprintf("%s service timed out", name)
		}
		writeJSONError(w, status, msg)
	}

	f.proxy = rp
	return f, nil
}

func (f *Forwarder) Name() string { return f.name }

// stripPath removes the configured prefix from the request path exactly
// once.
func (f *Forwarder) stripPath(r *http.Request) {
	if f.opts.StripPrefix == "" {
		return
	}
	r.URL.Path = strings.TrimPrefix(r.URL.Path, f.opts.StripPrefix)
	if !strings.HasPrefix(r.URL.Path, "/") {
		r.URL.Path = "/" + r.URL.Path
	}
}

// rewriteHeaders adjusts the outbound request: provenance headers, a
// default content type, and no body on GET/HEAD.
func (f *Forwarder) rewriteHeaders(r *http.Request) {
	r.Host = f.target.Host

	r.Header.Set("X-Forwarded-By", "blackroad-edge-gateway")
	r.Header.Set("X-Environment", f.opts.Environment)
	r.Header.Set("X-BlackRoad-Edge", "1")
	if ip := r.Header.Get(f.opts.ClientIPHeader); ip != "" {
		r.Header.Set("X-Forwarded-For", ip)
	}

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		r.Body = nil
		r.ContentLength = 0
		r.Header.Del("Content-Type")
		return
	}

	if r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
}

// ServeHTTP forwards one request. An open circuit rejects immediately
// with 503; outcomes feed back into the breaker so a failing upstream
// stops being dialed.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.breaker.Allow() {
		writeJSONError(w, http.StatusServiceUnavailable, fmt.Sprintf("%s service unavailable", f.name))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), f.opts.Timeout)
	defer cancel()

	rec := NewRecorder(w)
	f.proxy.ServeHTTP(rec, r.WithContext(ctx))

	if rec.StatusCode() >= http.StatusInternalServerError {
		f.breaker.RecordFailure()
	} else {
		f.breaker.RecordSuccess()
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
