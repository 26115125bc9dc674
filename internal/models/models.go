package models

import "time"

// LogEntry is one completed request, persisted to the access_logs table.
type LogEntry struct {
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	DurationMs int       `json:"duration_ms"`
	ClientIP   string    `json:"client_ip"`
	AgentID    string    `json:"agent_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CacheEntry is the serialized form stored for cacheable responses.
type CacheEntry struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// RouteStats is one row of the admin analytics aggregation.
type RouteStats struct {
	Path        string  `json:"path"`
	Requests    int64   `json:"requests"`
	Errors      int64   `json:"errors"`
	AvgDuration float64 `json:"avg_duration_ms"`
	LastSeen    string  `json:"last_seen"`
}
