package proxy

import (
	"bytes"
	"net/http"
)

// Recorder passes writes through to the underlying ResponseWriter while
// keeping the status code and a copy of the body, so the caller can
// populate the cache or feed the circuit breaker after the fact.
type Recorder struct {
	http.ResponseWriter
	statusCode    int
	size          int
	body          bytes.Buffer
	headerWritten bool
}

func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (r *Recorder) WriteHeader(statusCode int) {
	if !r.headerWritten {
		r.statusCode = statusCode
		r.ResponseWriter.WriteHeader(statusCode)
		r.headerWritten = true
	}
}

func (r *Recorder) Write(b []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	r.body.Write(b[:n])
	return n, err
}

func (r *Recorder) StatusCode() int { return r.statusCode }

func (r *Recorder) Size() int { return r.size }

func (r *Recorder) Body() []byte { return r.body.Bytes() }
