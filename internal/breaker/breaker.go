// Package breaker implements a per-upstream circuit breaker. When the
// failure ratio of recent calls crosses the threshold the breaker opens
// and the forwarder rejects without dialing; after the recovery timeout
// a single probe is let through (half-open), and its outcome decides
// whether the circuit closes again.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	// minSamples guards against opening on the first few failures.
	minSamples = 10

	defaultThreshold = 0.5
	defaultTimeout   = 60 * time.Second
)

type Breaker struct {
	mu sync.Mutex

	threshold float64
	timeout   time.Duration

	state       State
	failures    int
	successes   int
	lastFailure time.Time

	now func() time.Time

	// onStateChange, if set, is called with the new state while the
	// lock is held. Keep it cheap.
	onStateChange func(State)
}

func New() *Breaker {
	return &Breaker{
		threshold: defaultThreshold,
		timeout:   defaultTimeout,
		now:       time.Now,
	}
}

// OnStateChange registers a callback fired on every transition, used to
// keep the breaker-state gauge current.
func (b *Breaker) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may be attempted. An open breaker past
// its recovery timeout transitions to half-open and admits one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	default: // Open
		if b.now().Sub(b.lastFailure) > b.timeout {
			b.transition(HalfOpen)
			b.failures = 0
			b.successes = 0
			return true
		}
		return false
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	if b.state == HalfOpen {
		b.transition(Closed)
		b.failures = 0
		b.successes = 0
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == HalfOpen {
		b.transition(Open)
		return
	}

	total := b.failures + b.successes
	if total >= minSamples && float64(b.failures)/float64(total) > b.threshold {
		b.transition(Open)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	if b.onStateChange != nil {
		b.onStateChange(next)
	}
}
