// Package circuitbreaker guards outbound calls to endpoints that may be down.
//
// Each breaker tracks consecutive failures for one endpoint. Once the
// failure streak reaches the threshold the breaker opens and callers are
// told to back off. After a cooldown a single probe request is let through;
// its outcome decides whether the breaker closes again or stays open.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the current mode of a breaker.
type State int

const (
	Closed   State = iota // requests flow normally
	Open                  // endpoint considered down, requests rejected
	HalfOpen              // cooldown elapsed, one probe in flight
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a breaker.
type Config struct {
	Threshold int           // consecutive failures before opening
	Cooldown  time.Duration // how long to reject before probing
}

// DefaultConfig returns the defaults used when a Config field is unset.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

// Breaker tracks the health of a single endpoint.
type Breaker struct {
	mu       sync.Mutex
	state    State
	streak   int       // consecutive failures
	openedAt time.Time // when the breaker last tripped
	probing  bool      // a half-open probe is in flight

	threshold int
	cooldown  time.Duration
}

// New creates a breaker. Zero or negative config fields fall back to
// DefaultConfig values.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{
		state:     Closed,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Allow reports whether a request should be attempted now. When the
// cooldown has elapsed on an open breaker, the first Allow call claims
// the half-open probe slot; further calls are rejected until the probe
// outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true

	case Open:
		if time.Since(b.openedAt) > b.cooldown {
			b.state = HalfOpen
			b.probing = true
			return true
		}
		return false

	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true

	default:
		return true
	}
}

// RecordSuccess clears the failure streak and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streak = 0
	b.state = Closed
	b.probing = false
}

// RecordFailure notes a failed request, opening the breaker when the
// streak reaches the threshold. A failed half-open probe reopens it
// immediately and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streak++

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		b.probing = false
		return
	}

	if b.streak >= b.threshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streak
}

// Reset forces the breaker back to closed with a clean streak.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.streak = 0
	b.probing = false
}
