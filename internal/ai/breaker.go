package ai

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of the completion circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests (fail fast)
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker implements the circuit breaker pattern for model calls: repeated
// transient failures open the circuit so a degraded API fails fast instead
// of stacking retry towers on every loop.
type Breaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	// notify observes state transitions. Called with the lock held, so it
	// must be quick and must not call back into the breaker.
	notify func(from, to CircuitState, failures int)
}

// NewBreaker creates a circuit breaker. failureThreshold consecutive
// transient failures open it; after openTimeout one probe is allowed, and
// successThreshold probe successes close it again.
func NewBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *Breaker {
	return &Breaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Notify registers the transition observer
func (b *Breaker) Notify(fn func(from, to CircuitState, failures int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notify = fn
}

// Allow checks whether a request may proceed. An open circuit past its
// timeout transitions to half-open and lets one probe through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(b.lastFailureTime) > b.openTimeout {
			b.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	case CircuitHalfOpen:
		return nil

	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		b.failureCount = 0

	case CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.failureCount = 0
			b.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request. Only transient failures should be
// recorded; an auth error says nothing about API health.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = time.Now()

	switch b.state {
	case CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.transition(CircuitOpen)
		}

	case CircuitHalfOpen:
		// Any failure during probing reopens immediately
		b.transition(CircuitOpen)
	}
}

// State returns the current state
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns the current state and counters for monitoring
func (b *Breaker) Metrics() (state CircuitState, failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failureCount, b.successCount
}

// transition moves to a new state (must be called with the lock held)
func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	b.successCount = 0
	if b.notify != nil {
		b.notify(from, to, b.failureCount)
	}
}
