package proxy

import (
	"sync"
	"time"
)

// CBState represents the state of a circuit breaker.
type CBState int

const (
	// CBClosed means the backend is healthy; attempts flow through.
	CBClosed CBState = iota
	// CBOpen means the backend has tripped; attempts are rejected.
	CBOpen
	// CBHalfOpen means the backend is being probed; limited attempts are allowed.
	CBHalfOpen
)

// Default breaker parameters, used when the corresponding constructor
// argument is zero.
const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
	defaultHalfOpenMax      = 1
)

// CircuitBreaker tracks the health of a single backend URL with three states:
// Closed → Open (after failureThreshold consecutive failures)
// Open → HalfOpen (after resetTimeout elapses)
// HalfOpen → Closed (after halfOpenMax consecutive successes) or back to Open on failure.
//
// An open breaker makes the failover loop skip the URL without a network
// attempt, so a dead primary stops costing a dial timeout on every request.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CBState
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int

	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureTime     time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given parameters.
// Zero-value arguments fall back to the package defaults.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}
	if halfOpenMax <= 0 {
		halfOpenMax = defaultHalfOpenMax
	}
	return &CircuitBreaker{
		state:            CBClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
	}
}

// Allow reports whether an attempt should be permitted through the circuit.
// In the Open state, it transitions to HalfOpen once the reset timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBClosed:
		return true
	case CBOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = CBHalfOpen
			cb.halfOpenSuccesses = 0
			return true
		}
		return false
	case CBHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess records a usable response from the backend. In HalfOpen
// state, after enough successes the circuit transitions back to Closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0

	if cb.state == CBHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMax {
			cb.state = CBClosed
		}
	}
}

// RecordFailure records a connection failure or 5xx from the backend. In
// Closed state, transitions to Open after the failure threshold is reached.
// In HalfOpen state, transitions directly back to Open.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CBClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = CBOpen
		}
	case CBHalfOpen:
		cb.state = CBOpen
		cb.halfOpenSuccesses = 0
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerRegistry holds one breaker per backend URL, created lazily
// on first access. Keying by URL rather than provider keeps one dead
// backend from poisoning its provider's healthy fallbacks.
type CircuitBreakerRegistry struct {
	mu sync.Mutex

	breakers         map[string]*CircuitBreaker
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int
}

// NewCircuitBreakerRegistry creates a registry whose breakers use the given
// default parameters.
func NewCircuitBreakerRegistry(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
	}
}

// Get returns the circuit breaker for the given backend URL, creating one
// if necessary.
func (r *CircuitBreakerRegistry) Get(url string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[url]
	if !ok {
		cb = NewCircuitBreaker(r.failureThreshold, r.resetTimeout, r.halfOpenMax)
		r.breakers[url] = cb
	}
	return cb
}
