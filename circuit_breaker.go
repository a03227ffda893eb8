package antrean

import (
	"sync"
	"time"
)

// CircuitBreaker guards whether outbound calls are permitted at all. It is
// the one piece of state shared by every in-flight call on a client.
type CircuitBreaker struct {
	config BreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	lastProbe   time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.ProbeInterval == 0 {
		config.ProbeInterval = time.Second
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed, re-evaluating state transitions
// first. While half-open, at most one probe is admitted per rolling
// ProbeInterval; admitting a probe records its timestamp.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.state == StateOpen && now.Sub(cb.lastFailure) > cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.lastProbe = time.Time{}
	}

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if !cb.lastProbe.IsZero() && now.Sub(cb.lastProbe) < cb.config.ProbeInterval {
			return false
		}
		cb.lastProbe = now
		return true
	default:
		return false
	}
}

// RecordSuccess records a success in the circuit breaker. A single success
// clears any partial failure streak; a successful half-open probe closes the
// circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = 0
	case StateOpen:
		// No effect while open.
	}
}

// RecordFailure records a failure in the circuit breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		// A failed probe immediately reopens the circuit.
		cb.state = StateOpen
	case StateOpen:
		// Only lastFailure is refreshed while open.
	}
}

// State returns the current state without admitting a probe. Transitions are
// still re-evaluated so observers see OPEN become HALF_OPEN lazily.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.lastProbe = time.Time{}
	}
	return cb.state
}
