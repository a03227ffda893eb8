package antrean

import (
	"net/http"
	"time"
)

// UnlimitedRequests disables the rate window entirely. The sentinel is never
// used as a divisor when deriving the dispatch tick.
const UnlimitedRequests = -1

// Middleware represents a middleware function wrapped around the transport.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// circuit. Defaults to 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before a half-open
	// probe is admitted. Defaults to 60s.
	ResetTimeout time.Duration
	// ProbeInterval is the rolling window in which at most one half-open
	// probe is admitted. Defaults to 1s.
	ProbeInterval time.Duration
}

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name for logs and metrics labels.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Option represents a configuration option.
type Option func(*Client)
