// Package antrean provides a queued, rate-limited HTTP client that decides
// when, whether and how many times an outbound call is attempted:
//
//   - FIFO request queue drained by a timer-driven dispatcher
//   - Fixed 60 second rate window with a per-dispatch tick derived from the cap
//   - Circuit breaker (closed / open / half-open) shared by all calls
//   - Retries with exponential backoff scaled by a uniform jitter range
//   - Middleware chain for cross-cutting concerns (auth, logging, tracing, etc.)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - First attempts dispatch in strict enqueue order; retries bypass the queue
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via user supplied middleware & pluggable logger / metrics
//
// Typical usage:
//
//	client := antrean.New(
//	    antrean.WithRequestsPerMinute(60),
//	    antrean.WithMaxRetries(3),
//	    antrean.WithNonRetryableStatusCodes(403, 404),
//	    antrean.WithCircuitBreaker(antrean.BreakerConfig{}),
//	)
//	defer client.Close()
//	resp, err := client.Get(ctx, "https://api.example.com/data")
//
// Close stops both scheduler timers and fails every request still waiting in
// the queue with ErrClientClosed; requests already handed to the transport
// are unaffected. The library avoids opinionated logging: provide a Logger
// (e.g. via WithSimpleLogger or NewZapLogger) + enable debug flags
// selectively (WithDebug / WithDebugConfig) for insight without noise.
package antrean
