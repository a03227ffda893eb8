package antrean

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/antrean/internal/backoff"
)

// Client is a resilient HTTP client that decides when, whether and how many
// times an outbound call is attempted: first attempts queue FIFO behind a
// fixed rate window, a shared circuit breaker guards dispatch, and failures
// retry with jittered exponential backoff. It is safe for concurrent use.
type Client struct {
	httpClient        *http.Client
	headers           http.Header
	maxRetries        int
	baseDelay         time.Duration
	maxDelay          time.Duration
	jitterLow         float64
	jitterHigh        float64
	nonRetryable      map[int]bool
	requestsPerMinute int
	windowDuration    time.Duration
	circuitBreaker    *CircuitBreaker
	middleware        []Middleware
	scheduler         *requestScheduler
	backoff           backoff.Strategy
	sleep             func(ctx context.Context, d time.Duration) error
	metrics           *MetricsCollector
	debug             *DebugConfig
	logger            Logger
	validationError   error
}

// New constructs a Client using the provided functional options and starts
// its scheduler. A best effort validation is performed; call IsValid /
// ValidationError for errors. Call Close when done with the client.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers:           http.Header{},
		maxRetries:        3,
		baseDelay:         time.Second,
		maxDelay:          30 * time.Second,
		jitterLow:         0.85,
		jitterHigh:        1.15,
		nonRetryable:      map[int]bool{http.StatusForbidden: true, http.StatusNotFound: true},
		requestsPerMinute: UnlimitedRequests,
		windowDuration:    time.Minute,
		circuitBreaker:    NewCircuitBreaker(BreakerConfig{}),
		middleware:        []Middleware{},
		sleep:             sleepContext,
		metrics:           nil,
		debug:             DefaultDebugConfig(),
		logger:            nil,
	}

	for _, option := range options {
		option(client)
	}

	client.backoff = backoff.ExponentialJitter{
		Multiplier: 2.0,
		JitterLow:  client.jitterLow,
		JitterHigh: client.jitterHigh,
		Max:        client.maxDelay,
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.scheduler = newRequestScheduler(client.requestsPerMinute, client.windowDuration, client.dispatchQueued)
	client.scheduler.deferred = client.logDeferredDispatch
	client.scheduler.start()

	return client
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, url, "", nil)
}

// Head performs an HTTP HEAD with context.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	return c.send(ctx, http.MethodHead, url, "", nil)
}

// Options performs an HTTP OPTIONS with context.
func (c *Client) Options(ctx context.Context, url string) (*http.Response, error) {
	return c.send(ctx, http.MethodOptions, url, "", nil)
}

// Delete performs an HTTP DELETE with context.
func (c *Client) Delete(ctx context.Context, url string) (*http.Response, error) {
	return c.send(ctx, http.MethodDelete, url, "", nil)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, url, contentType, body)
}

// Put performs an HTTP PUT with the given content type.
func (c *Client) Put(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	return c.send(ctx, http.MethodPut, url, contentType, body)
}

// Patch performs an HTTP PATCH with the given content type.
func (c *Client) Patch(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	return c.send(ctx, http.MethodPatch, url, contentType, body)
}

func (c *Client) send(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

// Do executes a prepared *http.Request applying the full dispatch policy:
// queue, rate window, circuit breaker and retries.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := endpointFromRequest(req)

	c.applyDefaultHeaders(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String(), "endpoint", endpoint)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(req.Method, endpoint)
	}

	resp, err := c.execute(req, requestID, start)

	if c.metrics != nil {
		c.metrics.RecordRequestEnd(req.Method, endpoint)

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.RecordRequest(req.Method, endpoint, statusCode, time.Since(start))
	}

	return resp, err
}

// Close stops the dispatch and window-reset timers and fails every request
// still waiting in the queue with ErrClientClosed. Requests already handed
// to the transport are unaffected; verb calls after Close fail immediately.
func (c *Client) Close() {
	c.scheduler.close()
}

// QueueDepth returns the number of requests still waiting for dispatch.
func (c *Client) QueueDepth() int {
	return c.scheduler.depth()
}

// dispatchQueued runs one queued entry against the transport and settles its
// result handle. Invoked by the scheduler on its dispatch tick.
func (c *Client) dispatchQueued(entry *queuedRequest) {
	endpoint := endpointFromRequest(entry.req)
	if c.debug != nil && c.debug.Enabled && c.debug.LogQueue && c.logger != nil {
		c.logger.Debug("Dispatching queued request", "method", entry.req.Method, "endpoint", endpoint)
	}
	if c.metrics != nil {
		c.metrics.RecordDispatch(entry.req.Method, endpoint)
		c.metrics.RecordRateWindowUsed("default", c.scheduler.windowUsed())
		c.metrics.RecordQueueDepth("default", c.scheduler.depth())
	}

	resp, err := c.transport(entry.req)
	entry.pending.complete(resp, err)
}

// logDeferredDispatch reports a tick that found queued work but no window
// budget left.
func (c *Client) logDeferredDispatch() {
	if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
		c.logger.Warn("Rate window exhausted, deferring dispatch", "used", c.scheduler.windowUsed(), "capacity", c.requestsPerMinute, "depth", c.scheduler.depth())
	}
	if c.metrics != nil {
		c.metrics.RecordError("RateLimitDeferred", "", "")
	}
}

// transport runs the middleware chain ending at the underlying HTTP client.
func (c *Client) transport(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func (c *Client) applyDefaultHeaders(req *http.Request) {
	for key, values := range c.headers {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
}

func (c *Client) newError(errorType, message string, cause error, requestID string, req *http.Request, attempt int, duration time.Duration) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     req.Method,
		URL:        req.URL.String(),
		Endpoint:   endpointFromRequest(req),
		Attempt:    attempt,
		MaxRetries: c.maxRetries,
		Timestamp:  time.Now(),
		Duration:   duration,
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func endpointFromRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	path := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)

	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
