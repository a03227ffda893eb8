package antrean

import (
	"fmt"
	"net/http"
	"time"
)

// WithMaxRetries sets the maximum number of retry attempts. Total transport
// attempts for a call are maxRetries + 1.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the first retry delay; each further retry doubles it.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithMaxDelay caps the computed retry delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithJitterRange sets the uniform range the computed delay is scaled by.
func WithJitterRange(low, high float64) Option {
	return func(c *Client) {
		c.jitterLow = low
		c.jitterHigh = high
	}
}

// WithRequestsPerMinute bounds dispatches per 60 second window. Pass
// UnlimitedRequests to disable the window.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		c.requestsPerMinute = n
	}
}

// WithNonRetryableStatusCodes replaces the status codes that short-circuit
// the retry loop. Defaults to 403 and 404.
func WithNonRetryableStatusCodes(codes ...int) Option {
	return func(c *Client) {
		c.nonRetryable = make(map[int]bool, len(codes))
		for _, code := range codes {
			c.nonRetryable[code] = true
		}
	}
}

// WithDefaultHeaders sets headers applied to every request that does not
// already carry them.
func WithDefaultHeaders(headers http.Header) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-attempt transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config BreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validateRateWindowConfig()...)
	errs = append(errs, c.validateBreakerConfig()...)
	errs = append(errs, c.validateDebugConfig()...)
	errs = append(errs, c.validateHTTPClientConfig()...)
	errs = append(errs, c.validateExtremeValues()...)

	if len(errs) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errs []string

	if c.maxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}
	if c.baseDelay <= 0 {
		errs = append(errs, "baseDelay must be positive")
	}
	if c.maxDelay < c.baseDelay {
		errs = append(errs, "maxDelay must be greater than or equal to baseDelay")
	}
	if c.jitterLow <= 0 || c.jitterHigh < c.jitterLow {
		errs = append(errs, "jitter range must satisfy 0 < low <= high")
	}

	return errs
}

func (c *Client) validateRateWindowConfig() []string {
	var errs []string

	if c.requestsPerMinute != UnlimitedRequests && c.requestsPerMinute <= 0 {
		errs = append(errs, "requestsPerMinute must be positive or UnlimitedRequests")
	}
	if c.windowDuration <= 0 {
		errs = append(errs, "window duration must be positive")
	}

	return errs
}

func (c *Client) validateBreakerConfig() []string {
	var errs []string

	if c.circuitBreaker == nil {
		errs = append(errs, "circuit breaker cannot be nil")
		return errs
	}
	if c.circuitBreaker.config.FailureThreshold <= 0 {
		errs = append(errs, "circuitBreaker FailureThreshold must be positive")
	}
	if c.circuitBreaker.config.ResetTimeout <= 0 {
		errs = append(errs, "circuitBreaker ResetTimeout must be positive")
	}
	if c.circuitBreaker.config.ProbeInterval <= 0 {
		errs = append(errs, "circuitBreaker ProbeInterval must be positive")
	}

	return errs
}

func (c *Client) validateDebugConfig() []string {
	var errs []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errs = append(errs, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errs = append(errs, "logger must be set when debug is enabled")
		}
	}

	return errs
}

func (c *Client) validateHTTPClientConfig() []string {
	var errs []string

	if c.httpClient == nil {
		errs = append(errs, "HTTP client cannot be nil")
	}

	return errs
}

func (c *Client) validateExtremeValues() []string {
	var errs []string

	if c.maxRetries > 100 {
		errs = append(errs, "maxRetries > 100 may cause excessive resource usage")
	}
	if c.baseDelay > 10*time.Minute {
		errs = append(errs, "baseDelay > 10m may cause very long delays")
	}
	if c.maxDelay > time.Hour {
		errs = append(errs, "maxDelay > 1h may cause extremely long delays")
	}
	if c.requestsPerMinute > 1000000 {
		errs = append(errs, "requestsPerMinute > 1M derives a sub-microsecond dispatch tick")
	}

	return errs
}
