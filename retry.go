package antrean

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// execute runs the retry loop for a single logical call. The first attempt
// rides the FIFO queue; retries bypass it and hit the transport directly,
// which means a request under retry can settle out of the original enqueue
// order relative to requests enqueued after it. That bypass is the ordering
// contract, not an accident.
func (c *Client) execute(req *http.Request, requestID string, start time.Time) (*http.Response, error) {
	endpoint := endpointFromRequest(req)

	if !c.circuitBreaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker open", "requestID", requestID, "endpoint", endpoint)
		}
		if c.metrics != nil {
			c.metrics.RecordError(ErrorTypeCircuitOpen, req.Method, endpoint)
		}
		// Fast fail. The breaker's own accounting already produced the open
		// state, so no additional failure is recorded here.
		return nil, c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", ErrCircuitOpen, requestID, req, 0, time.Since(start))
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", c.maxRetries, "endpoint", endpoint)
			}
			if c.metrics != nil {
				c.metrics.RecordRetry(req.Method, endpoint, attempt)
			}
		}

		resp, err := c.attempt(req, attempt, requestID, start)
		if err == nil {
			c.circuitBreaker.RecordSuccess()
			if c.metrics != nil {
				c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
			}
			return resp, nil
		}
		lastErr = err

		// Disposal is a lifecycle event, not a transport failure.
		if errors.Is(err, ErrClientClosed) {
			return nil, err
		}

		if code, ok := StatusCode(err); ok && c.nonRetryable[code] {
			c.circuitBreaker.RecordFailure()
			if c.metrics != nil {
				c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
				c.metrics.RecordError(ErrorTypeNonRetryable, req.Method, endpoint)
			}
			return nil, err
		}

		if attempt == c.maxRetries {
			break
		}

		delay := c.backoff.Delay(attempt, c.baseDelay)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		}
		// The retry loop suspends itself during backoff; the scheduler and
		// other pending calls keep running.
		if sleepErr := c.sleep(req.Context(), delay); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	// The caller gave up, not the dependency.
	if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, lastErr
	}

	// Exactly one failure is recorded for the whole exhausted budget.
	c.circuitBreaker.RecordFailure()
	if c.metrics != nil {
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
		c.metrics.RecordError(errorTypeOf(lastErr), req.Method, endpoint)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
		c.logger.Warn("Circuit breaker failure recorded", "requestID", requestID, "error", lastErr.Error())
	}

	var clientErr *ClientError
	if errors.As(lastErr, &clientErr) {
		return nil, lastErr
	}
	return nil, c.newError(ErrorTypeNetwork, "network request failed", lastErr, requestID, req, c.maxRetries, time.Since(start))
}

// attempt performs one transport round. Attempt zero is enqueued and waits
// for the scheduler to dispatch it; later attempts call the transport
// directly and do not consume window budget.
func (c *Client) attempt(req *http.Request, attempt int, requestID string, start time.Time) (*http.Response, error) {
	var resp *http.Response
	var err error

	if attempt == 0 {
		pending, enqErr := c.scheduler.enqueue(req)
		if enqErr != nil {
			return nil, c.newError(ErrorTypeClosed, "client is closed", enqErr, requestID, req, attempt, time.Since(start))
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogQueue && c.logger != nil {
			c.logger.Debug("Request enqueued", "requestID", requestID, "depth", c.scheduler.depth())
		}
		if c.metrics != nil {
			c.metrics.RecordQueueDepth("default", c.scheduler.depth())
		}
		resp, err = pending.Wait(req.Context())
	} else {
		retryReq, rewindErr := rewoundRequest(req)
		if rewindErr != nil {
			return nil, rewindErr
		}
		resp, err = c.transport(retryReq)
	}

	if err != nil {
		if errors.Is(err, ErrClientClosed) {
			return nil, c.newError(ErrorTypeClosed, "client closed while request was queued", err, requestID, req, attempt, time.Since(start))
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, c.newError(ErrorTypeNetwork, "network request failed", err, requestID, req, attempt, time.Since(start))
	}

	return c.checkStatus(resp, requestID, req, attempt, start)
}

// checkStatus converts status >= 400 responses into status-coded errors so
// the retry loop can classify them against the non-retryable set. The body
// is drained so the underlying connection can be reused by the retry.
func (c *Client) checkStatus(resp *http.Response, requestID string, req *http.Request, attempt int, start time.Time) (*http.Response, error) {
	if resp.StatusCode < 400 {
		return resp, nil
	}

	errType := ErrorTypeTransient
	if c.nonRetryable[resp.StatusCode] {
		errType = ErrorTypeNonRetryable
	}

	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	clientErr := c.newError(errType, "request failed with status "+resp.Status, nil, requestID, req, attempt, time.Since(start))
	clientErr.StatusCode = resp.StatusCode
	return nil, clientErr
}

// rewoundRequest returns a request whose body can be read again for a retry.
func rewoundRequest(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry := req.Clone(req.Context())
	retry.Body = body
	return retry, nil
}

// sleepContext waits for the delay or until the context cancels.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorTypeOf(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return ErrorTypeNetwork
}
