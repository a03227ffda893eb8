package antrean

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordedSleep replaces the client's backoff wait so retry tests observe the
// computed delays without actually sleeping.
type recordedSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedSleep) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

func newRetryTestClient(t *testing.T, options ...Option) (*Client, *recordedSleep) {
	t.Helper()
	client := New(options...)
	t.Cleanup(client.Close)
	recorder := &recordedSleep{}
	client.sleep = recorder.sleep
	return client, recorder
}

func TestRetryBudgetExhaustion(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, recorder := newRetryTestClient(t, WithMaxRetries(3))

	_, err := client.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}

	if got := atomic.LoadInt32(&hits); got != 4 {
		t.Errorf("Expected 4 total transport attempts, got %d", got)
	}

	delays := recorder.recorded()
	if len(delays) != 3 {
		t.Fatalf("Expected 3 backoff delays, got %d", len(delays))
	}

	// base=1s doubled per attempt, scaled by a factor in [0.85, 1.15].
	bounds := []struct{ low, high time.Duration }{
		{850 * time.Millisecond, 1150 * time.Millisecond},
		{1700 * time.Millisecond, 2300 * time.Millisecond},
		{3400 * time.Millisecond, 4600 * time.Millisecond},
	}
	for i, d := range delays {
		if d < bounds[i].low || d > bounds[i].high {
			t.Errorf("Delay %d = %v outside [%v, %v]", i, d, bounds[i].low, bounds[i].high)
		}
	}

	// The whole exhausted budget counts as exactly one breaker failure.
	if client.circuitBreaker.failures != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", client.circuitBreaker.failures)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("Expected *ClientError, got %T", err)
	}
	if clientErr.Type != ErrorTypeTransient {
		t.Errorf("Expected type %s, got %s", ErrorTypeTransient, clientErr.Type)
	}
	if clientErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500 on error, got %d", clientErr.StatusCode)
	}
}

func TestRetrySuccessStopsLoop(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, recorder := newRetryTestClient(t)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after one retry, got %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("Expected 2 transport attempts, got %d", got)
	}
	if got := len(recorder.recorded()); got != 1 {
		t.Errorf("Expected 1 backoff delay, got %d", got)
	}
	if client.circuitBreaker.failures != 0 {
		t.Errorf("Expected failure streak cleared by success, got %d", client.circuitBreaker.failures)
	}
}

func TestNonRetryableStatusShortCircuits(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, recorder := newRetryTestClient(t, WithMaxRetries(3))

	_, err := client.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404")
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("Expected exactly 1 transport attempt, got %d", got)
	}
	if got := len(recorder.recorded()); got != 0 {
		t.Errorf("Expected no backoff delays, got %d", got)
	}
	if client.circuitBreaker.failures != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", client.circuitBreaker.failures)
	}

	code, ok := StatusCode(err)
	if !ok || code != http.StatusNotFound {
		t.Errorf("Expected status 404 on error, got %d (ok=%v)", code, ok)
	}
	if IsTransient(err) {
		t.Error("Expected 404 error to be non-transient")
	}
}

func TestCircuitOpenFailsFast(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client, _ := newRetryTestClient(t)

	for i := 0; i < 5; i++ {
		client.circuitBreaker.RecordFailure()
	}

	_, err := client.Get(context.Background(), server.URL)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}

	if got := atomic.LoadInt32(&hits); got != 0 {
		t.Errorf("Expected transport untouched while open, got %d hits", got)
	}

	// The fast-fail path must not record an additional failure.
	if client.circuitBreaker.failures != 5 {
		t.Errorf("Expected failure count unchanged at 5, got %d", client.circuitBreaker.failures)
	}
}

func TestRetriesBypassQueueBudget(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// High cap keeps the dispatch tick short while the window stays bounded.
	client, _ := newRetryTestClient(t, WithRequestsPerMinute(6000))

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("Expected 3 transport attempts, got %d", got)
	}

	// Only the first attempt rode the queue and consumed window budget.
	if used := client.scheduler.windowUsed(); used != 1 {
		t.Errorf("Expected windowUsed=1, got %d", used)
	}
}

func TestRetryRewindsRequestBody(t *testing.T) {
	var hits int32
	var bodies []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		mu.Lock()
		bodies = append(bodies, string(buf[:n]))
		mu.Unlock()
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := newRetryTestClient(t)

	resp, err := client.Post(context.Background(), server.URL, "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(bodies))
	}
	for i, body := range bodies {
		if body != "payload" {
			t.Errorf("Attempt %d received body %q, want %q", i, body, "payload")
		}
	}
}
