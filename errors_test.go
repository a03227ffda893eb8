package antrean

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClientErrorFormatting(t *testing.T) {
	err := &ClientError{
		Type:    ErrorTypeNetwork,
		Message: "network request failed",
	}
	if got := err.Error(); got != "Network: network request failed" {
		t.Errorf("Unexpected message: %s", got)
	}

	err = &ClientError{
		Type:       ErrorTypeTransient,
		Message:    "request failed with status 500 Internal Server Error",
		Cause:      errors.New("boom"),
		RequestID:  "req-1",
		Attempt:    2,
		MaxRetries: 3,
	}
	got := err.Error()
	for _, want := range []string{"Transient:", "(boom)", "[req-1]", "(attempt 2/3)"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in %q", want, got)
		}
	}
}

func TestClientErrorNil(t *testing.T) {
	var err *ClientError
	if err.Error() != "<nil>" {
		t.Errorf("Expected <nil>, got %s", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("Expected nil unwrap")
	}
	if err.Is(errors.New("x")) {
		t.Error("Expected nil error to match nothing")
	}
	if err.DebugInfo() != "Error: <nil>" {
		t.Errorf("Unexpected debug info: %s", err.DebugInfo())
	}
}

func TestClientErrorIs(t *testing.T) {
	a := &ClientError{Type: ErrorTypeNonRetryable, Message: "404"}
	b := &ClientError{Type: ErrorTypeNonRetryable}
	c := &ClientError{Type: ErrorTypeNetwork}

	if !errors.Is(a, b) {
		t.Error("Expected errors with the same type to match")
	}
	if errors.Is(a, c) {
		t.Error("Expected errors with different types not to match")
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ClientError{Type: ErrorTypeNetwork, Message: "network request failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	var clientErr *ClientError
	if !errors.As(wrapped, &clientErr) {
		t.Error("Expected errors.As to find *ClientError")
	}
}

func TestClientErrorDebugInfo(t *testing.T) {
	err := &ClientError{
		Type:       ErrorTypeNonRetryable,
		Message:    "request failed with status 404 Not Found",
		Method:     "GET",
		URL:        "http://example.com/missing",
		Endpoint:   "example.com/missing",
		StatusCode: 404,
		Attempt:    1,
		MaxRetries: 3,
		Timestamp:  time.Now(),
		Duration:   50 * time.Millisecond,
	}

	info := err.DebugInfo()
	for _, want := range []string{"Error Type: NonRetryable", "Method: GET", "Status Code: 404", "Attempt: 1/3"} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected %q in debug info", want)
		}
	}
}

func TestStatusCodeExtraction(t *testing.T) {
	err := &ClientError{Type: ErrorTypeTransient, StatusCode: 502}
	wrapped := fmt.Errorf("call failed: %w", err)

	code, ok := StatusCode(wrapped)
	if !ok || code != 502 {
		t.Errorf("Expected (502, true), got (%d, %v)", code, ok)
	}

	if _, ok := StatusCode(errors.New("plain")); ok {
		t.Error("Expected no status code on a plain error")
	}
	if _, ok := StatusCode(nil); ok {
		t.Error("Expected no status code on nil")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open", ErrCircuitOpen, false},
		{"client closed", ErrClientClosed, false},
		{"transient status", &ClientError{Type: ErrorTypeTransient, StatusCode: 500}, true},
		{"network", &ClientError{Type: ErrorTypeNetwork}, true},
		{"non-retryable", &ClientError{Type: ErrorTypeNonRetryable, StatusCode: 404}, false},
		{"validation", &ClientError{Type: ErrorTypeValidation}, false},
		{"wrapped circuit open", &ClientError{Type: ErrorTypeCircuitOpen, Cause: ErrCircuitOpen}, false},
		{"plain error", errors.New("x"), false},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
