package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without cause",
			err:      New(CodeNotFound, "subscription not found"),
			expected: "[NOT_FOUND] subscription not found",
		},
		{
			name:     "with cause",
			err:      Wrap(errors.New("dial tcp"), CodeEngineFailure, "redis subscribe failed"),
			expected: "[ENGINE_FAILURE] redis subscribe failed: dial tcp",
		},
		{
			name:     "formatted message",
			err:      Newf(CodeUnsupportedMatchMode, "unknown match mode %q", "regex"),
			expected: `[UNSUPPORTED_MATCH_MODE] unknown match mode "regex"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err1 := Newf(CodeUnsupportedMatchMode, "unknown mode %q", "regex")
	err2 := New(CodeMissingHandler, "no handler")

	if !errors.Is(err1, ErrUnsupportedMatchMode) {
		t.Error("should match sentinel error with same code")
	}

	if errors.Is(err1, err2) {
		t.Error("errors with different code should not match")
	}

	wrapped := fmt.Errorf("subscribe: %w", err2)
	if !errors.Is(wrapped, ErrMissingHandler) {
		t.Error("wrapped error should still match by code")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	wrapped := Wrap(cause, CodeInternal, "wrapped")

	if errors.Unwrap(wrapped) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := ErrInvalidPattern.WithDetail("pattern", "a.>.b").WithDetail("mode", "nats-wildcard")

	if err.Detail("pattern") != "a.>.b" {
		t.Error("detail 'pattern' should be kept")
	}
	if err.Detail("mode") != "nats-wildcard" {
		t.Error("detail 'mode' should be kept")
	}
	if ErrInvalidPattern.Details != nil {
		t.Error("sentinel must not be mutated by WithDetail")
	}
	if !errors.Is(err, ErrInvalidPattern) {
		t.Error("detailed copy should still match the sentinel")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{"custom error", New(CodeNotFound, "not found"), CodeNotFound},
		{"wrapped error", Wrap(errors.New("io"), CodeNetworkError, "net"), CodeNetworkError},
		{"standard error", errors.New("standard"), CodeInternal},
		{"nil error", nil, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsSubscribeRejected(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"missing handler", ErrMissingHandler, true},
		{"bad mode", ErrUnsupportedMatchMode, true},
		{"bad pattern", ErrInvalidPattern, true},
		{"closed connection", ErrAlreadyClosed, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSubscribeRejected(tt.err); got != tt.expected {
				t.Errorf("IsSubscribeRejected() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"timeout", New(CodeTimeout, "timeout"), true},
		{"queue full", ErrQueueFull, true},
		{"engine failure", ErrEngineFailure, true},
		{"not found", ErrNotFound, false},
		{"missing handler", ErrMissingHandler, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}
