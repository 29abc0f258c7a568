package llmerrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorType
	}{
		{"rate limit", 429, ErrorTypeRateLimit},
		{"unauthorized", 401, ErrorTypeAuth},
		{"forbidden", 403, ErrorTypeAuth},
		{"bad request", 400, ErrorTypeBadPrompt},
		{"payload too large", 413, ErrorTypeBadPrompt},
		{"server error", 500, ErrorTypeTransient},
		{"bad gateway", 502, ErrorTypeTransient},
		{"teapot", 418, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatus(tt.status); got != tt.want {
				t.Errorf("ClassifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse, ErrorTypeUnknown}
	for _, et := range retryable {
		if !NewError(et, "x").IsRetryable() {
			t.Errorf("expected %s to be retryable", et)
		}
	}

	terminal := []ErrorType{ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable}
	for _, et := range terminal {
		if NewError(et, "x").IsRetryable() {
			t.Errorf("expected %s to be non-retryable", et)
		}
	}
}

func TestUnwrapAndIs(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "stream interrupted")

	wrapped := fmt.Errorf("implementation agent: %w", err)

	if !Is(wrapped, ErrorTypeTransient) {
		t.Error("expected wrapped error to classify as transient")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected cause to survive wrapping")
	}
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("expected unclassified error to report unknown type")
	}
}

func TestServiceUnavailableAfterRetries(t *testing.T) {
	cause := NewErrorWithStatus(ErrorTypeTransient, 503, "upstream down")
	err := NewServiceUnavailableError(cause, 4)

	if !IsServiceUnavailable(err) {
		t.Error("expected service unavailable classification")
	}
	if err.IsRetryable() {
		t.Error("service unavailable must not be retried")
	}
	if err.GetRetryConfig().MaxRetries != 0 {
		t.Error("service unavailable retry config must be zero")
	}
}

func TestSanitizePrompt(t *testing.T) {
	short := "build a REST API"
	if SanitizePrompt(short, 100) != short {
		t.Error("short prompts pass through unchanged")
	}

	long := ""
	for i := 0; i < 100; i++ {
		long += "segment "
	}
	out := SanitizePrompt(long, 300)
	if len(out) >= len(long) {
		t.Error("long prompts should be truncated")
	}
	if want := fmt.Sprintf("[%d chars", len(long)); !strings.Contains(out, want) {
		t.Errorf("expected length marker %q in %q", want, out)
	}
}
