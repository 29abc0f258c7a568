// Package retry provides retry middleware with exponential backoff for
// resilient model provider calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"codeswarm/pkg/agent/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   4,
	InitialDelay:  time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default error classifier. Classified llmerrors carry
// their own retryability; plain errors fall back to string heuristics.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Never retry context cancellation or deadline exceeded.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	errStr := err.Error()

	// Retry on network/timeout errors.
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}

	// Retry on rate limiting.
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}

	// Retry on server errors (5xx).
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	// Default to not retrying unknown errors.
	return false
}

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and
// classifier. A nil classifier uses ShouldRetry.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the backoff delay before the given attempt.
// Classified errors use their per-type schedule; everything else uses the
// policy config.
func (p *Policy) CalculateDelay(attempt int, lastErr error) time.Duration {
	if attempt <= 1 {
		return 0
	}

	initial := p.Config.InitialDelay
	maxDelay := p.Config.MaxDelay
	factor := p.Config.BackoffFactor
	jitter := p.Config.Jitter

	var llmErr *llmerrors.Error
	if errors.As(lastErr, &llmErr) {
		rc := llmErr.GetRetryConfig()
		if rc.InitialDelay > 0 {
			initial = rc.InitialDelay
			maxDelay = rc.MaxDelay
			factor = rc.BackoffFactor
			jitter = rc.Jitter
		}
	}

	delay := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-2)))
	if delay > maxDelay {
		delay = maxDelay
	}

	if jitter && delay > 0 {
		// +/- 10% to de-synchronize concurrent agents.
		spread := float64(delay) * 0.1
		delay += time.Duration((rand.Float64()*2 - 1) * spread) //nolint:gosec // Jitter, not crypto
		if delay < 0 {
			delay = initial
		}
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the
// configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
