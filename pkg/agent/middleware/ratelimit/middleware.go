// Package ratelimit provides rate limiting middleware for LLM clients.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/agent/middleware/metrics"
	"codeswarm/pkg/config"
	"codeswarm/pkg/limiter"
	"codeswarm/pkg/logx"
	"codeswarm/pkg/utils"
)

const (
	// pollInterval is how often blocked requests re-check the bucket.
	pollInterval = 100 * time.Millisecond
	// maxWait bounds how long a request may queue before giving up.
	// The bucket refills once per minute, so waiting past two full refill
	// cycles means the request can never fit (config error or oversized prompt).
	maxWait = 2 * time.Minute
)

// TokenEstimator estimates the number of tokens needed for a request.
type TokenEstimator interface {
	// EstimatePrompt estimates the number of prompt tokens for a request.
	EstimatePrompt(req llm.CompletionRequest) int
}

// DefaultTokenEstimator provides token estimation using TikToken.
type DefaultTokenEstimator struct{}

// NewDefaultTokenEstimator creates a new default token estimator.
func NewDefaultTokenEstimator() TokenEstimator {
	return &DefaultTokenEstimator{}
}

// EstimatePrompt estimates prompt tokens using TikToken-based counting.
func (e *DefaultTokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	return utils.CountTokensSimple(promptText)
}

// Middleware returns a middleware function that wraps an LLM client with rate
// limiting and daily budget enforcement. It estimates token usage, waits for
// bucket capacity and a concurrency slot, and reserves budget before the call.
func Middleware(lim *limiter.Limiter, estimator TokenEstimator, recorder metrics.Recorder) llm.Middleware {
	if estimator == nil {
		estimator = NewDefaultTokenEstimator()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			// Complete implementation with rate limiting
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				model := next.GetModelName()

				release, err := admit(ctx, lim, estimator, model, req, recorder)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()

				return next.Complete(ctx, req) //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			// Stream implementation with rate limiting
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				model := next.GetModelName()

				release, err := admit(ctx, lim, estimator, model, req, recorder)
				if err != nil {
					return nil, err
				}
				// The slot guards request setup; stream consumption is not metered.
				defer release()

				return next.Stream(ctx, req) //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			// Delegate GetModelName to the next client
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// admit blocks until the request fits under the provider's token and
// concurrency limits, then reserves its estimated cost against the daily
// budget. The returned release function frees the concurrency slot.
func admit(
	ctx context.Context,
	lim *limiter.Limiter,
	estimator TokenEstimator,
	model string,
	req llm.CompletionRequest,
	recorder metrics.Recorder,
) (func(), error) {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		recorder.IncThrottle(model, "no_limiter")
		return nil, fmt.Errorf("cannot determine provider for model %s: %w", model, err)
	}

	promptTokens := estimator.EstimatePrompt(req)
	totalTokens := promptTokens + req.MaxTokens

	start := time.Now()
	if err := waitFor(ctx, model, "tokens", recorder, func() error {
		return lim.ReserveTokens(provider, totalTokens)
	}); err != nil {
		return nil, err
	}

	if err := waitFor(ctx, model, "concurrency", recorder, func() error {
		return lim.Acquire(provider)
	}); err != nil {
		return nil, err
	}

	if waited := time.Since(start); waited >= pollInterval {
		recorder.ObserveQueueWait(model, waited)
	}

	// Reserve the estimated spend up front so a burst of concurrent requests
	// cannot blow through the ceiling before any of them completes.
	cost := metrics.Cost(model, promptTokens, req.MaxTokens)
	if err := lim.SpendBudget(cost); err != nil {
		if relErr := lim.Release(provider); relErr != nil {
			logx.Warnf("RATELIMIT: release after budget rejection failed: %v", relErr)
		}
		recorder.IncThrottle(model, "budget")
		return nil, fmt.Errorf("request for model %s rejected: %w", model, err)
	}

	return func() {
		if err := lim.Release(provider); err != nil {
			logx.Warnf("RATELIMIT: slot release failed for provider %s: %v", provider, err)
		}
	}, nil
}

// waitFor polls an acquisition until it succeeds, the context is cancelled,
// or maxWait elapses. Limit hits are recorded once per blocked request.
func waitFor(ctx context.Context, model, reason string, recorder metrics.Recorder, acquire func() error) error {
	firstAttempt := true
	start := time.Now()

	for {
		err := acquire()
		if err == nil {
			return nil
		}
		if !errors.Is(err, limiter.ErrRateLimit) && !errors.Is(err, limiter.ErrConcurrencyLimit) {
			return err //nolint:wrapcheck // Limiter errors pass through unchanged
		}

		if firstAttempt {
			recorder.IncThrottle(model, reason)
			logx.Infof("RATELIMIT: %s %s limit hit, waiting", model, reason)
			firstAttempt = false
		}

		if elapsed := time.Since(start); elapsed > maxWait {
			return fmt.Errorf("rate limit acquisition timeout after %v (model: %s, blocked on: %s)",
				elapsed.Round(time.Second), model, reason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-time.After(pollInterval):
		}
	}
}
