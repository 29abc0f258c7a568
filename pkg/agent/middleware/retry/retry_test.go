package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/agent/llmerrors"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	}
}

type countingClient struct {
	calls    int
	failures int
	err      error
}

func (c *countingClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	if c.calls <= c.failures {
		return llm.CompletionResponse{}, c.err
	}
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (c *countingClient) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, c.err
	}
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (c *countingClient) GetModelName() string { return "counting-model" }

func TestShouldRetryClassifiedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"), true},
		{"transient", llmerrors.NewError(llmerrors.ErrorTypeTransient, "eof"), true},
		{"auth", llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"), false},
		{"bad prompt", llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "too long"), false},
		{"service unavailable", llmerrors.NewServiceUnavailableError(errors.New("down"), 4), false},
		{"context cancelled", context.Canceled, false},
		{"plain timeout string", errors.New("request timeout"), true},
		{"plain 503 string", errors.New("got 503 from upstream"), true},
		{"plain unknown", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateDelayBackoff(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	}, nil)

	if d := policy.CalculateDelay(1, nil); d != 0 {
		t.Errorf("first attempt should have no delay, got %v", d)
	}
	if d := policy.CalculateDelay(2, nil); d != 100*time.Millisecond {
		t.Errorf("attempt 2 delay = %v, want 100ms", d)
	}
	if d := policy.CalculateDelay(3, nil); d != 200*time.Millisecond {
		t.Errorf("attempt 3 delay = %v, want 200ms", d)
	}
	// Capped at MaxDelay.
	if d := policy.CalculateDelay(10, nil); d != time.Second {
		t.Errorf("late attempt delay = %v, want cap 1s", d)
	}
}

func TestCalculateDelayUsesErrorSchedule(t *testing.T) {
	policy := NewPolicy(fastConfig(3), nil)

	// Rate limit errors carry a 1s initial delay in their own schedule.
	rateErr := llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")
	d := policy.CalculateDelay(2, rateErr)
	want := llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeRateLimit].InitialDelay
	// Schedule has jitter enabled, allow 10% spread.
	if d < want-want/10 || d > want+want/10 {
		t.Errorf("rate limit delay = %v, want about %v", d, want)
	}
}

func TestMiddlewareRetriesTransient(t *testing.T) {
	client := &countingClient{
		failures: 2,
		err:      llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
	}
	wrapped := llm.Chain(client, Middleware(NewPolicy(fastConfig(4), nil)))

	resp, err := wrapped.Complete(context.Background(), llm.NewCompletionRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected success content, got %q", resp.Content)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
}

func TestMiddlewareStopsOnTerminalError(t *testing.T) {
	client := &countingClient{
		failures: 10,
		err:      llmerrors.NewError(llmerrors.ErrorTypeAuth, "invalid key"),
	}
	wrapped := llm.Chain(client, Middleware(NewPolicy(fastConfig(4), nil)))

	_, err := wrapped.Complete(context.Background(), llm.NewCompletionRequest(nil))
	if !llmerrors.Is(err, llmerrors.ErrorTypeAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("terminal error must not be retried, got %d attempts", client.calls)
	}
}

func TestMiddlewareEmitsServiceUnavailable(t *testing.T) {
	client := &countingClient{
		failures: 10,
		err:      llmerrors.NewError(llmerrors.ErrorTypeTransient, "eof"),
	}
	wrapped := llm.Chain(client, Middleware(NewPolicy(fastConfig(3), nil)))

	_, err := wrapped.Complete(context.Background(), llm.NewCompletionRequest(nil))
	if !llmerrors.IsServiceUnavailable(err) {
		t.Fatalf("expected service unavailable after exhausting retries, got %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
}

func TestMiddlewareHonorsCancellation(t *testing.T) {
	client := &countingClient{
		failures: 10,
		err:      llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"),
	}
	wrapped := llm.Chain(client, Middleware(NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  time.Hour, // Force the retry loop to block on backoff
		MaxDelay:      time.Hour,
		BackoffFactor: 2.0,
	}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := wrapped.Complete(ctx, llm.NewCompletionRequest(nil))
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if err == nil || !errors.Is(err, context.Canceled) {
			t.Errorf("expected cancellation error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestMiddlewarePropagatesModelName(t *testing.T) {
	client := &countingClient{}
	wrapped := llm.Chain(client, Middleware(NewPolicy(fastConfig(2), nil)))
	if got := wrapped.GetModelName(); got != "counting-model" {
		t.Errorf("GetModelName = %q, want %q", got, "counting-model")
	}
}
