package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/agent/middleware/metrics"
	"codeswarm/pkg/config"
	"codeswarm/pkg/limiter"
)

type throttleRecorder struct {
	mu        sync.Mutex
	throttles []string // "model/reason"
	waits     []time.Duration
}

func (r *throttleRecorder) ObserveRequest(
	_, _, _, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration,
) {
}

func (r *throttleRecorder) IncThrottle(model, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttles = append(r.throttles, model+"/"+reason)
}

func (r *throttleRecorder) ObserveQueueWait(_ string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
}

func newTestLimiter(t *testing.T, budgetUSD float64) *limiter.Limiter {
	t.Helper()
	l := limiter.NewLimiter(&config.Config{
		Resilience: &config.ResilienceConfig{DailyBudgetUSD: budgetUSD},
	})
	t.Cleanup(l.Close)
	return l
}

func newCountingClient(model string) (llm.LLMClient, *int) {
	calls := 0
	client := llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			return llm.CompletionResponse{Content: "done"}, nil
		},
		func(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			calls++
			ch := make(chan llm.StreamChunk)
			close(ch)
			return ch, nil
		},
		func() string { return model },
	)
	return client, &calls
}

func TestDefaultTokenEstimator(t *testing.T) {
	est := NewDefaultTokenEstimator()
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("you are a careful assistant"),
		llm.NewUserMessage("write a function that parses dates"),
	})

	if got := est.EstimatePrompt(req); got < 5 {
		t.Errorf("EstimatePrompt = %d, want a realistic count", got)
	}
}

func TestMiddlewarePassesThroughWithCapacity(t *testing.T) {
	lim := newTestLimiter(t, 0)
	recorder := &throttleRecorder{}
	client, calls := newCountingClient(config.ModelClaudeSonnet45)

	wrapped := Middleware(lim, nil, recorder)(client)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hello")})

	resp, err := wrapped.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("Content = %q, want done", resp.Content)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
	if len(recorder.throttles) != 0 {
		t.Errorf("unexpected throttles: %v", recorder.throttles)
	}

	// Slot must be returned after the call.
	_, inFlight, err := lim.GetStatus(config.ProviderAnthropic)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if inFlight != 0 {
		t.Errorf("inFlight after Complete = %d, want 0", inFlight)
	}
}

func TestMiddlewareRejectsOverBudget(t *testing.T) {
	// claude-opus-4-1 output costs $75/M; 4096 max tokens alone exceed a
	// fraction-of-a-cent budget.
	lim := newTestLimiter(t, 0.0001)
	recorder := &throttleRecorder{}
	client, calls := newCountingClient(config.ModelClaudeOpus41)

	wrapped := Middleware(lim, nil, recorder)(client)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("audit everything")})

	_, err := wrapped.Complete(context.Background(), req)
	if err == nil {
		t.Fatal("over-budget request should fail")
	}
	if !errors.Is(err, limiter.ErrBudgetExceeded) {
		t.Errorf("error should wrap ErrBudgetExceeded, got %v", err)
	}
	if *calls != 0 {
		t.Errorf("provider called %d times, want 0", *calls)
	}

	found := false
	for _, th := range recorder.throttles {
		if strings.HasSuffix(th, "/budget") {
			found = true
		}
	}
	if !found {
		t.Errorf("budget throttle not recorded: %v", recorder.throttles)
	}

	// The concurrency slot must be released on rejection.
	_, inFlight, err := lim.GetStatus(config.ProviderAnthropic)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if inFlight != 0 {
		t.Errorf("inFlight after rejection = %d, want 0", inFlight)
	}
}

func TestMiddlewareUnknownModel(t *testing.T) {
	lim := newTestLimiter(t, 0)
	recorder := &throttleRecorder{}
	client, calls := newCountingClient("not-a-real-model")

	wrapped := Middleware(lim, nil, recorder)(client)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})

	if _, err := wrapped.Complete(context.Background(), req); err == nil {
		t.Fatal("unknown model should fail provider resolution")
	}
	if *calls != 0 {
		t.Errorf("provider called %d times, want 0", *calls)
	}
}

func TestMiddlewareHonorsCancellationWhileBlocked(t *testing.T) {
	lim := newTestLimiter(t, 0)
	recorder := &throttleRecorder{}
	client, _ := newCountingClient(config.ModelClaudeSonnet45)

	// Drain the provider bucket so the request has to queue.
	limits := config.GetProviderLimits(config.ProviderAnthropic)
	if err := lim.ReserveTokens(config.ProviderAnthropic, limits.TokensPerMinute); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	wrapped := Middleware(lim, nil, recorder)(client)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hello")})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := wrapped.Complete(ctx, req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("blocked request should return the context error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, want prompt return", elapsed)
	}

	found := false
	for _, th := range recorder.throttles {
		if strings.HasSuffix(th, "/tokens") {
			found = true
		}
	}
	if !found {
		t.Errorf("token throttle not recorded: %v", recorder.throttles)
	}
}

func TestMiddlewareStreamReleasesSlot(t *testing.T) {
	lim := newTestLimiter(t, 0)
	recorder := &throttleRecorder{}
	client, calls := newCountingClient(config.ModelGemini25Pro)

	wrapped := Middleware(lim, nil, recorder)(client)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("stream it")})

	ch, err := wrapped.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	for range ch {
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}

	_, inFlight, err := lim.GetStatus(config.ProviderGoogle)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if inFlight != 0 {
		t.Errorf("inFlight after Stream = %d, want 0", inFlight)
	}
}

var _ metrics.Recorder = (*throttleRecorder)(nil)
