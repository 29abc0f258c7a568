package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeswarm/pkg/agent/llm"
)

// slowClient blocks in Complete until its context is cancelled and
// reports which deadline it observed. Stream returns immediately.
func slowClient(completeDeadline *bool) llm.LLMClient {
	return llm.WrapClient(
		func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			_, hasDeadline := ctx.Deadline()
			*completeDeadline = hasDeadline
			<-ctx.Done()
			return llm.CompletionResponse{}, ctx.Err()
		},
		func(ctx context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			if _, hasDeadline := ctx.Deadline(); hasDeadline {
				return nil, errors.New("stream context should not carry the request deadline")
			}
			ch := make(chan llm.StreamChunk)
			close(ch)
			return ch, nil
		},
		func() string { return "claude-sonnet-4-5" },
	)
}

func TestMiddlewareTimesOutComplete(t *testing.T) {
	var sawDeadline bool
	wrapped := Middleware(10 * time.Millisecond)(slowClient(&sawDeadline))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("slow call")})
	start := time.Now()
	_, err := wrapped.Complete(context.Background(), req)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if !sawDeadline {
		t.Error("wrapped client saw no deadline on its context")
	}
	if elapsed > time.Second {
		t.Errorf("Complete blocked for %s, timeout did not fire", elapsed)
	}
}

func TestMiddlewareLeavesStreamUntimed(t *testing.T) {
	var sawDeadline bool
	wrapped := Middleware(10 * time.Millisecond)(slowClient(&sawDeadline))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("stream it")})
	ch, err := wrapped.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	for range ch {
	}
}

func TestMiddlewareDelegatesModelName(t *testing.T) {
	var sawDeadline bool
	wrapped := Middleware(time.Second)(slowClient(&sawDeadline))
	if got := wrapped.GetModelName(); got != "claude-sonnet-4-5" {
		t.Errorf("GetModelName = %q", got)
	}
}
