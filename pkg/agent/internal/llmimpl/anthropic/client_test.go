package anthropic

import (
	"context"
	"fmt"
	"testing"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/agent/llmerrors"
)

func TestEnsureAlternationExtractsSystem(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("be careful"),
		llm.NewSystemMessage("be brief"),
		llm.NewUserMessage("hello"),
	}

	system, merged, err := ensureAlternation(messages)
	if err != nil {
		t.Fatalf("ensureAlternation failed: %v", err)
	}
	if system != "be careful\n\nbe brief" {
		t.Errorf("system = %q", system)
	}
	if len(merged) != 1 || merged[0].Role != llm.RoleUser {
		t.Errorf("merged = %+v, want single user message", merged)
	}
}

func TestEnsureAlternationMergesConsecutiveUsers(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewUserMessage("part one"),
		llm.NewUserMessage("part two"),
		{Role: llm.RoleAssistant, Content: "reply"},
		llm.NewUserMessage("part three"),
	}

	_, merged, err := ensureAlternation(messages)
	if err != nil {
		t.Fatalf("ensureAlternation failed: %v", err)
	}
	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, want 3", len(merged))
	}
	if merged[0].Content != "part one\n\npart two" {
		t.Errorf("merged[0].Content = %q", merged[0].Content)
	}
	if merged[1].Role != llm.RoleAssistant || merged[2].Role != llm.RoleUser {
		t.Errorf("roles = %s/%s, want assistant/user", merged[1].Role, merged[2].Role)
	}
}

func TestEnsureAlternationRejectsBadSequences(t *testing.T) {
	tests := []struct {
		name     string
		messages []llm.CompletionMessage
	}{
		{"empty", nil},
		{"system only", []llm.CompletionMessage{llm.NewSystemMessage("hi")}},
		{"ends with assistant", []llm.CompletionMessage{
			llm.NewUserMessage("hi"),
			{Role: llm.RoleAssistant, Content: "hello"},
		}},
		{"starts with assistant", []llm.CompletionMessage{
			{Role: llm.RoleAssistant, Content: "hello"},
			llm.NewUserMessage("hi"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ensureAlternation(tt.messages); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEnsureAlternationKeepsLastCacheControl(t *testing.T) {
	messages := []llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "a", CacheControl: &llm.CacheControl{Type: "ephemeral", TTL: "5m"}},
		{Role: llm.RoleUser, Content: "b", CacheControl: &llm.CacheControl{Type: "ephemeral", TTL: "1h"}},
	}

	_, merged, err := ensureAlternation(messages)
	if err != nil {
		t.Fatalf("ensureAlternation failed: %v", err)
	}
	if merged[0].CacheControl == nil || merged[0].CacheControl.TTL != "1h" {
		t.Errorf("CacheControl = %+v, want TTL from last message", merged[0].CacheControl)
	}
}

func TestValidatePreSend(t *testing.T) {
	valid := []llm.CompletionMessage{
		llm.NewUserMessage("hi"),
		{Role: llm.RoleAssistant, Content: "hello"},
		llm.NewUserMessage("more"),
	}
	if err := validatePreSend(valid); err != nil {
		t.Errorf("valid sequence rejected: %v", err)
	}

	withSystem := []llm.CompletionMessage{llm.NewSystemMessage("x"), llm.NewUserMessage("hi")}
	if err := validatePreSend(withSystem); err == nil {
		t.Error("system message in array should be rejected")
	}
}

func TestExtractStatusCode(t *testing.T) {
	tests := []struct {
		errStr string
		want   int
	}{
		{"request failed with status code: 429 too many requests", 429},
		{"HTTP 503 service unavailable", 503},
		{"status: 401 unauthorized", 401},
		{"something went wrong", 0},
	}

	for _, tt := range tests {
		if got := extractStatusCode(tt.errStr); got != tt.want {
			t.Errorf("extractStatusCode(%q) = %d, want %d", tt.errStr, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want llmerrors.ErrorType
	}{
		{fmt.Errorf("status code: 429 rate limited"), llmerrors.ErrorTypeRateLimit},
		{fmt.Errorf("status code: 401 unauthorized"), llmerrors.ErrorTypeAuth},
		{fmt.Errorf("status code: 500 internal"), llmerrors.ErrorTypeTransient},
		{fmt.Errorf("connection reset by peer"), llmerrors.ErrorTypeTransient},
		{fmt.Errorf("quota exhausted"), llmerrors.ErrorTypeRateLimit},
		{fmt.Errorf("something inexplicable"), llmerrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		got := classifyError(tt.err)
		if got.Type != tt.want {
			t.Errorf("classifyError(%v).Type = %s, want %s", tt.err, got.Type, tt.want)
		}
	}

	if classifyError(nil) != nil {
		t.Error("classifyError(nil) should be nil")
	}

	ctxErr := fmt.Errorf("wrapped: %w", context.Canceled)
	if got := classifyError(ctxErr); got.Type != llmerrors.ErrorTypeTransient {
		t.Errorf("canceled context should classify as transient, got %s", got.Type)
	}
}
