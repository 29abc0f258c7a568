package utils

import (
	"strings"
	"testing"

	"codeswarm/pkg/config"
)

func TestNewTokenCounter(t *testing.T) {
	models := []string{
		config.ModelGPT5Pro,
		config.ModelClaudeSonnet45,
		config.ModelGemini25Pro,
		"totally-unknown-model",
	}

	for _, model := range models {
		tc, err := NewTokenCounter(model)
		if err != nil {
			t.Fatalf("NewTokenCounter(%q) returned error: %v", model, err)
		}
		if tc == nil {
			t.Fatalf("NewTokenCounter(%q) returned nil counter", model)
		}
	}
}

func TestCountTokens(t *testing.T) {
	tc, err := NewTokenCounter(config.ModelGPT4o)
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	if got := tc.CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}

	short := tc.CountTokens("hello world")
	if short < 1 || short > 5 {
		t.Errorf("CountTokens(\"hello world\") = %d, want a small positive count", short)
	}

	long := tc.CountTokens(strings.Repeat("some repeated text ", 100))
	if long <= short {
		t.Errorf("longer text should count more tokens: long=%d short=%d", long, short)
	}
}

func TestCountTokensSimple(t *testing.T) {
	if got := CountTokensSimple("def handler(request):"); got < 1 {
		t.Errorf("CountTokensSimple returned %d, want >= 1", got)
	}
}

func TestValidateTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter(config.ModelGPT4o)
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	if !tc.ValidateTokenLimit("short", 100) {
		t.Error("short text should be within a 100 token limit")
	}
	if tc.ValidateTokenLimit(strings.Repeat("word ", 500), 10) {
		t.Error("long text should exceed a 10 token limit")
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter(config.ModelGPT4o)
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	short := "already short"
	if got := tc.TruncateToTokenLimit(short, 100); got != short {
		t.Errorf("text within limit should be returned unchanged, got %q", got)
	}

	long := strings.Repeat("token budget exceeded ", 200)
	truncated := tc.TruncateToTokenLimit(long, 50)
	if len(truncated) >= len(long) {
		t.Error("over-limit text should be truncated")
	}
	if !strings.HasSuffix(truncated, "...") {
		t.Errorf("truncated text should end with ellipsis, got %q", truncated[len(truncated)-10:])
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"implementation", "implementation"},
		{"run:20260831", "run-20260831"},
		{"a b/c\\d", "a-b-c-d"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeIdentifier(tt.input); got != tt.want {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
