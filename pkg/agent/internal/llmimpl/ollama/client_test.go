package ollama

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ollama/ollama/api"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/agent/llmerrors"
)

func TestConvertMessagesToOllama(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("stay local"),
		llm.NewUserMessage("hello"),
		{Role: llm.RoleAssistant, Content: "hi"},
		llm.NewUserMessage("more"),
	}

	result, err := convertMessagesToOllama(messages, nil)
	if err != nil {
		t.Fatalf("convertMessagesToOllama failed: %v", err)
	}
	if len(result) != 4 {
		t.Fatalf("len(result) = %d, want 4", len(result))
	}
	// Ollama accepts system messages inline, unlike Anthropic.
	if result[0].Role != "system" || result[0].Content != "stay local" {
		t.Errorf("result[0] = %+v", result[0])
	}
	if result[2].Role != "assistant" {
		t.Errorf("result[2].Role = %q", result[2].Role)
	}
}

func TestConvertMessagesToOllamaImages(t *testing.T) {
	messages := []llm.CompletionMessage{llm.NewUserMessage("what is in this sketch")}
	images := []llm.ImageAttachment{{MimeType: "image/png", Data: []byte{1, 2, 3}}}

	result, err := convertMessagesToOllama(messages, images)
	if err != nil {
		t.Fatalf("convertMessagesToOllama failed: %v", err)
	}
	if len(result[0].Images) != 1 || len(result[0].Images[0]) != 3 {
		t.Errorf("images = %+v", result[0].Images)
	}

	bad := []llm.CompletionMessage{
		llm.NewUserMessage("hi"),
		{Role: llm.RoleAssistant, Content: "hello"},
	}
	if _, err := convertMessagesToOllama(bad, images); err == nil {
		t.Error("images on a non-user tail should error")
	}
}

func TestConvertMessagesToOllamaEmpty(t *testing.T) {
	if _, err := convertMessagesToOllama(nil, nil); err == nil {
		t.Error("empty message list should error")
	}
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true, DoneReason: ""}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "abort"}, "abort"},
	}

	for _, tt := range tests {
		if got := getStopReason(&tt.resp); got != tt.want {
			t.Errorf("getStopReason(%+v) = %q, want %q", tt.resp, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want llmerrors.ErrorType
	}{
		{fmt.Errorf("dial tcp 127.0.0.1:11434: connection refused"), llmerrors.ErrorTypeTransient},
		{fmt.Errorf("model qwen2.5-coder:32b not found"), llmerrors.ErrorTypeBadPrompt},
		{fmt.Errorf("context canceled"), llmerrors.ErrorTypeTransient},
		{fmt.Errorf("request timeout"), llmerrors.ErrorTypeTransient},
		{fmt.Errorf("mystery failure"), llmerrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		got := classifyError(tt.err)
		var classified *llmerrors.Error
		if !errors.As(got, &classified) {
			t.Fatalf("classifyError(%v) returned unclassified error %v", tt.err, got)
		}
		if classified.Type != tt.want {
			t.Errorf("classifyError(%v).Type = %s, want %s", tt.err, classified.Type, tt.want)
		}
	}

	if classifyError(nil) != nil {
		t.Error("classifyError(nil) should be nil")
	}
}

func TestNewOllamaClientWithModel(t *testing.T) {
	client := NewOllamaClientWithModel("http://localhost:11434", "qwen2.5-coder:32b")
	if client.GetModelName() != "qwen2.5-coder:32b" {
		t.Errorf("GetModelName = %q", client.GetModelName())
	}
}
