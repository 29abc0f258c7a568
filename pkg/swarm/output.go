// Package swarm implements the generation agents: specialized roles
// backed by different models, each running a scored improvement loop
// over a shared task context.
package swarm

import (
	"time"

	"codeswarm/pkg/patterns"
)

// Output is the standardized result of one agent's generation.
type Output struct {
	Agent            string        `json:"agent"`
	Model            string        `json:"model"`
	Code             string        `json:"code"`
	Reasoning        string        `json:"reasoning,omitempty"`
	Confidence       float64       `json:"confidence"`
	Score            float64       `json:"score"`
	Feedback         string        `json:"feedback,omitempty"`
	Iterations       int           `json:"iterations"`
	Latency          time.Duration `json:"latency_ms"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
}

// PromptContext is the shared context agents draw their prompts from:
// retrieved patterns, fetched documentation, and upstream agent outputs.
type PromptContext struct {
	Patterns       []*patterns.CodePattern
	Docs           string
	VisionAnalysis string
	Architecture   string
	Implementation string
	Security       string
}
