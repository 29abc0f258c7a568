// Package eval scores generated code on a 0-100 scale and produces
// improvement feedback used to drive regeneration.
package eval

import (
	"context"
	"os"
	"time"

	"codeswarm/pkg/config"
	"codeswarm/pkg/logx"
)

// Request carries one agent output to be scored.
type Request struct {
	Task             string        // Original task description
	Output           string        // Generated code
	Agent            string        // Agent name (architecture, implementation, security, testing)
	Model            string        // Model that produced the output
	PromptTokens     int           // Input tokens reported by the provider
	CompletionTokens int           // Output tokens reported by the provider
	Latency          time.Duration // Wall-clock latency of the generation call
}

// Result is a score plus improvement feedback.
type Result struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Scorer evaluates an agent output.
type Scorer interface {
	Score(ctx context.Context, req Request) (Result, error)
	Name() string
}

// NewScorer selects the scoring backend. A configured endpoint with an
// API key present gets the remote service; otherwise the deterministic
// local scorer is used.
func NewScorer(cfg *config.Config, logger *logx.Logger) Scorer {
	if cfg != nil && cfg.Eval != nil && cfg.Eval.Endpoint != "" {
		apiKey := os.Getenv(config.EnvEvalAPIKey)
		if apiKey != "" {
			return NewRemoteScorer(cfg.Eval.Endpoint, apiKey, cfg.Eval.Timeout(), logger)
		}
		if logger != nil {
			logger.Warn("eval endpoint configured but %s not set, using local scorer", config.EnvEvalAPIKey)
		}
	}
	return NewHeuristicScorer()
}

// ClampScore bounds a score to the 0-100 scale.
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
