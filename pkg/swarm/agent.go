package swarm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/config"
	"codeswarm/pkg/eval"
	"codeswarm/pkg/logx"
)

// fallbackScore is assigned when no evaluator is available or scoring
// fails mid-run.
const fallbackScore = 85.0

// baseConfidence is the self-reported confidence attached to every
// generation; scores are the authoritative quality signal.
const baseConfidence = 0.85

// PromptBuilder builds the first-iteration user prompt for a role.
type PromptBuilder func(task string, pc *PromptContext) string

// Agent is one specialized generation agent. It generates with its
// backing model, scores the result, and iterates below-threshold
// outputs with evaluator feedback folded into the prompt.
type Agent struct {
	role          string
	client        llm.LLMClient
	scorer        eval.Scorer
	temperature   float32
	maxTokens     int
	threshold     float64
	maxIterations int
	systemPrompt  string
	buildPrompt   PromptBuilder
	logger        *logx.Logger
}

func newAgent(role string, client llm.LLMClient, scorer eval.Scorer, modelCfg config.AgentModelConfig, wf *config.WorkflowConfig, systemPrompt string, buildPrompt PromptBuilder) *Agent {
	threshold := config.DefaultQualityThreshold
	maxIterations := config.DefaultMaxIterations
	if wf != nil {
		if wf.QualityThreshold > 0 {
			threshold = wf.QualityThreshold
		}
		if wf.MaxIterations > 0 {
			maxIterations = wf.MaxIterations
		}
	}
	return &Agent{
		role:          role,
		client:        client,
		scorer:        scorer,
		temperature:   modelCfg.Temperature,
		maxTokens:     modelCfg.MaxTokens,
		threshold:     threshold,
		maxIterations: maxIterations,
		systemPrompt:  systemPrompt,
		buildPrompt:   buildPrompt,
		logger:        logx.NewLogger(role),
	}
}

// Role returns the agent's role name.
func (a *Agent) Role() string {
	return a.role
}

// Model returns the backing model name.
func (a *Agent) Model() string {
	return a.client.GetModelName()
}

// Execute runs the generation loop: generate, score, and regenerate
// with feedback until the score clears the threshold or iterations run
// out. Returns the best output seen.
func (a *Agent) Execute(ctx context.Context, task string, pc *PromptContext) (*Output, error) {
	if pc == nil {
		pc = &PromptContext{}
	}

	var best *Output
	bestScore := 0.0

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return best, fmt.Errorf("%s agent cancelled: %w", a.role, err)
		}
		a.logger.Info("🐝 Iteration %d/%d", iteration, a.maxIterations)

		userPrompt := a.buildPrompt(task, pc)
		if iteration > 1 {
			userPrompt = a.improvementPrompt(userPrompt, best)
		}

		start := time.Now()
		resp, err := a.client.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.CompletionMessage{
				llm.NewSystemMessage(a.systemPrompt),
				llm.NewUserMessage(userPrompt),
			},
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
		})
		if err != nil {
			if best != nil {
				a.logger.Warn("generation failed on iteration %d, keeping best attempt: %v", iteration, err)
				return best, nil
			}
			return nil, fmt.Errorf("%s generation failed: %w", a.role, err)
		}
		latency := time.Since(start)

		code, reasoning := ParseResponse(resp.Content)
		out := &Output{
			Agent:            a.role,
			Model:            a.client.GetModelName(),
			Code:             code,
			Reasoning:        reasoning,
			Confidence:       baseConfidence,
			Iterations:       iteration,
			Latency:          latency,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}

		if a.scorer == nil {
			out.Score = fallbackScore
			return out, nil
		}

		result, scoreErr := a.scorer.Score(ctx, eval.Request{
			Task:             task,
			Output:           code,
			Agent:            a.role,
			Model:            out.Model,
			PromptTokens:     out.PromptTokens,
			CompletionTokens: out.CompletionTokens,
			Latency:          latency,
		})
		if scoreErr != nil {
			a.logger.Warn("evaluation failed: %v", scoreErr)
			out.Score = fallbackScore
		} else {
			out.Score = result.Score
			out.Feedback = result.Feedback
		}
		a.logger.Info("📊 Score: %.1f/100", out.Score)

		if out.Score > bestScore {
			bestScore = out.Score
			best = out
		}
		if out.Score >= a.threshold {
			a.logger.Info("✅ Quality threshold met (%.1f >= %.1f)", out.Score, a.threshold)
			return out, nil
		}
	}

	a.logger.Info("⏸ Max iterations reached, best score %.1f/100", bestScore)
	return best, nil
}

// improvementPrompt rebuilds the prompt around the previous attempt:
// an excerpt of its code, its score, and the evaluator's feedback.
func (a *Agent) improvementPrompt(basePrompt string, prev *Output) string {
	excerpt := prev.Code
	if len(excerpt) > config.PreviousAttemptExcerpt {
		excerpt = excerpt[:config.PreviousAttemptExcerpt] + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PREVIOUS ATTEMPT (Score: %.1f/100):\n```\n%s\n```\n\n", prev.Score, excerpt)
	fmt.Fprintf(&b, "Your previous code scored %.1f/100, which is below the quality threshold of %.0f.\n\n", prev.Score, a.threshold)
	if prev.Feedback != "" {
		fmt.Fprintf(&b, "Evaluator feedback:\n%s\n", strings.TrimSpace(prev.Feedback))
		b.WriteString("\n")
	}
	b.WriteString(`IMPROVEMENT REQUIRED:
1. Review your previous attempt
2. Identify quality issues (correctness, completeness, security, performance)
3. Generate IMPROVED code that addresses all issues

`)
	b.WriteString(basePrompt)
	return b.String()
}
