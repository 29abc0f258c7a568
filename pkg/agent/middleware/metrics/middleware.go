// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"time"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/agent/llmerrors"
	"codeswarm/pkg/config"
	"codeswarm/pkg/logx"
	"codeswarm/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers provider-reported usage and falls back to
// tiktoken counting when the provider reports nothing.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	promptTokens = utils.CountTokensSimple(promptText)
	completionTokens = utils.CountTokensSimple(resp.Content)

	return promptTokens, completionTokens
}

// Cost returns the USD cost of a request given the model's per-million-token rates.
// Unknown models cost zero.
func Cost(model string, promptTokens, completionTokens int) float64 {
	info, ok := config.GetModelInfo(model)
	if !ok {
		return 0
	}
	return float64(promptTokens)*info.InputCPM/1e6 + float64(completionTokens)*info.OutputCPM/1e6
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, cost, success/failure rates, and error types.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, runInfo RunInfoProvider, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}
	if runInfo == nil {
		runInfo = StaticRunInfo{}
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			// Complete implementation with metrics
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()

				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorType := ""
				if err != nil {
					errorType = getErrorType(err)
				}

				runID := runInfo.GetRunID()
				agent := runInfo.GetAgent()
				stage := runInfo.GetStage()
				cost := Cost(model, promptTokens, completionTokens)

				recorder.ObserveRequest(
					model,
					runID,
					agent,
					stage,
					promptTokens,
					completionTokens,
					cost,
					err == nil,
					errorType,
					duration,
				)
				NewInternalRecorder().ObserveRun(runID, promptTokens, completionTokens, cost, err == nil)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					totalTokens := promptTokens + completionTokens
					logger.Info("🎯 LLM Request: model=%s run=%s agent=%s stage=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, runID, agent, stage, promptTokens, completionTokens, totalTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			// Stream implementation with metrics
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()

				model := next.GetModelName()

				ch, err := next.Stream(ctx, req)
				duration := time.Since(start)

				// For streaming, only the setup time and success/failure are tracked.
				// Token counting for streams would require consuming the entire stream.
				errorType := ""
				if err != nil {
					errorType = getErrorType(err)
				}

				runID := runInfo.GetRunID()
				agent := runInfo.GetAgent()
				stage := runInfo.GetStage()

				recorder.ObserveRequest(
					model,
					runID,
					agent,
					stage,
					0,
					0,
					0,
					err == nil,
					errorType,
					duration,
				)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("🎯 LLM Stream: model=%s run=%s agent=%s stage=%s tokens=streaming status=%s duration=%dms",
						model, runID, agent, stage, status, duration.Milliseconds())
				}

				return ch, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			// Delegate GetModelName to the next client
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	if err == nil {
		return ""
	}

	if t := llmerrors.TypeOf(err); t != llmerrors.ErrorTypeUnknown {
		return t.String()
	}

	errStr := err.Error()
	switch {
	case errStr == "context deadline exceeded":
		return "timeout"
	case errStr == "context canceled":
		return "canceled"
	default:
		return "unknown"
	}
}
