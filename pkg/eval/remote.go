package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeswarm/pkg/agent/middleware/retry"
	"codeswarm/pkg/logx"
)

// RemoteScorer submits outputs to an external evaluation service over
// HTTP JSON. Transient failures follow the same retry policy as model
// provider calls.
type RemoteScorer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	policy     *retry.Policy
	logger     *logx.Logger
}

// NewRemoteScorer creates a scorer for the given service endpoint.
func NewRemoteScorer(endpoint, apiKey string, timeout time.Duration, logger *logx.Logger) *RemoteScorer {
	if logger == nil {
		logger = logx.NewLogger("eval")
	}
	return &RemoteScorer{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.NewPolicy(retry.DefaultConfig, nil),
		logger:     logger,
	}
}

// Name returns the scorer name.
func (s *RemoteScorer) Name() string {
	return "remote"
}

// scoreRequest is the wire format sent to the evaluation service.
type scoreRequest struct {
	Task             string `json:"task"`
	Output           string `json:"output"`
	Agent            string `json:"agent"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	LatencyMs        int64  `json:"latency_ms"`
}

// Score posts the output for evaluation and returns the service's
// score and feedback. The score is clamped to the 0-100 scale.
func (s *RemoteScorer) Score(ctx context.Context, req Request) (Result, error) {
	payload, err := json.Marshal(scoreRequest{
		Task:             req.Task,
		Output:           req.Output,
		Agent:            req.Agent,
		Model:            req.Model,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		LatencyMs:        req.Latency.Milliseconds(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal score request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.policy.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.policy.CalculateDelay(attempt, lastErr)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return Result{}, fmt.Errorf("score retry cancelled: %w", ctx.Err())
				case <-time.After(delay):
				}
			}
			s.logger.Debug("retrying evaluation request (attempt %d/%d)", attempt, s.policy.Config.MaxAttempts)
		}

		result, err := s.doScore(ctx, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !s.policy.ShouldRetry(err) {
			break
		}
	}
	return Result{}, fmt.Errorf("evaluation service failed: %w", lastErr)
}

func (s *RemoteScorer) doScore(ctx context.Context, payload []byte) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/score", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("evaluation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if unmarshalErr := json.Unmarshal(body, &result); unmarshalErr != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", unmarshalErr)
	}
	result.Score = ClampScore(result.Score)
	return result, nil
}
