package eval

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeswarm/pkg/agent/middleware/retry"
	"codeswarm/pkg/config"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"negative", -5, 0},
		{"zero", 0, 0},
		{"in range", 92.5, 92.5},
		{"above cap", 103, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClampScore(tt.input))
		})
	}
}

func TestHeuristicScorerMinimalOutput(t *testing.T) {
	scorer := NewHeuristicScorer()

	result, err := scorer.Score(context.Background(), Request{
		Task:   "add two numbers",
		Output: "x = 1",
		Agent:  "implementation",
	})
	require.NoError(t, err)

	assert.Equal(t, 85.0, result.Score)
	assert.Contains(t, result.Feedback, "Provide a more comprehensive implementation")
	assert.Contains(t, result.Feedback, "Missing documentation")
	assert.Contains(t, result.Feedback, "Missing error handling")
	assert.Contains(t, result.Feedback, "Missing tests")
	assert.Contains(t, result.Feedback, "Missing type annotations")
	assert.Contains(t, result.Feedback, "Missing input validation")
	assert.Contains(t, result.Feedback, "Enhance overall completeness")
}

func TestHeuristicScorerSecurityBump(t *testing.T) {
	scorer := NewHeuristicScorer()

	result, err := scorer.Score(context.Background(), Request{
		Output: "x = 1",
		Agent:  "security",
	})
	require.NoError(t, err)

	// Base 85 plus the security agent bump below 95.
	assert.Equal(t, 88.0, result.Score)
}

func TestHeuristicScorerLengthAndIndicators(t *testing.T) {
	scorer := NewHeuristicScorer()

	// Documentation and type annotations present, over 1000 chars but
	// under 2000. No error handling, no checks, no coverage.
	output := "def add(x: int, y: int) -> int:\n    return x + y\n" +
		strings.Repeat("# padding line\n", 70)
	require.Greater(t, len(output), 1000)
	require.Less(t, len(output), 2000)

	result, err := scorer.Score(context.Background(), Request{
		Output: output,
		Agent:  "implementation",
	})
	require.NoError(t, err)

	// 85 base + 5 length + 2 docs + 2 types.
	assert.Equal(t, 94.0, result.Score)
	assert.Contains(t, result.Feedback, "Missing error handling")
	assert.NotContains(t, result.Feedback, "Missing documentation")
	assert.NotContains(t, result.Feedback, "Missing type annotations")
}

func TestHeuristicScorerFullMarks(t *testing.T) {
	scorer := NewHeuristicScorer()

	output := `def divide(x: float, y: float) -> float:
    """Divide x by y."""
    if y == 0:
        raise ValueError("division by zero")
    try:
        return x / y
    except TypeError:
        raise

def test_divide():
    assert divide(6, 2) == 3
` + strings.Repeat("# additional commentary\n", 90)
	require.Greater(t, len(output), 2000)

	result, err := scorer.Score(context.Background(), Request{
		Output: output,
		Agent:  "implementation",
	})
	require.NoError(t, err)

	// 85 + 5 + 3 + 2*5 = 103, clamped.
	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, "Excellent! Code meets all quality standards.", result.Feedback)
}

func fastPolicy(maxAttempts int) *retry.Policy {
	return retry.NewPolicy(retry.Config{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}, nil)
}

func TestRemoteScorerSuccess(t *testing.T) {
	var captured scoreRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		_ = json.NewEncoder(w).Encode(Result{Score: 92.5, Feedback: "solid work"})
	}))
	defer server.Close()

	scorer := NewRemoteScorer(server.URL, "test-key", 5*time.Second, nil)

	result, err := scorer.Score(context.Background(), Request{
		Task:             "build a parser",
		Output:           "def parse(): ...",
		Agent:            "implementation",
		Model:            "gpt-5-pro",
		PromptTokens:     120,
		CompletionTokens: 80,
		Latency:          1500 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, 92.5, result.Score)
	assert.Equal(t, "solid work", result.Feedback)
	assert.Equal(t, "build a parser", captured.Task)
	assert.Equal(t, "implementation", captured.Agent)
	assert.Equal(t, 120, captured.PromptTokens)
	assert.Equal(t, int64(1500), captured.LatencyMs)
}

func TestRemoteScorerClampsScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{Score: 150})
	}))
	defer server.Close()

	scorer := NewRemoteScorer(server.URL, "k", 5*time.Second, nil)

	result, err := scorer.Score(context.Background(), Request{Output: "x"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Score)
}

func TestRemoteScorerRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Result{Score: 91, Feedback: "ok"})
	}))
	defer server.Close()

	scorer := NewRemoteScorer(server.URL, "k", 5*time.Second, nil)
	scorer.policy = fastPolicy(4)

	result, err := scorer.Score(context.Background(), Request{Output: "x"})
	require.NoError(t, err)
	assert.Equal(t, 91.0, result.Score)
	assert.Equal(t, 3, attempts)
}

func TestRemoteScorerDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	scorer := NewRemoteScorer(server.URL, "k", 5*time.Second, nil)
	scorer.policy = fastPolicy(4)

	_, err := scorer.Score(context.Background(), Request{Output: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1, attempts)
}

func TestNewScorerSelection(t *testing.T) {
	local := NewScorer(&config.Config{Eval: &config.EvalConfig{}}, nil)
	assert.Equal(t, "heuristic", local.Name())

	// Endpoint without API key still falls back to the local scorer.
	t.Setenv(config.EnvEvalAPIKey, "")
	noKey := NewScorer(&config.Config{Eval: &config.EvalConfig{Endpoint: "http://eval.local"}}, nil)
	assert.Equal(t, "heuristic", noKey.Name())

	t.Setenv(config.EnvEvalAPIKey, "secret")
	remote := NewScorer(&config.Config{Eval: &config.EvalConfig{Endpoint: "http://eval.local", TimeoutMs: 1000}}, nil)
	assert.Equal(t, "remote", remote.Name())
}
