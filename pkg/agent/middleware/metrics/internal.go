// Package metrics provides internal metrics tracking for LLM operations.
package metrics

import (
	"sync"
	"time"
)

// InternalRecorder aggregates per-run usage in memory. It backs the status
// command when no Prometheus endpoint is configured.
type InternalRecorder struct {
	runs map[string]*RunMetrics // runID -> aggregated metrics
	mu   sync.RWMutex
}

// RunMetrics represents aggregated usage for a single generation run.
//
//nolint:govet
type RunMetrics struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	TotalCost        float64   `json:"total_cost_usd"`
	RunID            string    `json:"run_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

var (
	internalInstance *InternalRecorder //nolint:gochecknoglobals
	internalOnce     sync.Once         //nolint:gochecknoglobals
)

// NewInternalRecorder returns a singleton internal metrics recorder.
func NewInternalRecorder() *InternalRecorder {
	internalOnce.Do(func() {
		internalInstance = &InternalRecorder{
			runs: make(map[string]*RunMetrics),
		}
	})
	return internalInstance
}

// ObserveRun records token usage and cost against a run.
func (r *InternalRecorder) ObserveRun(
	runID string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
) {
	// Only successful requests contribute to token and cost tracking.
	if !success || runID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	run, exists := r.runs[runID]
	if !exists {
		run = &RunMetrics{
			RunID: runID,
		}
		r.runs[runID] = run
	}

	run.PromptTokens += int64(promptTokens)
	run.CompletionTokens += int64(completionTokens)
	run.TotalTokens = run.PromptTokens + run.CompletionTokens
	run.TotalCost += cost
	run.RequestCount++
	run.LastUpdated = time.Now()
}

// GetRunMetrics returns the aggregated metrics for a specific run.
func (r *InternalRecorder) GetRunMetrics(runID string) *RunMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if run, exists := r.runs[runID]; exists {
		cp := *run
		return &cp
	}
	return nil
}

// GetAllRunMetrics returns metrics for all runs.
func (r *InternalRecorder) GetAllRunMetrics() map[string]*RunMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*RunMetrics, len(r.runs))
	for runID, run := range r.runs {
		cp := *run
		result[runID] = &cp
	}
	return result
}

// ClearRunMetrics removes metrics for a specific run (useful for testing).
func (r *InternalRecorder) ClearRunMetrics(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// Reset clears all metrics (useful for testing).
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = make(map[string]*RunMetrics)
}
