// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"time"
)

// RunInfoProvider supplies the labels that tie an LLM request to the
// pipeline run it belongs to.
type RunInfoProvider interface {
	// GetRunID returns the current generation run ID.
	GetRunID() string
	// GetAgent returns the role name of the agent issuing the request.
	GetAgent() string
	// GetStage returns the pipeline stage currently executing.
	GetStage() string
}

// StaticRunInfo is a fixed-label RunInfoProvider for callers outside a
// pipeline run.
type StaticRunInfo struct {
	RunID string
	Agent string
	Stage string
}

// GetRunID returns the fixed run ID.
func (s StaticRunInfo) GetRunID() string { return s.RunID }

// GetAgent returns the fixed agent name.
func (s StaticRunInfo) GetAgent() string { return s.Agent }

// GetStage returns the fixed stage name.
func (s StaticRunInfo) GetStage() string { return s.Stage }

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, runID, agent, stage string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncThrottle increments the throttle counter for rate limiting events.
	IncThrottle(model, reason string)

	// ObserveQueueWait records time spent waiting for rate limit availability.
	ObserveQueueWait(model string, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
	// No-op
}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {
	// No-op
}

// ObserveQueueWait does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {
	// No-op
}
