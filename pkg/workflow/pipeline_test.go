package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/config"
	"codeswarm/pkg/docs"
	"codeswarm/pkg/eval"
	"codeswarm/pkg/eventlog"
	"codeswarm/pkg/learner"
	"codeswarm/pkg/patterns"
	"codeswarm/pkg/swarm"
)

type stubClient struct {
	model    string
	response string
	requests []llm.CompletionRequest
}

func (c *stubClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.requests = append(c.requests, req)
	return llm.CompletionResponse{
		Content:    c.response,
		StopReason: "end_turn",
		Usage:      llm.Usage{PromptTokens: 120, CompletionTokens: 80},
	}, nil
}

func (c *stubClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Content: resp.Content}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (c *stubClient) GetModelName() string { return c.model }

type fixedScorer struct {
	score float64
}

func (s *fixedScorer) Name() string { return "fixed" }

func (s *fixedScorer) Score(_ context.Context, _ eval.Request) (eval.Result, error) {
	return eval.Result{Score: s.score, Feedback: ""}, nil
}

type stubDocsProvider struct{}

func (p *stubDocsProvider) Name() string { return "stub" }

func (p *stubDocsProvider) Search(_ context.Context, _ string, _ int) ([]docs.SearchResult, error) {
	return []docs.SearchResult{
		{Title: "Queues", URL: "https://example.com/queues", Content: "FIFO semantics.", Score: 0.9},
	}, nil
}

func testAgents(score float64) Agents {
	modelCfg := config.AgentModelConfig{Model: "claude-sonnet-4-5", Temperature: 0.7, MaxTokens: 4000}
	wf := &config.WorkflowConfig{QualityThreshold: 90, MaxIterations: 3}
	scorer := &fixedScorer{score: score}

	return Agents{
		Architecture:   swarm.NewArchitectureAgent(&stubClient{model: "claude-sonnet-4-5", response: "```\nlayered service\n```"}, scorer, modelCfg, wf),
		Implementation: swarm.NewImplementationAgent(&stubClient{model: "gpt-5-pro", response: "```python\ndef run(): pass\n```"}, scorer, modelCfg, wf),
		Security:       swarm.NewSecurityAgent(&stubClient{model: "claude-opus-4-1", response: "```python\ndef run_hardened(): pass\n```"}, scorer, modelCfg, wf),
		Testing:        swarm.NewTestingAgent(&stubClient{model: "gemini-2.5-pro", response: "```python\ndef test_run(): pass\n```"}, scorer, modelCfg, wf),
	}
}

func newTestPipeline(t *testing.T, score float64) (*Pipeline, *patterns.Store, *learner.Learner, string) {
	t.Helper()

	store, err := patterns.NewStore(filepath.Join(t.TempDir(), "patterns.db"), 90)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l, err := learner.New(t.TempDir(), 90)
	require.NoError(t, err)

	logDir := t.TempDir()
	events, err := eventlog.NewWriter(logDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	docsService := docs.NewServiceWithProvider(&stubDocsProvider{}, 5)

	wf := &config.WorkflowConfig{QualityThreshold: 90, MaxIterations: 3, RetrievalLimit: 5}
	return New(testAgents(score), store, docsService, l, events, wf), store, l, logDir
}

func TestRunHappyPath(t *testing.T) {
	p, _, l, logDir := newTestPipeline(t, 95)

	state, err := p.Run(context.Background(), Request{Task: "implement a message queue", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, StageDone, state.Stage)
	assert.Equal(t, swarm.TaskGeneral, state.TaskType)

	for _, role := range []string{swarm.RoleArchitecture, swarm.RoleImplementation, swarm.RoleSecurity, swarm.RoleTesting} {
		out := state.Output(role)
		require.NotNil(t, out, role)
		assert.Equal(t, 95.0, out.Score)
	}
	assert.Nil(t, state.Output(swarm.RoleVision))

	assert.InDelta(t, 95.0, state.AvgScore, 0.001)
	assert.Contains(t, state.Synthesis, "## Architecture")
	assert.Contains(t, state.Synthesis, "## Implementation")
	assert.Contains(t, state.Synthesis, "Average score: 95.0/100")

	require.NotNil(t, state.Docs)
	assert.Contains(t, state.Docs.Context, "### Queues")

	assert.True(t, strings.HasPrefix(state.PatternID, "pattern_"))
	assert.Equal(t, 1, l.TotalRuns())

	var total float64
	for _, w := range state.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 0.001)

	files, err := eventlog.ListLogFiles(logDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	events, err := eventlog.ReadEvents(files[0])
	require.NoError(t, err)

	types := make(map[string]int)
	for _, e := range events {
		assert.Equal(t, state.RunID, e.RunID)
		types[e.Type]++
	}
	assert.Equal(t, 1, types[eventlog.TypeRunStarted])
	assert.Equal(t, 1, types[eventlog.TypeRunFinished])
	assert.GreaterOrEqual(t, types[eventlog.TypeTransition], 6)
}

func TestRunBelowThresholdNotPersisted(t *testing.T) {
	p, store, _, _ := newTestPipeline(t, 80)

	state, err := p.Run(context.Background(), Request{Task: "implement a message queue"})
	require.NoError(t, err)

	assert.Equal(t, StageDone, state.Stage)
	assert.Empty(t, state.PatternID)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunWithVisionStage(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, 95)
	p.agents.Vision = swarm.NewVisionAgent(
		&stubClient{model: "gemini-2.5-flash", response: "Two column layout with a header."},
		config.AgentModelConfig{Model: "gemini-2.5-flash", MaxTokens: 2000},
	)

	imagePath := filepath.Join(t.TempDir(), "mockup.png")
	require.NoError(t, os.WriteFile(imagePath, []byte{0x89, 0x50, 0x4e, 0x47}, 0o644))

	state, err := p.Run(context.Background(), Request{Task: "build this landing page", ImagePath: imagePath})
	require.NoError(t, err)

	assert.Equal(t, StageDone, state.Stage)
	vision := state.Output(swarm.RoleVision)
	require.NotNil(t, vision)
	assert.Contains(t, vision.Code, "Two column layout")
	assert.Contains(t, state.Synthesis, "## Visual Analysis")
}

func TestRunWithoutOptionalServices(t *testing.T) {
	p := New(testAgents(95), nil, nil, nil, nil, &config.WorkflowConfig{QualityThreshold: 90, MaxIterations: 3})

	state, err := p.Run(context.Background(), Request{Task: "implement a parser"})
	require.NoError(t, err)

	assert.Equal(t, StageDone, state.Stage)
	assert.Empty(t, state.PatternID)
	assert.Nil(t, state.Docs)
}

func TestRunRejectsEmptyTask(t *testing.T) {
	p := New(testAgents(95), nil, nil, nil, nil, nil)

	_, err := p.Run(context.Background(), Request{Task: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task cannot be empty")
}

func TestRunHonorsCancellation(t *testing.T) {
	p := New(testAgents(95), nil, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := p.Run(ctx, Request{Task: "implement a parser"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageError, state.Stage)
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		valid    bool
	}{
		{StageRetrieve, StageDocs, true},
		{StageDocs, StageVision, true},
		{StageDocs, StageArchitecture, true},
		{StageVision, StageArchitecture, true},
		{StageArchitecture, StageGeneration, true},
		{StageGeneration, StageTesting, true},
		{StagePersist, StageDone, true},
		{StageRetrieve, StageArchitecture, false},
		{StageDone, StageRetrieve, false},
		{StageArchitecture, StageError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidTransition(tt.from, tt.to))
		})
	}
}
