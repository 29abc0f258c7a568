package demo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeswarm/pkg/output"
)

func TestDefaultScenario(t *testing.T) {
	s := DefaultScenario()
	require.NoError(t, s.Validate())
	require.Len(t, s.Requests, 3)

	assert.Equal(t, []float64{93.5, 95.5, 97.2}, []float64{
		s.Requests[0].AvgScore, s.Requests[1].AvgScore, s.Requests[2].AvgScore,
	})
	assert.Equal(t, []int{0, 1, 2}, []int{
		s.Requests[0].PatternsFound, s.Requests[1].PatternsFound, s.Requests[2].PatternsFound,
	})
	assert.Equal(t, []int{12, 8, 5}, []int{
		s.Requests[0].DocsFound, s.Requests[1].DocsFound, s.Requests[2].DocsFound,
	})
	for _, req := range s.Requests {
		assert.Len(t, req.Agents, 4)
		assert.NotEmpty(t, req.Architecture)
		assert.NotEmpty(t, req.Implementation)
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
title: TEST DEMO
requests:
  - task: Build a widget service
    avg_score: 91.0
    patterns_found: 1
    docs_found: 3
    architecture: "# Plan"
    implementation: "def widget(): ..."
    agents:
      - agent: architecture
        model: claude-sonnet-4-5
        score: 91.0
`), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "TEST DEMO", s.Title)
	require.Len(t, s.Requests, 1)
	assert.Equal(t, "Build a widget service", s.Requests[0].Task)
	assert.Equal(t, 91.0, s.Requests[0].Agents[0].Score)
}

func TestLoadScenarioRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: EMPTY\nrequests: []\n"), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no requests")
}

func TestRunnerFastModeWritesArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	writer := output.NewWriter(baseDir)

	var buf bytes.Buffer
	r := NewRunner(DefaultScenario(), writer, true)
	r.out = &buf

	require.NoError(t, r.Run())

	text := buf.String()
	assert.Contains(t, text, "REQUEST #1")
	assert.Contains(t, text, "REQUEST #3")
	assert.Contains(t, text, "cold start")
	assert.Contains(t, text, "BUILDS_ON")
	assert.Contains(t, text, "DEMO SUMMARY")
	// Fast mode never blocks on input.
	assert.NotContains(t, text, "Press ENTER")

	demoDirs, err := filepath.Glob(filepath.Join(baseDir, "demo_output", "demo_*"))
	require.NoError(t, err)
	require.Len(t, demoDirs, 1)

	for i := 1; i <= 3; i++ {
		reqDir := filepath.Join(demoDirs[0], fmt.Sprintf("request_%02d", i))
		_, err = os.Stat(filepath.Join(reqDir, "architecture.md"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(reqDir, "implementation.py"))
		assert.NoError(t, err)

		data, readErr := os.ReadFile(filepath.Join(reqDir, "results.json"))
		require.NoError(t, readErr)
		var results map[string]any
		require.NoError(t, json.Unmarshal(data, &results))
		assert.Equal(t, float64(i), results["request_num"])
	}
}

func TestRunnerWithoutWriter(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(DefaultScenario(), nil, true)
	r.out = &buf

	require.NoError(t, r.Run())
	assert.NotContains(t, buf.String(), "Artifacts saved")
}
