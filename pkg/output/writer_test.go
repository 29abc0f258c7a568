package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeswarm/pkg/swarm"
)

func TestDetectExtension(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		agent    string
		expected string
	}{
		{"architecture is markdown", "## Design\nLayered service", swarm.RoleArchitecture, ".md"},
		{"security is markdown", "## Findings", swarm.RoleSecurity, ".md"},
		{"pytest suite", "import pytest\n\ndef test_ok(): ...", swarm.RoleTesting, ".py"},
		{"jest suite", "describe('auth', () => {})", swarm.RoleTesting, ".test.js"},
		{"testing default", "some checks", swarm.RoleTesting, ".py"},
		{"python implementation", "import os\n\ndef main(): ...", swarm.RoleImplementation, ".py"},
		{"react project", "// package.json\n{}\nimport React from 'react'", swarm.RoleImplementation, ".js"},
		{"javascript", "const x = 1", swarm.RoleImplementation, ".js"},
		{"typescript", "interface User { name: string }", swarm.RoleImplementation, ".ts"},
		{"go", "package main\n\nfunc main() {}", swarm.RoleImplementation, ".go"},
		{"java", "public class Main {}", swarm.RoleImplementation, ".java"},
		{"unknown falls back to markdown", "plain text", swarm.RoleImplementation, ".md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectExtension(tt.code, tt.agent))
		})
	}
}

func TestExtractFiles(t *testing.T) {
	code := "// package.json\n{\n  \"name\": \"app\"\n}\n// src/index.js\nconsole.log('hi')\n"
	files := ExtractFiles(code)
	require.Len(t, files, 2)
	assert.Contains(t, files["package.json"], "\"name\": \"app\"")
	assert.Contains(t, files["src/index.js"], "console.log")

	// A plain single-file output has no markers.
	assert.Empty(t, ExtractFiles("def main():\n    pass"))
}

func TestSaveCodeRunSingleFiles(t *testing.T) {
	w := NewWriter(t.TempDir())

	outputs := map[string]*swarm.Output{
		swarm.RoleArchitecture: {
			Agent: swarm.RoleArchitecture, Code: "## Design", Score: 95.5,
			Latency: 1500 * time.Millisecond, Iterations: 1,
		},
		swarm.RoleImplementation: {
			Agent: swarm.RoleImplementation, Code: "import os\n\ndef main(): ...", Score: 92.0,
			Latency: 3 * time.Second, Iterations: 2,
		},
	}

	runDir, saved, err := w.SaveCodeRun("20260831_120000", outputs)
	require.NoError(t, err)
	assert.Contains(t, runDir, "code_20260831_120000")
	assert.ElementsMatch(t, []string{
		filepath.Join("architecture", "architecture.md"),
		filepath.Join("implementation", "implementation.py"),
	}, saved)

	metadata, err := os.ReadFile(filepath.Join(runDir, "architecture", "METADATA.md"))
	require.NoError(t, err)
	assert.Contains(t, string(metadata), "# ARCHITECTURE Output")
	assert.Contains(t, string(metadata), "**Quality Score:** 95.5/100")
	assert.Contains(t, string(metadata), "**Latency:** 1500ms")

	code, err := os.ReadFile(filepath.Join(runDir, "implementation", "implementation.py"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "def main()")
}

func TestSaveCodeRunSplitsMultiFileOutput(t *testing.T) {
	w := NewWriter(t.TempDir())

	outputs := map[string]*swarm.Output{
		swarm.RoleImplementation: {
			Agent: swarm.RoleImplementation,
			Code:  "// package.json\n{\"name\": \"app\"}\n// src/index.js\nconsole.log('hi')",
			Score: 91.0, Iterations: 1,
		},
	}

	runDir, saved, err := w.SaveCodeRun("20260831_130000", outputs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join("implementation", "package.json"),
		filepath.Join("implementation", "src/index.js"),
	}, saved)

	_, err = os.Stat(filepath.Join(runDir, "implementation", "src", "index.js"))
	assert.NoError(t, err)
}

func TestSaveCodeRunSkipsEmptyOutputs(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, saved, err := w.SaveCodeRun("20260831_140000", map[string]*swarm.Output{
		swarm.RoleSecurity: {Agent: swarm.RoleSecurity, Code: "", Score: 90},
	})
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestSaveDemoRequest(t *testing.T) {
	w := NewWriter(t.TempDir())

	demoDir, err := w.DemoDir("20260831_150000")
	require.NoError(t, err)
	assert.Contains(t, demoDir, filepath.Join("demo_output", "demo_20260831_150000"))

	results := map[string]any{"avg_score": 93.5, "patterns_found": 0}
	reqDir, err := w.SaveDemoRequest(demoDir, 1, "## Architecture", "def handler(): ...", results)
	require.NoError(t, err)
	assert.Contains(t, reqDir, "request_01")

	arch, err := os.ReadFile(filepath.Join(reqDir, "architecture.md"))
	require.NoError(t, err)
	assert.Equal(t, "## Architecture", string(arch))

	data, err := os.ReadFile(filepath.Join(reqDir, "results.json"))
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, 93.5, parsed["avg_score"])
}
