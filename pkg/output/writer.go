// Package output writes generation artifacts to disk: per-agent code
// directories with metadata for real runs, and the request layout the
// scripted demo produces.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeswarm/pkg/swarm"
	"codeswarm/pkg/utils"
)

// agentOrder fixes the directory write order.
//
//nolint:gochecknoglobals // Fixed lookup table
var agentOrder = []string{
	swarm.RoleArchitecture,
	swarm.RoleImplementation,
	swarm.RoleSecurity,
	swarm.RoleTesting,
}

// fileMarkerExtensions are the extensions recognized in "// file.ext"
// or "# file.ext" markers when splitting multi-file output.
//
//nolint:gochecknoglobals // Fixed lookup table
var fileMarkerExtensions = []string{
	".json", ".js", ".ts", ".tsx", ".jsx", ".py", ".html",
	".css", ".md", ".yml", ".yaml", ".env", ".txt",
}

// Writer persists run artifacts under a base directory.
type Writer struct {
	baseDir string
}

// NewWriter creates a writer rooted at baseDir.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// SaveCodeRun writes each agent's output under code_<timestamp>/<agent>/
// with a METADATA.md per agent. Multi-file outputs are split on file
// markers; single outputs get a content-detected extension. Returns
// the run directory and the relative paths written.
func (w *Writer) SaveCodeRun(timestamp string, outputs map[string]*swarm.Output) (string, []string, error) {
	runDir := filepath.Join(w.baseDir, "code_"+utils.SanitizeIdentifier(timestamp))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var saved []string
	for _, agent := range agentOrder {
		out, ok := outputs[agent]
		if !ok || out.Code == "" {
			continue
		}

		agentDir := filepath.Join(runDir, utils.SanitizeIdentifier(agent))
		if err := os.MkdirAll(agentDir, 0755); err != nil {
			return "", nil, fmt.Errorf("failed to create agent directory: %w", err)
		}

		metadata := fmt.Sprintf("# %s Output\n\n**Quality Score:** %.1f/100  \n**Latency:** %dms  \n**Iterations:** %d  \n**Timestamp:** %s  \n",
			strings.ToUpper(agent), out.Score, out.Latency.Milliseconds(), out.Iterations, timestamp)
		if err := os.WriteFile(filepath.Join(agentDir, "METADATA.md"), []byte(metadata), 0644); err != nil {
			return "", nil, fmt.Errorf("failed to write metadata for %s: %w", agent, err)
		}

		files := ExtractFiles(out.Code)
		if len(files) > 0 {
			names := make([]string, 0, len(files))
			for name := range files {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				path := filepath.Join(agentDir, filepath.Clean(name))
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return "", nil, fmt.Errorf("failed to create directory for %s: %w", name, err)
				}
				if err := os.WriteFile(path, []byte(strings.TrimSpace(files[name])+"\n"), 0644); err != nil {
					return "", nil, fmt.Errorf("failed to write %s: %w", name, err)
				}
				saved = append(saved, filepath.Join(agent, name))
			}
			continue
		}

		name := agent + DetectExtension(out.Code, agent)
		if err := os.WriteFile(filepath.Join(agentDir, name), []byte(out.Code), 0644); err != nil {
			return "", nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		saved = append(saved, filepath.Join(agent, name))
	}

	return runDir, saved, nil
}

// ExtractFiles splits multi-file agent output on "// file.ext" or
// "# file.ext" marker lines. An empty map means single-file output.
func ExtractFiles(code string) map[string]string {
	files := make(map[string]string)
	currentFile := ""
	var currentContent []string

	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if isFileMarker(trimmed) {
			if currentFile != "" {
				files[currentFile] = strings.Join(currentContent, "\n")
			}
			currentFile = strings.TrimSpace(strings.TrimLeft(trimmed, "/#"))
			currentContent = nil
			continue
		}
		if currentFile != "" {
			currentContent = append(currentContent, line)
		}
	}
	if currentFile != "" {
		files[currentFile] = strings.Join(currentContent, "\n")
	}

	return files
}

func isFileMarker(line string) bool {
	if !strings.HasPrefix(line, "// ") && !strings.HasPrefix(line, "# ") {
		return false
	}
	for _, ext := range fileMarkerExtensions {
		if strings.Contains(line, ext) {
			return true
		}
	}
	return false
}

// DetectExtension picks a file extension from the output's content.
// Architecture and security reviews are prose, so they stay markdown.
func DetectExtension(code, agent string) string {
	lower := strings.ToLower(code)

	switch agent {
	case swarm.RoleArchitecture, swarm.RoleSecurity:
		return ".md"
	case swarm.RoleTesting:
		if strings.Contains(lower, "pytest") || strings.Contains(lower, "unittest") {
			return ".py"
		}
		if strings.Contains(lower, "jest") || strings.Contains(code, "describe(") {
			return ".test.js"
		}
		return ".py"
	}

	switch {
	case strings.Contains(code, "package.json"), strings.Contains(code, "import React"), strings.Contains(lower, "from react"):
		return ".js"
	case strings.Contains(code, "import ") && strings.Contains(code, "def "):
		return ".py"
	case strings.Contains(code, "const ") || strings.Contains(code, "let "):
		return ".js"
	case strings.Contains(code, "interface ") && strings.Contains(code, ": "):
		return ".ts"
	case strings.Contains(code, "package main"):
		return ".go"
	case strings.Contains(code, "public class"):
		return ".java"
	}
	return ".md"
}

// DemoDir returns (and creates) the demo_output/demo_<timestamp>
// directory for a scripted demo session.
func (w *Writer) DemoDir(timestamp string) (string, error) {
	dir := filepath.Join(w.baseDir, "demo_output", "demo_"+utils.SanitizeIdentifier(timestamp))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create demo directory: %w", err)
	}
	return dir, nil
}

// SaveDemoRequest writes one demo request's artifacts: the
// architecture sketch, the generated implementation, and the scored
// results as JSON.
func (w *Writer) SaveDemoRequest(demoDir string, requestNum int, architecture, implementation string, results any) (string, error) {
	reqDir := filepath.Join(demoDir, fmt.Sprintf("request_%02d", requestNum))
	if err := os.MkdirAll(reqDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create request directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(reqDir, "architecture.md"), []byte(architecture), 0644); err != nil {
		return "", fmt.Errorf("failed to write architecture: %w", err)
	}
	if err := os.WriteFile(filepath.Join(reqDir, "implementation.py"), []byte(implementation), 0644); err != nil {
		return "", fmt.Errorf("failed to write implementation: %w", err)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(reqDir, "results.json"), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}

	return reqDir, nil
}
