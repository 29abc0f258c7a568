package swarm

import (
	"strings"

	"codeswarm/pkg/config"
)

// TaskType classifies a request for model selection.
type TaskType string

// Task type classifications.
const (
	TaskWebFrontend TaskType = "web_frontend"
	TaskBackendAPI  TaskType = "backend_api"
	TaskDataScience TaskType = "data_science"
	TaskMobile      TaskType = "mobile"
	TaskDevOps      TaskType = "devops"
	TaskDatabase    TaskType = "database"
	TaskGeneral     TaskType = "general"
)

// taskKeywords maps each task type to the phrases that indicate it.
// Types are checked in the order listed in taskTypeOrder, first match
// wins.
//
//nolint:gochecknoglobals // Fixed classification tables
var (
	taskKeywords = map[TaskType][]string{
		TaskWebFrontend: {
			"website", "web", "html", "css", "react", "vue", "angular",
			"frontend", "ui", "interface", "page", "landing", "portfolio",
			"button", "form", "navbar", "responsive",
		},
		TaskBackendAPI: {
			"api", "backend", "server", "endpoint", "rest", "graphql",
			"microservice", "authentication", "crud",
		},
		TaskDataScience: {
			"machine learning", "ml", "data analysis", "pandas", "numpy",
			"tensorflow", "pytorch", "prediction", "classification",
			"regression", "neural network",
		},
		TaskMobile: {
			"mobile app", "ios", "android", "swift", "kotlin",
			"react native", "flutter", "mobile",
		},
		TaskDevOps: {
			"docker", "kubernetes", "k8s", "ci/cd", "pipeline",
			"terraform", "ansible", "infrastructure", "deployment",
		},
		TaskDatabase: {
			"database", "sql", "postgresql", "mysql", "mongodb",
			"query", "schema", "migration", "orm",
		},
	}

	taskTypeOrder = []TaskType{
		TaskWebFrontend, TaskBackendAPI, TaskDataScience,
		TaskMobile, TaskDevOps, TaskDatabase,
	}

	// modelPreferences orders models per task type, primary first.
	modelPreferences = map[TaskType][]string{
		TaskWebFrontend: {config.ModelGPT5Pro, config.ModelClaudeSonnet45, config.ModelClaudeOpus41},
		TaskBackendAPI:  {config.ModelClaudeOpus41, config.ModelGPT5Pro, config.ModelClaudeSonnet45},
		TaskDataScience: {config.ModelGPT5Pro, config.ModelClaudeOpus41, config.ModelClaudeSonnet45},
		TaskMobile:      {config.ModelGPT5Pro, config.ModelClaudeSonnet45, config.ModelClaudeOpus41},
		TaskDevOps:      {config.ModelClaudeOpus41, config.ModelGPT5Pro, config.ModelClaudeSonnet45},
		TaskDatabase:    {config.ModelClaudeOpus41, config.ModelClaudeSonnet45, config.ModelGPT5Pro},
		TaskGeneral:     {config.ModelClaudeSonnet45, config.ModelGPT5Pro, config.ModelClaudeOpus41},
	}
)

// DetectTaskType classifies task text by keyword, defaulting to
// general.
func DetectTaskType(task string) TaskType {
	taskLower := strings.ToLower(task)
	for _, taskType := range taskTypeOrder {
		for _, keyword := range taskKeywords[taskType] {
			if containsWord(taskLower, keyword) {
				return taskType
			}
		}
	}
	return TaskGeneral
}

// containsWord reports whether phrase appears in text on word
// boundaries. Multi-word phrases use substring matching.
func containsWord(text, phrase string) bool {
	if strings.Contains(phrase, " ") || strings.Contains(phrase, "/") {
		return strings.Contains(text, phrase)
	}
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if word == phrase {
			return true
		}
	}
	return false
}

// ModelSequence returns the ordered model preference list for a task
// type.
func ModelSequence(taskType TaskType) []string {
	if seq, ok := modelPreferences[taskType]; ok {
		return seq
	}
	return modelPreferences[TaskGeneral]
}

// NextModel returns the model to fall back to after currentModel, or
// empty when the sequence is exhausted. An unknown current model
// restarts the sequence.
func NextModel(currentModel string, taskType TaskType) string {
	sequence := ModelSequence(taskType)
	for i, model := range sequence {
		if model == currentModel {
			if i+1 < len(sequence) {
				return sequence[i+1]
			}
			return ""
		}
	}
	if len(sequence) > 0 {
		return sequence[0]
	}
	return ""
}

// ShouldFallback reports whether the agent should switch models:
// iterations exhausted below threshold, a regressing score after two
// or more iterations, or a plateau near the iteration cap.
func ShouldFallback(iterations, maxIterations int, bestScore, threshold, improvement float64) bool {
	if iterations >= maxIterations && bestScore < threshold {
		return true
	}
	if improvement < 0 && iterations >= 2 {
		return true
	}
	if improvement < 1.0 && iterations >= maxIterations-1 && bestScore < threshold {
		return true
	}
	return false
}
