// Package patterns provides SQLite-backed storage of successful code
// generation patterns and the links between them, used to ground new
// runs on prior high-scoring work.
package patterns

import "time"

// CodePattern is one stored generation result: the task, the combined
// code of all agents, and the quality it achieved.
type CodePattern struct {
	ID        string        `json:"id"`
	Task      string        `json:"task"`
	Code      string        `json:"code"`
	AvgScore  float64       `json:"avg_score"`
	UserID    string        `json:"user_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Outputs   []AgentOutput `json:"outputs,omitempty"`
	BuildsOn  []string      `json:"builds_on,omitempty"`
}

// AgentOutput records one agent's contribution to a pattern.
type AgentOutput struct {
	Agent      string  `json:"agent"`
	Model      string  `json:"model"`
	Score      float64 `json:"score"`
	Iterations int     `json:"iterations"`
}
