package workflow

import (
	"time"

	"github.com/google/uuid"

	"codeswarm/pkg/docs"
	"codeswarm/pkg/patterns"
	"codeswarm/pkg/swarm"
)

// Request describes one generation run.
type Request struct {
	Task      string
	ImagePath string
	UserID    string
}

// RunState is the blackboard shared by the stages: each stage reads
// what earlier stages produced and adds its own result.
type RunState struct {
	RunID     string
	Request   Request
	TaskType  swarm.TaskType
	Stage     Stage
	StartedAt time.Time

	Patterns []*patterns.CodePattern
	Docs     *docs.Documentation
	Outputs  map[string]*swarm.Output

	Synthesis string
	AvgScore  float64
	PatternID string
	Weights   map[string]float64

	Err error
}

func newRunState(req Request) *RunState {
	return &RunState{
		RunID:     uuid.New().String(),
		Request:   req,
		TaskType:  swarm.DetectTaskType(req.Task),
		Stage:     StageRetrieve,
		StartedAt: time.Now().UTC(),
		Outputs:   make(map[string]*swarm.Output),
	}
}

// Output returns the recorded output for an agent role, or nil.
func (s *RunState) Output(role string) *swarm.Output {
	return s.Outputs[role]
}

// Scores returns each agent's score keyed by role.
func (s *RunState) Scores() map[string]float64 {
	scores := make(map[string]float64, len(s.Outputs))
	for role, out := range s.Outputs {
		scores[role] = out.Score
	}
	return scores
}

// Duration is the elapsed time since the run started.
func (s *RunState) Duration() time.Duration {
	return time.Since(s.StartedAt)
}
