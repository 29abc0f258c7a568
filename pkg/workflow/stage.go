// Package workflow drives a generation run through its stages: pattern
// retrieval, documentation fetch, optional vision analysis, the agent
// swarm, synthesis, and persistence.
package workflow

import "fmt"

// Stage is one step of the pipeline state machine.
type Stage string

// Pipeline stages. Generation runs the implementation and security
// agents in parallel; both consume the architecture output.
const (
	StageRetrieve     Stage = "retrieve"
	StageDocs         Stage = "docs"
	StageVision       Stage = "vision"
	StageArchitecture Stage = "architecture"
	StageGeneration   Stage = "generation"
	StageTesting      Stage = "testing"
	StageSynthesis    Stage = "synthesis"
	StagePersist      Stage = "persist"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

func (s Stage) String() string {
	return string(s)
}

// TransitionTable maps each stage to the stages it may move to.
type TransitionTable map[Stage][]Stage

// validTransitions is the pipeline's fixed stage graph. Vision is
// optional: docs may skip straight to architecture.
//
//nolint:gochecknoglobals // Fixed lookup table
var validTransitions = TransitionTable{
	StageRetrieve:     {StageDocs, StageError},
	StageDocs:         {StageVision, StageArchitecture, StageError},
	StageVision:       {StageArchitecture, StageError},
	StageArchitecture: {StageGeneration, StageError},
	StageGeneration:   {StageTesting, StageError},
	StageTesting:      {StageSynthesis, StageError},
	StageSynthesis:    {StagePersist, StageError},
	StagePersist:      {StageDone, StageError},
	StageDone:         {},
	StageError:        {},
}

// ErrInvalidTransition reports an attempt to move between stages the
// table does not connect.
var ErrInvalidTransition = fmt.Errorf("invalid stage transition")

// IsValidTransition reports whether the stage graph connects from to to.
func IsValidTransition(from, to Stage) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
