package workflow

import (
	"fmt"
	"strings"

	"codeswarm/pkg/learner"
	"codeswarm/pkg/patterns"
	"codeswarm/pkg/swarm"
)

// synthesisOrder fixes the section order of the combined result.
//
//nolint:gochecknoglobals // Fixed lookup table
var synthesisOrder = []struct {
	role  string
	title string
}{
	{swarm.RoleVision, "Visual Analysis"},
	{swarm.RoleArchitecture, "Architecture"},
	{swarm.RoleImplementation, "Implementation"},
	{swarm.RoleSecurity, "Security Review"},
	{swarm.RoleTesting, "Test Suite"},
}

// synthesize combines the agent outputs into one titled document and
// computes the run's average score.
func (p *Pipeline) synthesize(state *RunState) {
	var b strings.Builder
	fmt.Fprintf(&b, "# CodeSwarm Result\n\nTask: %s\n\n", state.Request.Task)

	var sum float64
	count := 0
	for _, section := range synthesisOrder {
		out := state.Output(section.role)
		if out == nil {
			continue
		}
		fmt.Fprintf(&b, "## %s (%s, score %.1f/100)\n\n", section.title, out.Model, out.Score)
		if out.Code != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", out.Code)
		}
		if out.Reasoning != "" {
			fmt.Fprintf(&b, "%s\n\n", out.Reasoning)
		}
		sum += out.Score
		count++
	}

	if count > 0 {
		state.AvgScore = sum / float64(count)
	}
	fmt.Fprintf(&b, "Average score: %.1f/100\n", state.AvgScore)

	state.Synthesis = b.String()
	p.logger.Info("🧪 Synthesized %d agent outputs, average score %.1f/100", count, state.AvgScore)
}

// persist stores the run as a pattern when it clears the quality gate
// and feeds the outcome to the learner. Both steps are best-effort.
func (p *Pipeline) persist(state *RunState) {
	if p.store != nil {
		impl := state.Output(swarm.RoleImplementation)
		code := ""
		if impl != nil {
			code = impl.Code
		}

		pattern := &patterns.CodePattern{
			Task:     state.Request.Task,
			Code:     code,
			AvgScore: state.AvgScore,
			UserID:   state.Request.UserID,
		}
		for role, out := range state.Outputs {
			pattern.Outputs = append(pattern.Outputs, patterns.AgentOutput{
				Agent:      role,
				Model:      out.Model,
				Score:      out.Score,
				Iterations: out.Iterations,
			})
		}
		for _, parent := range state.Patterns {
			pattern.BuildsOn = append(pattern.BuildsOn, parent.ID)
		}

		id, err := p.store.StoreIfQualified(pattern)
		if err != nil {
			p.logger.Warn("pattern persistence failed: %v", err)
		} else if id != "" {
			state.PatternID = id
			p.logger.Info("💾 Stored pattern %s (builds on %d)", id, len(pattern.BuildsOn))
		}
	}

	if p.learner != nil {
		outcomes := make([]learner.Outcome, 0, len(state.Outputs))
		for role, out := range state.Outputs {
			outcomes = append(outcomes, learner.Outcome{
				Agent:      role,
				Score:      out.Score,
				LatencyMs:  out.Latency.Milliseconds(),
				Iterations: out.Iterations,
				Code:       out.Code,
			})
		}
		if _, err := p.learner.LearnFromRun(state.Request.Task, outcomes); err != nil {
			p.logger.Warn("learning update failed: %v", err)
		}
		state.Weights = p.learner.AdaptiveWeights(state.Scores())
	}
}
