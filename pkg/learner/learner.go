// Package learner tracks per-agent generation quality over time and
// derives adaptive confidence weights from it. State lives in JSON
// files under a state directory so it survives restarts.
package learner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeswarm/pkg/config"
	"codeswarm/pkg/logx"
)

const (
	// alpha is the EMA learning rate for score and latency averages.
	alpha = 0.1

	// maxStrategies bounds the stored strategy list.
	maxStrategies = 100

	strategyTaskChars         = 200
	strategyArchitectureChars = 500

	performanceFile = "agent_performance.json"
	strategiesFile  = "successful_strategies.json"
)

// AgentStats is the rolling performance record for one agent role.
type AgentStats struct {
	Qualified    int     `json:"qualified"`
	Total        int     `json:"total"`
	AvgScore     float64 `json:"avg_score"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Accuracy is the fraction of runs at or above the quality threshold.
// 0.5 when there is no history yet.
func (s *AgentStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0.5
	}
	return float64(s.Qualified) / float64(s.Total)
}

// Outcome is one agent's contribution to a finished run.
type Outcome struct {
	Agent      string
	Score      float64
	LatencyMs  int64
	Iterations int
	Code       string
}

// Strategy captures the shape of a run whose average score cleared the
// threshold, for later analysis.
type Strategy struct {
	Timestamp       time.Time          `json:"timestamp"`
	Task            string             `json:"task"`
	AvgScore        float64            `json:"avg_score"`
	AgentScores     map[string]float64 `json:"agent_scores"`
	Agreement       float64            `json:"agreement"`
	TotalIterations int                `json:"total_iterations"`
	Architecture    string             `json:"architecture,omitempty"`
}

type performanceLog struct {
	TotalRuns int                    `json:"total_runs"`
	Agents    map[string]*AgentStats `json:"agents"`
}

// Learner accumulates run outcomes and persists them.
type Learner struct {
	stateDir   string
	threshold  float64
	mu         sync.Mutex
	totalRuns  int
	agents     map[string]*AgentStats
	strategies []Strategy
	logger     *logx.Logger
}

// New opens (or creates) a learner rooted at stateDir. Existing state
// files are loaded; missing files mean a fresh start.
func New(stateDir string, qualityThreshold float64) (*Learner, error) {
	if qualityThreshold <= 0 {
		qualityThreshold = config.DefaultQualityThreshold
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	l := &Learner{
		stateDir:  stateDir,
		threshold: qualityThreshold,
		agents:    defaultAgentStats(),
		logger:    logx.NewLogger("learner"),
	}
	if err := l.load(); err != nil {
		return nil, err
	}

	l.logger.Info("learning engine initialized: %d historical runs, %d strategies", l.totalRuns, len(l.strategies))
	return l, nil
}

func defaultAgentStats() map[string]*AgentStats {
	roles := []string{"architecture", "implementation", "security", "testing", "vision"}
	agents := make(map[string]*AgentStats, len(roles))
	for _, role := range roles {
		agents[role] = &AgentStats{AvgScore: 85.0}
	}
	return agents
}

// LearnFromRun folds a finished run into the stats and, when the
// average score clears the threshold, records the run's strategy.
// Returns the run's average score.
func (l *Learner) LearnFromRun(task string, outcomes []Outcome) (float64, error) {
	if len(outcomes) == 0 {
		return 0, fmt.Errorf("no outcomes to learn from")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalRuns++

	var sum float64
	for _, o := range outcomes {
		stats, ok := l.agents[o.Agent]
		if !ok {
			stats = &AgentStats{AvgScore: 85.0}
			l.agents[o.Agent] = stats
		}

		stats.Total++
		if o.Score >= l.threshold {
			stats.Qualified++
		}
		stats.AvgScore = stats.AvgScore*(1-alpha) + o.Score*alpha
		stats.AvgLatencyMs = stats.AvgLatencyMs*(1-alpha) + float64(o.LatencyMs)*alpha
		sum += o.Score
	}
	avgScore := sum / float64(len(outcomes))

	if err := l.savePerformance(); err != nil {
		return avgScore, err
	}

	if avgScore >= l.threshold {
		l.extractStrategy(task, avgScore, outcomes)
		if err := l.saveStrategies(); err != nil {
			return avgScore, err
		}
	}

	l.logger.Info("learned from run #%d, average score %.1f/100", l.totalRuns, avgScore)
	return avgScore, nil
}

func (l *Learner) extractStrategy(task string, avgScore float64, outcomes []Outcome) {
	scores := make(map[string]float64, len(outcomes))
	raw := make([]float64, 0, len(outcomes))
	totalIterations := 0
	architecture := ""
	for _, o := range outcomes {
		scores[o.Agent] = o.Score
		raw = append(raw, o.Score)
		totalIterations += o.Iterations
		if o.Agent == "architecture" {
			architecture = truncate(o.Code, strategyArchitectureChars)
		}
	}

	l.strategies = append(l.strategies, Strategy{
		Timestamp:       time.Now().UTC(),
		Task:            truncate(task, strategyTaskChars),
		AvgScore:        avgScore,
		AgentScores:     scores,
		Agreement:       Agreement(raw),
		TotalIterations: totalIterations,
		Architecture:    architecture,
	})
	if len(l.strategies) > maxStrategies {
		l.strategies = l.strategies[len(l.strategies)-maxStrategies:]
	}
}

// Agreement measures how much the agents agreed on quality. Low score
// variance means high agreement; normalized by 100 since scores are
// on a 0-100 scale.
func Agreement(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	return 1.0 / (1.0 + variance/100.0)
}

// AdaptiveWeights converts the current run's scores into normalized
// per-agent confidence weights, biased by historical accuracy and
// average score.
func (l *Learner) AdaptiveWeights(currentScores map[string]float64) map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	weights := make(map[string]float64, len(currentScores))
	var total float64
	for agent, score := range currentScores {
		accuracy := 0.5
		avgScore := 85.0
		if stats, ok := l.agents[agent]; ok {
			accuracy = stats.Accuracy()
			avgScore = stats.AvgScore
		}
		w := accuracy * (score / 100.0) * (avgScore / 100.0)
		weights[agent] = w
		total += w
	}

	if total > 0 {
		for agent := range weights {
			weights[agent] /= total
		}
	}
	return weights
}

// Stats returns a copy of the stats for one agent role.
func (l *Learner) Stats(agent string) (AgentStats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats, ok := l.agents[agent]
	if !ok {
		return AgentStats{}, false
	}
	return *stats, true
}

// TotalRuns returns the number of runs learned from.
func (l *Learner) TotalRuns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalRuns
}

// Strategies returns a copy of the stored strategy list, oldest first.
func (l *Learner) Strategies() []Strategy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Strategy{}, l.strategies...)
}

func (l *Learner) load() error {
	perfPath := filepath.Join(l.stateDir, performanceFile)
	if data, err := os.ReadFile(perfPath); err == nil {
		var log performanceLog
		if err := json.Unmarshal(data, &log); err != nil {
			return fmt.Errorf("failed to parse %s: %w", perfPath, err)
		}
		l.totalRuns = log.TotalRuns
		for agent, stats := range log.Agents {
			l.agents[agent] = stats
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", perfPath, err)
	}

	stratPath := filepath.Join(l.stateDir, strategiesFile)
	if data, err := os.ReadFile(stratPath); err == nil {
		if err := json.Unmarshal(data, &l.strategies); err != nil {
			return fmt.Errorf("failed to parse %s: %w", stratPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", stratPath, err)
	}

	return nil
}

func (l *Learner) savePerformance() error {
	data, err := json.MarshalIndent(performanceLog{TotalRuns: l.totalRuns, Agents: l.agents}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal performance log: %w", err)
	}
	path := filepath.Join(l.stateDir, performanceFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (l *Learner) saveStrategies() error {
	data, err := json.MarshalIndent(l.strategies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal strategies: %w", err)
	}
	path := filepath.Join(l.stateDir, strategiesFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
