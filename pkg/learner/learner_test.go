package learner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearnFromRunUpdatesStats(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	require.NoError(t, err)

	avg, err := l.LearnFromRun("build an api", []Outcome{
		{Agent: "architecture", Score: 95, LatencyMs: 2000, Iterations: 1},
		{Agent: "implementation", Score: 85, LatencyMs: 4000, Iterations: 3},
	})
	require.NoError(t, err)
	assert.InDelta(t, 90.0, avg, 0.001)
	assert.Equal(t, 1, l.TotalRuns())

	arch, ok := l.Stats("architecture")
	require.True(t, ok)
	assert.Equal(t, 1, arch.Total)
	assert.Equal(t, 1, arch.Qualified)
	// EMA from the 85.0 seed: 85*0.9 + 95*0.1
	assert.InDelta(t, 86.0, arch.AvgScore, 0.001)
	assert.InDelta(t, 200.0, arch.AvgLatencyMs, 0.001)

	impl, ok := l.Stats("implementation")
	require.True(t, ok)
	assert.Equal(t, 0, impl.Qualified)
	assert.InDelta(t, 85.0, impl.AvgScore, 0.001)
}

func TestLearnFromRunPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, 90)
	require.NoError(t, err)
	_, err = l.LearnFromRun("task", []Outcome{
		{Agent: "architecture", Score: 96, Iterations: 1, Code: "layered design"},
		{Agent: "implementation", Score: 94, Iterations: 2},
	})
	require.NoError(t, err)

	reopened, err := New(dir, 90)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.TotalRuns())

	stats, ok := reopened.Stats("architecture")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Qualified)

	strategies := reopened.Strategies()
	require.Len(t, strategies, 1)
	assert.Equal(t, "task", strategies[0].Task)
	assert.Equal(t, 3, strategies[0].TotalIterations)
	assert.Equal(t, "layered design", strategies[0].Architecture)
}

func TestStrategyOnlyExtractedAboveThreshold(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	require.NoError(t, err)

	_, err = l.LearnFromRun("low run", []Outcome{{Agent: "implementation", Score: 80, Iterations: 2}})
	require.NoError(t, err)
	assert.Empty(t, l.Strategies())

	_, err = l.LearnFromRun("high run", []Outcome{{Agent: "implementation", Score: 95, Iterations: 1}})
	require.NoError(t, err)
	assert.Len(t, l.Strategies(), 1)
}

func TestStrategyListCapped(t *testing.T) {
	l, err := New(t.TempDir(), 50)
	require.NoError(t, err)

	for i := 0; i < maxStrategies+5; i++ {
		_, err := l.LearnFromRun("task", []Outcome{{Agent: "testing", Score: 95, Iterations: 1}})
		require.NoError(t, err)
	}
	assert.Len(t, l.Strategies(), maxStrategies)
}

func TestAgreement(t *testing.T) {
	// Identical scores mean perfect agreement.
	assert.InDelta(t, 1.0, Agreement([]float64{90, 90, 90}), 0.0001)

	// Variance of {80, 100} is 100, so agreement is 1/(1+1).
	assert.InDelta(t, 0.5, Agreement([]float64{80, 100}), 0.0001)

	assert.Equal(t, 0.0, Agreement(nil))
}

func TestAdaptiveWeightsNormalized(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	require.NoError(t, err)

	// Give architecture a strong history and implementation a weak one.
	for i := 0; i < 5; i++ {
		_, err := l.LearnFromRun("task", []Outcome{
			{Agent: "architecture", Score: 96, Iterations: 1},
			{Agent: "implementation", Score: 70, Iterations: 3},
		})
		require.NoError(t, err)
	}

	weights := l.AdaptiveWeights(map[string]float64{
		"architecture":   95,
		"implementation": 95,
	})
	require.Len(t, weights, 2)

	var total float64
	for _, w := range weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 0.0001)
	assert.Greater(t, weights["architecture"], weights["implementation"])
}

func TestAdaptiveWeightsUnknownAgentDefaults(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	require.NoError(t, err)

	weights := l.AdaptiveWeights(map[string]float64{"reviewer": 90})
	require.Len(t, weights, 1)
	assert.False(t, math.IsNaN(weights["reviewer"]))
	assert.InDelta(t, 1.0, weights["reviewer"], 0.0001)
}
