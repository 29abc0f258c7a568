package patterns

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, threshold float64) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "patterns.db"), threshold)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreIfQualifiedRefusesBelowThreshold(t *testing.T) {
	store := newTestStore(t, 90)

	id, err := store.StoreIfQualified(&CodePattern{
		Task:     "build a cache",
		Code:     "class Cache: ...",
		AvgScore: 85,
	})
	require.NoError(t, err)
	assert.Empty(t, id)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStoreAndRetrieve(t *testing.T) {
	store := newTestStore(t, 90)

	id, err := store.StoreIfQualified(&CodePattern{
		Task:     "Create a REST endpoint with authentication",
		Code:     "def handler(): ...",
		AvgScore: 92.5,
		UserID:   "demo",
		Outputs: []AgentOutput{
			{Agent: "architecture", Model: "claude-sonnet-4-5", Score: 93, Iterations: 1},
			{Agent: "implementation", Model: "gpt-5-pro", Score: 92, Iterations: 2},
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "pattern_"))

	results, err := store.Retrieve("Build a REST service", 5, 90)
	require.NoError(t, err)
	require.Len(t, results, 1)

	p := results[0]
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Create a REST endpoint with authentication", p.Task)
	assert.Equal(t, 92.5, p.AvgScore)
	assert.Equal(t, "demo", p.UserID)
	require.Len(t, p.Outputs, 2)
	assert.Equal(t, "architecture", p.Outputs[0].Agent)
	assert.Equal(t, 2, p.Outputs[1].Iterations)
}

func TestRetrieveFiltersAndOrders(t *testing.T) {
	store := newTestStore(t, 50)

	for _, seed := range []struct {
		id    string
		score float64
	}{
		{"pattern_low", 60},
		{"pattern_mid", 92},
		{"pattern_high", 99},
	} {
		_, err := store.StoreIfQualified(&CodePattern{
			ID:       seed.id,
			Task:     "implement a parser combinator library",
			Code:     "...",
			AvgScore: seed.score,
		})
		require.NoError(t, err)
	}

	results, err := store.Retrieve("write a parser", 5, 90)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "pattern_high", results[0].ID)
	assert.Equal(t, "pattern_mid", results[1].ID)

	limited, err := store.Retrieve("write a parser", 1, 90)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "pattern_high", limited[0].ID)
}

func TestRetrieveWithoutKeywords(t *testing.T) {
	store := newTestStore(t, 90)

	results, err := store.Retrieve("a to of the", 5, 90)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBuildsOnLineage(t *testing.T) {
	store := newTestStore(t, 90)

	for _, seed := range []struct {
		id       string
		buildsOn []string
	}{
		{"pattern_root", nil},
		{"pattern_child", []string{"pattern_root"}},
		{"pattern_grandchild", []string{"pattern_child"}},
	} {
		_, err := store.StoreIfQualified(&CodePattern{
			ID:       seed.id,
			Task:     "iterate on the billing service",
			Code:     "...",
			AvgScore: 95,
			BuildsOn: seed.buildsOn,
		})
		require.NoError(t, err)
	}

	lineage, err := store.Lineage("pattern_grandchild")
	require.NoError(t, err)
	assert.Equal(t, []string{"pattern_child", "pattern_root"}, lineage)

	p, err := store.Get("pattern_child")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, []string{"pattern_root"}, p.BuildsOn)
}

func TestStorageCaps(t *testing.T) {
	store := newTestStore(t, 90)

	id, err := store.StoreIfQualified(&CodePattern{
		Task:     strings.Repeat("task ", 200),
		Code:     strings.Repeat("code ", 4000),
		AvgScore: 95,
	})
	require.NoError(t, err)

	p, err := store.Get(id)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Len(t, p.Task, 500)
	assert.Len(t, p.Code, 10000)
}

func TestGetMissingPattern(t *testing.T) {
	store := newTestStore(t, 90)

	p, err := store.Get("pattern_nope")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "filters stop words and short words",
			input:    "Build a REST API for the billing system",
			expected: []string{"build", "rest", "billing", "system"},
		},
		{
			name:     "strips punctuation",
			input:    "parse JSON, then validate!",
			expected: []string{"parse", "json", "then", "validate"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractKeywords(tt.input))
		})
	}
}
