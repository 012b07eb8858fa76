package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordhq/accord/internal/similarity"
	"github.com/accordhq/accord/internal/types"
)

func rec(id, analyzer, title string) types.Recommendation {
	return types.Recommendation{
		ID:               id,
		Title:            title,
		SourceAnalyzerID: analyzer,
		RawConfidence:    0.8,
	}
}

func newTestBuilder(t *testing.T, threshold float64) *Builder {
	t.Helper()
	b, err := NewBuilder(similarity.NewTokenOverlap(), threshold)
	require.NoError(t, err)
	return b
}

func TestNewBuilderValidation(t *testing.T) {
	_, err := NewBuilder(nil, 0.85)
	assert.Error(t, err)

	_, err = NewBuilder(similarity.NewTokenOverlap(), 0)
	assert.Error(t, err)

	_, err = NewBuilder(similarity.NewTokenOverlap(), 1.5)
	assert.Error(t, err)
}

func TestBuildClustersNearDuplicates(t *testing.T) {
	b := newTestBuilder(t, 0.6)

	outputs := [][]types.Recommendation{
		{rec("rec-a1", "alpha", "retry logic network calls")},
		{rec("rec-b1", "beta", "retry logic network requests")},
		{rec("rec-c1", "gamma", "switch documentation generator tooling")},
	}

	result, err := b.Build(outputs, 3)
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	require.Len(t, result.Recommendations, 2)

	top := result.Recommendations[0]
	assert.InDelta(t, 2.0/3.0, top.AgreementRatio, 0.001)
	assert.Equal(t, []string{"rec-a1", "rec-b1"}, top.MemberIDs)
	assert.Equal(t, []string{"alpha", "beta"}, top.SupportingAnalyzers)

	singleton := result.Recommendations[1]
	assert.InDelta(t, 1.0/3.0, singleton.AgreementRatio, 0.001)
	assert.Equal(t, []string{"rec-c1"}, singleton.MemberIDs)
}

func TestBuildChosenTextLongestWins(t *testing.T) {
	b := newTestBuilder(t, 0.5)

	outputs := [][]types.Recommendation{
		{rec("rec-a1", "alpha", "retry logic network calls")},
		{rec("rec-b1", "beta", "retry logic network calls upstream")},
	}

	result, err := b.Build(outputs, 2)
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "retry logic network calls upstream", result.Recommendations[0].ChosenText)
}

func TestBuildChosenTextTieBreaksByLowestID(t *testing.T) {
	b := newTestBuilder(t, 0.5)

	// Same length texts, different IDs.
	outputs := [][]types.Recommendation{
		{rec("rec-b", "beta", "retry logic network calls")},
		{rec("rec-a", "alpha", "logic retry network calls")},
	}

	result, err := b.Build(outputs, 2)
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "logic retry network calls", result.Recommendations[0].ChosenText,
		"tie on length must resolve to the lowest member ID")
}

func TestBuildDeterministicAcrossInputOrder(t *testing.T) {
	b := newTestBuilder(t, 0.5)

	a := rec("rec-a", "alpha", "retry logic network calls")
	c := rec("rec-b", "beta", "retry logic network requests")
	d := rec("rec-c", "gamma", "rotate signing keys quarterly")

	first, err := b.Build([][]types.Recommendation{{a}, {c}, {d}}, 3)
	require.NoError(t, err)
	second, err := b.Build([][]types.Recommendation{{d}, {c}, {a}}, 3)
	require.NoError(t, err)

	require.Equal(t, len(first.Recommendations), len(second.Recommendations))
	for i := range first.Recommendations {
		assert.Equal(t, first.Recommendations[i], second.Recommendations[i])
	}
}

func TestBuildTransitiveMerge(t *testing.T) {
	// a~b and b~c above threshold should merge all three even when
	// a and c alone would not meet it.
	b := newTestBuilder(t, 0.45)

	outputs := [][]types.Recommendation{
		{rec("rec-a", "alpha", "cache analyzer outputs disk layer")},
		{rec("rec-b", "beta", "cache analyzer outputs memory layer")},
		{rec("rec-c", "gamma", "cache computed outputs memory layer")},
	}

	result, err := b.Build(outputs, 3)
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 1)
	assert.Len(t, result.Recommendations[0].MemberIDs, 3)
	assert.InDelta(t, 1.0, result.Recommendations[0].AgreementRatio, 0.001)
}

func TestBuildSingleAnalyzerDegradesToPassThrough(t *testing.T) {
	b := newTestBuilder(t, 0.5)

	outputs := [][]types.Recommendation{
		{
			rec("rec-a1", "alpha", "retry logic network calls"),
			rec("rec-a2", "alpha", "retry logic network requests"),
		},
	}

	result, err := b.Build(outputs, 3)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	// Pass-through: no clustering even though the two would merge.
	require.Len(t, result.Recommendations, 2)
	for _, cr := range result.Recommendations {
		assert.Len(t, cr.MemberIDs, 1)
		assert.InDelta(t, 1.0/3.0, cr.AgreementRatio, 0.001)
	}
}

func TestBuildEmptyInput(t *testing.T) {
	b := newTestBuilder(t, 0.85)

	result, err := b.Build(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
	assert.Equal(t, 0, result.TotalRecommendations)
}

func TestBuildSortsByAgreementThenSize(t *testing.T) {
	b := newTestBuilder(t, 0.5)

	outputs := [][]types.Recommendation{
		{
			rec("rec-a1", "alpha", "retry logic network calls"),
			rec("rec-a2", "alpha", "rotate signing keys quarterly"),
		},
		{
			rec("rec-b1", "beta", "retry logic network requests"),
		},
		{
			rec("rec-c1", "gamma", "compact database weekly job"),
		},
	}

	result, err := b.Build(outputs, 3)
	require.NoError(t, err)
	require.NotEmpty(t, result.Recommendations)

	// The two-analyzer retry cluster must rank first.
	assert.InDelta(t, 2.0/3.0, result.Recommendations[0].AgreementRatio, 0.001)
	for i := 1; i < len(result.Recommendations); i++ {
		assert.GreaterOrEqual(t,
			result.Recommendations[i-1].AgreementRatio,
			result.Recommendations[i].AgreementRatio)
	}
}

func TestExampleScenarioFromThreeAnalyzers(t *testing.T) {
	// 3 analyzers: "Add retry logic", "Implement retries", "Use circuit
	// breaker". The first two cluster, the third is a singleton.
	b, err := NewBuilder(similarity.NewEditDistance(), 0.55)
	require.NoError(t, err)

	outputs := [][]types.Recommendation{
		{rec("rec-1", "alpha", "add retry logic")},
		{rec("rec-2", "beta", "add retries logic")},
		{rec("rec-3", "gamma", "use circuit breaker")},
	}

	result, err := b.Build(outputs, 3)
	require.NoError(t, err)
	require.Len(t, result.Recommendations, 2)
	assert.InDelta(t, 2.0/3.0, result.Recommendations[0].AgreementRatio, 0.001)
	assert.InDelta(t, 1.0/3.0, result.Recommendations[1].AgreementRatio, 0.001)
}
