package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecommendationsStrictJSON(t *testing.T) {
	recs, err := parseRecommendations(`[{"title": "Add retries", "body": "Wrap calls", "confidence": 0.9}]`)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Add retries", recs[0].Title)
	assert.Equal(t, 0.9, recs[0].Confidence)
}

func TestParseRecommendationsCodeFence(t *testing.T) {
	input := "```json\n[{\"title\": \"Add retries\", \"body\": \"Wrap calls\", \"confidence\": 0.9}]\n```"
	recs, err := parseRecommendations(input)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Add retries", recs[0].Title)
}

func TestParseRecommendationsSurroundingProse(t *testing.T) {
	input := `Here are my recommendations:

[{"title": "Add retries", "body": "Wrap calls", "confidence": 0.9},
 {"title": "Add metrics", "body": "Instrument handlers", "confidence": 0.7}]

Let me know if you need more detail.`
	recs, err := parseRecommendations(input)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestParseRecommendationsTrailingComma(t *testing.T) {
	recs, err := parseRecommendations(`[{"title": "Add retries", "confidence": 0.9},]`)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestParseRecommendationsEmptyArray(t *testing.T) {
	recs, err := parseRecommendations(`[]`)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseRecommendationsGarbage(t *testing.T) {
	_, err := parseRecommendations(`I could not find anything to recommend.`)
	assert.Error(t, err)
}

func TestNewClaudeValidation(t *testing.T) {
	_, err := NewClaude(nil)
	assert.Error(t, err)

	_, err = NewClaude(&ClaudeConfig{})
	assert.Error(t, err)

	c, err := NewClaude(&ClaudeConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "claude", c.ID())
}
