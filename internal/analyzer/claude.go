package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/accordhq/accord/internal/cost"
	"github.com/accordhq/accord/internal/types"
)

const defaultModel = "claude-sonnet-4-5"

// analysisPrompt asks for strict JSON but the parser below tolerates
// the usual deviations anyway.
const analysisPrompt = `You are a review analyzer. Examine the following document and propose
actionable recommendations.

Respond with a JSON array only, no prose. Each element:
{"title": "<short imperative title>", "body": "<one paragraph of detail>", "confidence": <0.0-1.0>}

Document %s:
---
%s
---`

// ClaudeConfig holds configuration for the Claude-backed analyzer
type ClaudeConfig struct {
	// AnalyzerID distinguishes multiple Claude analyzers (e.g. different
	// models or prompt framings) in consensus attribution
	AnalyzerID string
	APIKey     string
	Model      string
	MaxTokens  int64
	// Tracker receives token usage per call (optional)
	Tracker *cost.Tracker
}

// Claude analyzes documents through the Anthropic API
type Claude struct {
	id        string
	client    anthropic.Client
	model     string
	maxTokens int64
	tracker   *cost.Tracker
}

// NewClaude creates a Claude-backed analyzer
func NewClaude(cfg *ClaudeConfig) (*Claude, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	id := cfg.AnalyzerID
	if id == "" {
		id = "claude"
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Claude{
		id:        id,
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: maxTokens,
		tracker:   cfg.Tracker,
	}, nil
}

// ID returns the analyzer identifier
func (c *Claude) ID() string {
	return c.id
}

// Analyze sends the document to the model and parses the returned
// recommendation list
func (c *Claude) Analyze(ctx context.Context, doc *types.Document) ([]types.Recommendation, error) {
	if c.tracker != nil {
		if ok, reason := c.tracker.CanProceed(); !ok {
			return nil, fmt.Errorf("analyzer %s skipped: %s", c.id, reason)
		}
	}

	prompt := fmt.Sprintf(analysisPrompt, doc.ID, doc.Content)
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	if c.tracker != nil {
		c.tracker.RecordUsage(c.id, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	parsed, err := parseRecommendations(text)
	if err != nil {
		return nil, fmt.Errorf("analyzer %s returned unparseable output: %w", c.id, err)
	}

	recs := make([]types.Recommendation, 0, len(parsed))
	for i, p := range parsed {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		recs = append(recs, types.Recommendation{
			ID:               fmt.Sprintf("%s-%s-%d", c.id, doc.ID, i),
			Title:            p.Title,
			Body:             p.Body,
			SourceAnalyzerID: c.id,
			RawConfidence:    p.Confidence,
		})
	}
	return recs, nil
}

type rawRecommendation struct {
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	Confidence float64 `json:"confidence"`
}

var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	arrayRegex     = regexp.MustCompile(`(?s)\[.*\]`)
	trailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
)

// parseRecommendations parses a model response into recommendation
// drafts. Tries strict JSON first, then progressively looser
// strategies: code fence stripping, array extraction from surrounding
// prose, trailing comma removal.
func parseRecommendations(text string) ([]rawRecommendation, error) {
	candidates := []string{strings.TrimSpace(text)}

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := arrayRegex.FindString(text); m != "" {
		candidates = append(candidates, m)
	}
	for _, c := range candidates[:len(candidates):len(candidates)] {
		if cleaned := trailingComma.ReplaceAllString(c, "$1"); cleaned != c {
			candidates = append(candidates, cleaned)
		}
	}

	var lastErr error
	for _, c := range candidates {
		if c == "" {
			continue
		}
		var recs []rawRecommendation
		if err := json.Unmarshal([]byte(c), &recs); err == nil {
			return recs, nil
		} else {
			lastErr = err
		}
	}
	return nil, lastErr
}
