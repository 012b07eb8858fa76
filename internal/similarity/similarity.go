// Package similarity provides pluggable text similarity scoring for
// recommendation clustering and plan coverage checks.
//
// The consensus builder and the detector only depend on the Scorer
// interface, so token-overlap, edit-distance, or embedding-based
// implementations are swappable without touching their logic.
package similarity

import (
	"strings"
)

// Scorer computes a normalized similarity score between two texts.
type Scorer interface {
	// Score returns a similarity in [0.0, 1.0]: 1.0 for identical
	// texts, 0.0 for completely unrelated ones. Score must be
	// symmetric: Score(a, b) == Score(b, a).
	Score(a, b string) float64

	// Name identifies the metric for logs and status output.
	Name() string
}

// TokenOverlap scores texts by Jaccard similarity over normalized word
// sets, with titles weighted over bodies when both are present.
type TokenOverlap struct{}

// NewTokenOverlap returns the default scorer.
func NewTokenOverlap() *TokenOverlap {
	return &TokenOverlap{}
}

// Name returns the metric identifier.
func (s *TokenOverlap) Name() string { return "token_overlap" }

// Score computes weighted Jaccard similarity. The first line of each
// text is treated as the title and weighted 0.7; the remainder as the
// body, weighted 0.3. Texts without a body are scored on title alone.
func (s *TokenOverlap) Score(a, b string) float64 {
	titleA, bodyA := splitTitle(a)
	titleB, bodyB := splitTitle(b)

	titleScore := jaccard(tokenize(titleA), tokenize(titleB))

	// If titles are very different, the texts are probably different;
	// don't let a boilerplate body drag the score up.
	if titleScore < 0.3 {
		return titleScore
	}

	if bodyA == "" && bodyB == "" {
		return titleScore
	}

	bodyScore := jaccard(tokenize(bodyA), tokenize(bodyB))
	return 0.7*titleScore + 0.3*bodyScore
}

func splitTitle(text string) (title, body string) {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx], strings.TrimSpace(text[idx+1:])
	}
	return text, ""
}

// stopWords are common words excluded from token sets so that filler
// vocabulary does not inflate overlap scores.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"should": true, "would": true, "could": true, "will": true,
	"this": true, "that": true, "these": true, "those": true,
	"use": true, "using": true, "add": true, "implement": true,
}

// tokenize converts text into a set of normalized words, filtering out
// short words and stop words.
func tokenize(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})

	set := make(map[string]bool)
	for _, w := range words {
		if len(w) > 2 && !stopWords[w] {
			set[w] = true
		}
	}
	return set
}

// jaccard computes the Jaccard similarity coefficient between two word
// sets: intersection size over union size.
func jaccard(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range set1 {
		if set2[w] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}
