package similarity

import (
	"strings"
)

// EditDistance scores texts by normalized Levenshtein distance over
// lowercased, whitespace-collapsed runes. More sensitive to word order
// than TokenOverlap; useful when analyzers emit near-verbatim phrasing.
type EditDistance struct{}

// NewEditDistance returns an edit-distance scorer.
func NewEditDistance() *EditDistance {
	return &EditDistance{}
}

// Name returns the metric identifier.
func (s *EditDistance) Name() string { return "edit_distance" }

// Score returns 1 - distance/maxLen over normalized rune slices.
func (s *EditDistance) Score(a, b string) float64 {
	ra := []rune(normalize(a))
	rb := []rune(normalize(b))

	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	dist := levenshtein(ra, rb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// levenshtein computes edit distance with a two-row rolling buffer.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
