// Package consensus turns disagreeing analyzer outputs into a single
// deduplicated, voted-on recommendation list.
package consensus

import (
	"fmt"
	"sort"

	"github.com/accordhq/accord/internal/similarity"
	"github.com/accordhq/accord/internal/types"
)

// Builder clusters near-duplicate recommendations from different
// analyzers and produces one consensus list per document.
type Builder struct {
	scorer    similarity.Scorer
	threshold float64
}

// NewBuilder creates a consensus builder. threshold is the minimum
// similarity for two recommendations to join the same cluster.
func NewBuilder(scorer similarity.Scorer, threshold float64) (*Builder, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1] (got %.2f)", threshold)
	}
	return &Builder{scorer: scorer, threshold: threshold}, nil
}

// Result is the outcome of one consensus build
type Result struct {
	// Recommendations is the consensus list, sorted by agreement ratio
	// descending, then cluster size descending, then cluster ID.
	Recommendations []types.ConsensusRecommendation

	// TotalAnalyzers is how many analyzers were queried, including
	// ones that returned nothing. The agreement denominator.
	TotalAnalyzers int

	// TotalRecommendations is the flattened input count.
	TotalRecommendations int

	// Degraded is true when fewer than two analyzer outputs were
	// available and clustering fell back to pass-through.
	Degraded bool
}

// Build flattens the per-analyzer recommendation lists, transitively
// clusters pairs whose similarity meets the threshold, and votes.
//
// Determinism: given identical inputs, Build always produces identical
// output. Clustering visits pairs in a sorted order, the chosen text
// rule is a total order (longest text, ties broken by lowest member
// ID), and cluster IDs derive from member IDs, never map iteration.
func (b *Builder) Build(outputs [][]types.Recommendation, totalAnalyzers int) (*Result, error) {
	if totalAnalyzers < 1 {
		return nil, fmt.Errorf("total analyzers must be at least 1 (got %d)", totalAnalyzers)
	}

	flat := flatten(outputs)
	result := &Result{
		TotalAnalyzers:       totalAnalyzers,
		TotalRecommendations: len(flat),
	}
	if len(flat) == 0 {
		return result, nil
	}

	nonEmpty := 0
	for _, list := range outputs {
		if len(list) > 0 {
			nonEmpty++
		}
	}

	// With fewer than two analyzer outputs there is nothing to vote
	// on: degrade to pass-through, each recommendation its own cluster.
	var clusters [][]int
	if nonEmpty < 2 {
		result.Degraded = true
		for i := range flat {
			clusters = append(clusters, []int{i})
		}
	} else {
		clusters = b.cluster(flat)
	}

	for _, members := range clusters {
		result.Recommendations = append(result.Recommendations, b.vote(flat, members, totalAnalyzers))
	}

	sort.SliceStable(result.Recommendations, func(i, j int) bool {
		a, c := result.Recommendations[i], result.Recommendations[j]
		if a.AgreementRatio != c.AgreementRatio {
			return a.AgreementRatio > c.AgreementRatio
		}
		if len(a.MemberIDs) != len(c.MemberIDs) {
			return len(a.MemberIDs) > len(c.MemberIDs)
		}
		return a.ClusterID < c.ClusterID
	})

	return result, nil
}

// flatten concatenates the analyzer lists and sorts by recommendation
// ID so downstream processing never depends on input arrival order.
func flatten(outputs [][]types.Recommendation) []types.Recommendation {
	var flat []types.Recommendation
	for _, list := range outputs {
		flat = append(flat, list...)
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].ID < flat[j].ID })
	return flat
}

// cluster performs transitive pairwise merging with union-find: any
// pair scoring at or above the threshold lands in the same cluster.
func (b *Builder) cluster(flat []types.Recommendation) [][]int {
	parent := make([]int, len(flat))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			// Attach the higher root to the lower so representative
			// choice stays deterministic.
			if ri < rj {
				parent[rj] = ri
			} else {
				parent[ri] = rj
			}
		}
	}

	for i := 0; i < len(flat); i++ {
		for j := i + 1; j < len(flat); j++ {
			if b.scorer.Score(flat[i].Text(), flat[j].Text()) >= b.threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := range flat {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	clusters := make([][]int, 0, len(roots))
	for _, root := range roots {
		clusters = append(clusters, groups[root])
	}
	return clusters
}

// vote builds one ConsensusRecommendation from a cluster's members.
func (b *Builder) vote(flat []types.Recommendation, members []int, totalAnalyzers int) types.ConsensusRecommendation {
	memberIDs := make([]string, 0, len(members))
	analyzerSet := make(map[string]bool)

	chosen := flat[members[0]]
	for _, idx := range members {
		rec := flat[idx]
		memberIDs = append(memberIDs, rec.ID)
		analyzerSet[rec.SourceAnalyzerID] = true

		// Longest member text wins; ties broken by lowest ID.
		if len(rec.Text()) > len(chosen.Text()) ||
			(len(rec.Text()) == len(chosen.Text()) && rec.ID < chosen.ID) {
			chosen = rec
		}
	}
	sort.Strings(memberIDs)

	analyzers := make([]string, 0, len(analyzerSet))
	for id := range analyzerSet {
		analyzers = append(analyzers, id)
	}
	sort.Strings(analyzers)

	return types.ConsensusRecommendation{
		ClusterID:           "cluster-" + memberIDs[0],
		MemberIDs:           memberIDs,
		ChosenText:          chosen.Text(),
		AgreementRatio:      float64(len(analyzers)) / float64(totalAnalyzers),
		SupportingAnalyzers: analyzers,
	}
}
