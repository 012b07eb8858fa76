// Package detect compares a consensus recommendation list against the
// plan repository and proposes lifecycle mutations. All three scans are
// read-only and side-effect-free: they emit ModificationProposal values
// and nothing else.
package detect

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/accordhq/accord/internal/similarity"
	"github.com/accordhq/accord/internal/types"
)

// deleteConfidenceCap bounds obsolescence confidence. Deletion is
// irreversible-feeling, so it must never clear the auto-approve
// threshold no matter what the raw similarity math says.
const deleteConfidenceCap = 0.6

// Detector runs the gap, duplicate, and obsolescence scans
type Detector struct {
	scorer             similarity.Scorer
	coverageThreshold  float64
	duplicateThreshold float64
}

// Config holds detector configuration
type Config struct {
	Scorer similarity.Scorer
	// CoverageThreshold is the minimum overlap for a plan to count as
	// covering a consensus recommendation (default 0.5)
	CoverageThreshold float64
	// DuplicateThreshold is the minimum similarity for two active
	// plans to be proposed for merging (default 0.85)
	DuplicateThreshold float64
}

// New creates a detector
func New(cfg *Config) (*Detector, error) {
	if cfg == nil || cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if cfg.CoverageThreshold <= 0 || cfg.CoverageThreshold > 1 {
		return nil, fmt.Errorf("coverage threshold must be in (0, 1] (got %.2f)", cfg.CoverageThreshold)
	}
	if cfg.DuplicateThreshold <= 0 || cfg.DuplicateThreshold > 1 {
		return nil, fmt.Errorf("duplicate threshold must be in (0, 1] (got %.2f)", cfg.DuplicateThreshold)
	}
	return &Detector{
		scorer:             cfg.Scorer,
		coverageThreshold:  cfg.CoverageThreshold,
		duplicateThreshold: cfg.DuplicateThreshold,
	}, nil
}

// Detect runs all three scans and returns the combined proposals,
// attributed to phaseID. Gaps come first, then duplicates, then
// obsolescence, each scan in a deterministic order.
func (d *Detector) Detect(consensus []types.ConsensusRecommendation, plans []*types.Plan, phaseID string) []types.ModificationProposal {
	active := activePlans(plans)

	var proposals []types.ModificationProposal
	proposals = append(proposals, d.detectGaps(consensus, active, phaseID)...)
	proposals = append(proposals, d.detectDuplicates(active, phaseID)...)
	proposals = append(proposals, d.detectObsolete(consensus, active, phaseID)...)
	return proposals
}

// detectGaps proposes ADD for each consensus recommendation no active
// plan covers. Confidence is the cluster's agreement ratio: the more
// analyzers agreed, the safer the addition.
func (d *Detector) detectGaps(consensus []types.ConsensusRecommendation, active []*types.Plan, phaseID string) []types.ModificationProposal {
	var proposals []types.ModificationProposal
	for _, cr := range consensus {
		covered := false
		for _, plan := range active {
			if d.scorer.Score(cr.ChosenText, plan.Text()) >= d.coverageThreshold {
				covered = true
				break
			}
		}
		if covered {
			continue
		}

		title, body := splitText(cr.ChosenText)
		proposals = append(proposals, types.ModificationProposal{
			ID: uuid.New().String(),
			Op: types.OpAdd,
			Draft: &types.PlanDraft{
				Title:                   title,
				Body:                    body,
				Priority:                priorityForAgreement(cr.AgreementRatio),
				SourceRecommendationIDs: cr.MemberIDs,
			},
			Confidence: cr.AgreementRatio,
			Rationale: fmt.Sprintf("No existing plan covers %q (agreement %.0f%%, %d analyzer(s))",
				title, cr.AgreementRatio*100, len(cr.SupportingAnalyzers)),
			PhaseID: phaseID,
		})
	}
	return proposals
}

// detectDuplicates proposes MERGE for any two active plans whose
// similarity meets the duplicate threshold. Confidence is the
// similarity score itself.
func (d *Detector) detectDuplicates(active []*types.Plan, phaseID string) []types.ModificationProposal {
	var proposals []types.ModificationProposal
	merged := make(map[string]bool)

	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if merged[a.ID] || merged[b.ID] {
				continue
			}

			score := d.scorer.Score(a.Text(), b.Text())
			if score < d.duplicateThreshold {
				continue
			}
			merged[a.ID] = true
			merged[b.ID] = true

			// The merged draft keeps the longer body and unions the
			// source recommendations from both inputs.
			target := a
			if len(b.Text()) > len(a.Text()) {
				target = b
			}
			proposals = append(proposals, types.ModificationProposal{
				ID:      uuid.New().String(),
				Op:      types.OpMerge,
				PlanIDs: []string{a.ID, b.ID},
				TargetDraft: &types.PlanDraft{
					Title:                   target.Title,
					Body:                    target.Body,
					Priority:                higherPriority(a.Priority, b.Priority),
					SourceRecommendationIDs: unionIDs(a.SourceRecommendationIDs, b.SourceRecommendationIDs),
				},
				Confidence: score,
				Rationale: fmt.Sprintf("Plans %s and %s are %.0f%% similar (%s)",
					a.ID, b.ID, score*100, d.scorer.Name()),
				PhaseID: phaseID,
			})
		}
	}
	return proposals
}

// detectObsolete proposes DELETE for active low-priority plans no
// consensus recommendation references in the current run.
func (d *Detector) detectObsolete(consensus []types.ConsensusRecommendation, active []*types.Plan, phaseID string) []types.ModificationProposal {
	var proposals []types.ModificationProposal
	for _, plan := range active {
		if plan.Priority != types.PriorityLow {
			continue
		}

		best := 0.0
		for _, cr := range consensus {
			if score := d.scorer.Score(plan.Text(), cr.ChosenText); score > best {
				best = score
			}
		}
		if best >= d.coverageThreshold {
			continue
		}

		confidence := 1.0 - best
		if confidence > deleteConfidenceCap {
			confidence = deleteConfidenceCap
		}
		proposals = append(proposals, types.ModificationProposal{
			ID:         uuid.New().String(),
			Op:         types.OpDelete,
			PlanID:     plan.ID,
			Reason:     fmt.Sprintf("Low-priority plan with no supporting recommendation this run (best overlap %.0f%%)", best*100),
			Confidence: confidence,
			Rationale: fmt.Sprintf("Plan %s (%q) is low priority and nothing in the current consensus references it",
				plan.ID, plan.Title),
			PhaseID: phaseID,
		})
	}
	return proposals
}

func activePlans(plans []*types.Plan) []*types.Plan {
	var active []*types.Plan
	for _, p := range plans {
		if p.Status == types.PlanActive {
			active = append(active, p)
		}
	}
	return active
}

func splitText(text string) (title, body string) {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+1:])
	}
	return strings.TrimSpace(text), ""
}

// priorityForAgreement maps the vote strength onto a plan priority:
// two-thirds majority or better is high, a third is medium, anything
// weaker (singletons from large analyzer sets) is low.
func priorityForAgreement(ratio float64) types.Priority {
	switch {
	case ratio >= 2.0/3.0:
		return types.PriorityHigh
	case ratio >= 1.0/3.0:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

func higherPriority(a, b types.Priority) types.Priority {
	rank := map[types.Priority]int{
		types.PriorityHigh:   0,
		types.PriorityMedium: 1,
		types.PriorityLow:    2,
	}
	if rank[b] < rank[a] {
		return b
	}
	return a
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range append(append([]string{}, a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
