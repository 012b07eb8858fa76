package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendationValidate(t *testing.T) {
	rec := Recommendation{
		ID:               "rec-1",
		Title:            "Add retry logic",
		SourceAnalyzerID: "analyzer-a",
		RawConfidence:    0.9,
	}
	require.NoError(t, rec.Validate())

	bad := rec
	bad.RawConfidence = 1.5
	assert.Error(t, bad.Validate())

	bad = rec
	bad.SourceAnalyzerID = ""
	assert.Error(t, bad.Validate())

	bad = rec
	bad.Title = "   "
	assert.Error(t, bad.Validate())
}

func TestPlanValidate(t *testing.T) {
	plan := Plan{
		ID:       "plan-1",
		Title:    "Add retry logic to ingestion",
		Priority: PriorityMedium,
		Version:  1,
		Status:   PlanActive,
	}
	require.NoError(t, plan.Validate())

	bad := plan
	bad.Version = 0
	assert.Error(t, bad.Validate(), "version starts at 1")

	bad = plan
	bad.Status = PlanStatus("archived")
	assert.Error(t, bad.Validate())

	bad = plan
	bad.Priority = Priority("urgent")
	assert.Error(t, bad.Validate())
}

func TestPlanClone(t *testing.T) {
	plan := &Plan{
		ID:                      "plan-1",
		Title:                   "Original",
		Priority:                PriorityHigh,
		Version:                 3,
		Status:                  PlanActive,
		SourceRecommendationIDs: []string{"rec-1", "rec-2"},
	}

	cp := plan.Clone()
	cp.Title = "Changed"
	cp.SourceRecommendationIDs[0] = "rec-x"

	assert.Equal(t, "Original", plan.Title)
	assert.Equal(t, "rec-1", plan.SourceRecommendationIDs[0], "clone must not share the slice")
}

func TestProposalValidatePerOperation(t *testing.T) {
	draft := &PlanDraft{Title: "New plan", Priority: PriorityMedium}

	tests := []struct {
		name     string
		proposal ModificationProposal
		wantErr  bool
	}{
		{
			name: "valid add",
			proposal: ModificationProposal{
				ID: "prop-1", Op: OpAdd, Draft: draft, Confidence: 0.9,
			},
		},
		{
			name: "add without draft",
			proposal: ModificationProposal{
				ID: "prop-2", Op: OpAdd, Confidence: 0.9,
			},
			wantErr: true,
		},
		{
			name: "add carrying merge payload",
			proposal: ModificationProposal{
				ID: "prop-3", Op: OpAdd, Draft: draft, PlanIDs: []string{"a", "b"}, Confidence: 0.9,
			},
			wantErr: true,
		},
		{
			name: "valid modify",
			proposal: ModificationProposal{
				ID: "prop-4", Op: OpModify, PlanID: "plan-1",
				Patch: &PlanPatch{Title: strPtr("Updated")}, Confidence: 0.5,
			},
		},
		{
			name: "modify with empty patch",
			proposal: ModificationProposal{
				ID: "prop-5", Op: OpModify, PlanID: "plan-1", Patch: &PlanPatch{}, Confidence: 0.5,
			},
			wantErr: true,
		},
		{
			name: "valid delete",
			proposal: ModificationProposal{
				ID: "prop-6", Op: OpDelete, PlanID: "plan-1", Reason: "obsolete", Confidence: 0.6,
			},
		},
		{
			name: "delete without reason",
			proposal: ModificationProposal{
				ID: "prop-7", Op: OpDelete, PlanID: "plan-1", Confidence: 0.6,
			},
			wantErr: true,
		},
		{
			name: "valid merge",
			proposal: ModificationProposal{
				ID: "prop-8", Op: OpMerge, PlanIDs: []string{"plan-1", "plan-2"},
				TargetDraft: draft, Confidence: 0.88,
			},
		},
		{
			name: "merge with one plan",
			proposal: ModificationProposal{
				ID: "prop-9", Op: OpMerge, PlanIDs: []string{"plan-1"}, TargetDraft: draft, Confidence: 0.88,
			},
			wantErr: true,
		},
		{
			name: "confidence out of range",
			proposal: ModificationProposal{
				ID: "prop-10", Op: OpAdd, Draft: draft, Confidence: 1.2,
			},
			wantErr: true,
		},
		{
			name: "unknown operation",
			proposal: ModificationProposal{
				ID: "prop-11", Op: Operation("rename"), Confidence: 0.5,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.proposal.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApprovalRequestValidate(t *testing.T) {
	req := ApprovalRequest{
		ID:    "req-1",
		RunID: "run-1",
		Proposal: ModificationProposal{
			ID: "prop-1", Op: OpAdd,
			Draft:      &PlanDraft{Title: "New plan", Priority: PriorityLow},
			Confidence: 0.4,
		},
		Status:      ApprovalPending,
		RequestedAt: time.Now(),
	}
	require.NoError(t, req.Validate())

	resolved := req
	resolved.Status = ApprovalApproved
	assert.Error(t, resolved.Validate(), "resolved request needs resolved_at")

	now := time.Now()
	resolved.ResolvedAt = &now
	assert.NoError(t, resolved.Validate())
}

func TestPhaseStatusSatisfiesPrerequisite(t *testing.T) {
	assert.True(t, PhaseCompleted.SatisfiesPrerequisite())
	assert.True(t, PhaseSkipped.SatisfiesPrerequisite(), "skipped satisfies prerequisites exactly like completed")
	assert.False(t, PhaseInProgress.SatisfiesPrerequisite())
	assert.False(t, PhaseNeedsRerun.SatisfiesPrerequisite())
	assert.False(t, PhaseFailed.SatisfiesPrerequisite())
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()
	entry := CacheEntry{Key: "k", Value: "v", CreatedAt: now, TTL: time.Hour}

	assert.False(t, entry.Expired(now.Add(30*time.Minute)))
	assert.True(t, entry.Expired(now.Add(2*time.Hour)))

	forever := CacheEntry{Key: "k", Value: "v", CreatedAt: now, TTL: 0}
	assert.False(t, forever.Expired(now.Add(24*365*time.Hour)))
}

func strPtr(s string) *string { return &s }
