// Package editor executes plan lifecycle mutations. It is the only
// code path that writes to the plan repository: every applied mutation
// is journaled with a reversible diff, confidence gates decide between
// immediate application and staging for approval, and DELETE is never
// auto-applied regardless of confidence.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/accordhq/accord/internal/storage"
	"github.com/accordhq/accord/internal/types"
)

// ErrInvalidProposal marks proposals rejected locally before any
// mutation: malformed payloads, unknown plan IDs, merges naming
// non-active plans. Never fatal for a run.
var ErrInvalidProposal = errors.New("invalid proposal")

// Editor applies modification proposals against the plan repository
type Editor struct {
	store                storage.Storage
	autoApproveThreshold float64
	runID                string

	// mu serializes Apply calls so MERGE/DELETE/MODIFY cannot
	// interleave and corrupt a plan's version counter. Scope is one
	// proposal, not the whole batch: approval waits happen outside.
	mu sync.Mutex
}

// Config holds editor configuration
type Config struct {
	Store storage.Storage
	// AutoApproveThreshold is the minimum confidence for immediate
	// application (default 0.85)
	AutoApproveThreshold float64
	// RunID attributes journal entries and staged requests to a run
	RunID string
}

// New creates an editor for one run
func New(cfg *Config) (*Editor, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.AutoApproveThreshold <= 0 || cfg.AutoApproveThreshold > 1 {
		return nil, fmt.Errorf("auto-approve threshold must be in (0, 1] (got %.2f)", cfg.AutoApproveThreshold)
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return &Editor{
		store:                cfg.Store,
		autoApproveThreshold: cfg.AutoApproveThreshold,
		runID:                cfg.RunID,
	}, nil
}

// Result reports the outcome of one Apply call
type Result struct {
	// Applied is true when the repository was mutated (or the
	// mutation was already in effect, see NoOp)
	Applied bool `json:"applied"`
	// NoOp is true when the proposal's effect was already present;
	// no version changed and nothing was journaled
	NoOp bool `json:"no_op"`
	// PlanID is the created or mutated plan (the merge target for MERGE)
	PlanID string `json:"plan_id,omitempty"`
	// RequestID is set when the proposal was staged for approval
	RequestID string `json:"request_id,omitempty"`
}

// Apply executes a proposal, honoring the confidence gate. Proposals
// below the threshold (and all DELETE proposals) are staged into an
// ApprovalRequest and return Applied=false.
func (e *Editor) Apply(ctx context.Context, proposal *types.ModificationProposal) (*Result, error) {
	return e.apply(ctx, proposal, false)
}

// ApplyApproved executes a proposal whose approval request was granted.
// The override bypasses the confidence check for this one proposal.
func (e *Editor) ApplyApproved(ctx context.Context, proposal *types.ModificationProposal) (*Result, error) {
	return e.apply(ctx, proposal, true)
}

func (e *Editor) apply(ctx context.Context, proposal *types.ModificationProposal, override bool) (*Result, error) {
	if err := proposal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}

	if !override {
		// DELETE is a hard policy, not a threshold artifact: it always
		// routes through human approval.
		if proposal.Op == types.OpDelete || proposal.Confidence < e.autoApproveThreshold {
			return e.stage(ctx, proposal)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch proposal.Op {
	case types.OpAdd:
		return e.applyAdd(ctx, proposal)
	case types.OpModify:
		return e.applyModify(ctx, proposal)
	case types.OpDelete:
		return e.applyDelete(ctx, proposal)
	case types.OpMerge:
		return e.applyMerge(ctx, proposal)
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidProposal, proposal.Op)
	}
}

// stage creates a pending approval request for the proposal
func (e *Editor) stage(ctx context.Context, proposal *types.ModificationProposal) (*Result, error) {
	req := &types.ApprovalRequest{
		ID:          uuid.New().String(),
		RunID:       e.runID,
		Proposal:    *proposal,
		Status:      types.ApprovalPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := e.store.CreateApprovalRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to stage proposal: %w", err)
	}
	return &Result{Applied: false, RequestID: req.ID}, nil
}

func (e *Editor) applyAdd(ctx context.Context, proposal *types.ModificationProposal) (*Result, error) {
	// Idempotence: an identical active plan means this ADD already
	// took effect (e.g. a resumed run re-submitting proposals).
	status := types.PlanActive
	existing, err := e.store.ListPlans(ctx, types.PlanFilter{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	for _, p := range existing {
		if p.Title == proposal.Draft.Title && p.Body == proposal.Draft.Body {
			return &Result{Applied: true, NoOp: true, PlanID: p.ID}, nil
		}
	}

	now := time.Now().UTC()
	plan := &types.Plan{
		ID:                      uuid.New().String(),
		Title:                   proposal.Draft.Title,
		Body:                    proposal.Draft.Body,
		Priority:                proposal.Draft.Priority,
		Version:                 1,
		Status:                  types.PlanActive,
		CreatedAt:               now,
		UpdatedAt:               now,
		SourceRecommendationIDs: proposal.Draft.SourceRecommendationIDs,
	}

	if err := e.store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	if err := e.journal(ctx, proposal, nil, []*types.Plan{plan}); err != nil {
		// Journaling failed: undo the insert so the repository stays
		// exactly as before the attempt.
		_ = e.store.RemovePlan(ctx, plan.ID)
		return nil, err
	}
	return &Result{Applied: true, PlanID: plan.ID}, nil
}

func (e *Editor) applyModify(ctx context.Context, proposal *types.ModificationProposal) (*Result, error) {
	prior, err := e.store.GetPlan(ctx, proposal.PlanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}

	next := prior.Clone()
	patch := proposal.Patch
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Body != nil {
		next.Body = *patch.Body
	}
	if patch.Priority != nil {
		next.Priority = *patch.Priority
	}
	if patch.SourceRecommendationIDs != nil {
		next.SourceRecommendationIDs = patch.SourceRecommendationIDs
	}

	// Idempotence: a patch that changes nothing leaves the version
	// counter alone.
	if next.Title == prior.Title && next.Body == prior.Body &&
		next.Priority == prior.Priority && equalIDs(next.SourceRecommendationIDs, prior.SourceRecommendationIDs) {
		return &Result{Applied: true, NoOp: true, PlanID: prior.ID}, nil
	}

	next.Version = prior.Version + 1
	next.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdatePlan(ctx, next, prior.Version); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	if err := e.journal(ctx, proposal, []*types.Plan{prior}, []*types.Plan{next}); err != nil {
		_ = e.store.RestorePlan(ctx, prior)
		return nil, err
	}
	return &Result{Applied: true, PlanID: next.ID}, nil
}

func (e *Editor) applyDelete(ctx context.Context, proposal *types.ModificationProposal) (*Result, error) {
	prior, err := e.store.GetPlan(ctx, proposal.PlanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}

	if prior.Status == types.PlanDeleted {
		return &Result{Applied: true, NoOp: true, PlanID: prior.ID}, nil
	}

	// Soft delete: the record is retained with status flipped so the
	// run remains reversible.
	next := prior.Clone()
	next.Status = types.PlanDeleted
	next.Version = prior.Version + 1
	next.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdatePlan(ctx, next, prior.Version); err != nil {
		return nil, fmt.Errorf("failed to delete plan: %w", err)
	}
	if err := e.journal(ctx, proposal, []*types.Plan{prior}, []*types.Plan{next}); err != nil {
		_ = e.store.RestorePlan(ctx, prior)
		return nil, err
	}
	return &Result{Applied: true, PlanID: next.ID}, nil
}

func (e *Editor) applyMerge(ctx context.Context, proposal *types.ModificationProposal) (*Result, error) {
	inputs := make([]*types.Plan, 0, len(proposal.PlanIDs))
	allMerged := true
	for _, id := range proposal.PlanIDs {
		p, err := e.store.GetPlan(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
		}
		if p.Status != types.PlanMerged {
			allMerged = false
		}
		if p.Status == types.PlanDeleted {
			return nil, fmt.Errorf("%w: cannot merge deleted plan %s", ErrInvalidProposal, id)
		}
		inputs = append(inputs, p)
	}

	if allMerged {
		return &Result{Applied: true, NoOp: true}, nil
	}

	now := time.Now().UTC()

	// The merge target aggregates source recommendations from every
	// input on top of the draft's own.
	sourceIDs := proposal.TargetDraft.SourceRecommendationIDs
	for _, p := range inputs {
		sourceIDs = unionIDs(sourceIDs, p.SourceRecommendationIDs)
	}

	target := &types.Plan{
		ID:                      uuid.New().String(),
		Title:                   proposal.TargetDraft.Title,
		Body:                    proposal.TargetDraft.Body,
		Priority:                proposal.TargetDraft.Priority,
		Version:                 1,
		Status:                  types.PlanActive,
		CreatedAt:               now,
		UpdatedAt:               now,
		SourceRecommendationIDs: sourceIDs,
	}

	prior := make([]*types.Plan, 0, len(inputs))
	for _, p := range inputs {
		prior = append(prior, p.Clone())
	}

	if err := e.store.CreatePlan(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to create merge target: %w", err)
	}

	written := []*types.Plan{}
	for _, p := range inputs {
		next := p.Clone()
		next.Status = types.PlanMerged
		next.Version = p.Version + 1
		next.UpdatedAt = now
		if err := e.store.UpdatePlan(ctx, next, p.Version); err != nil {
			// Mid-merge failure: restore everything touched so far and
			// surface the error with the repository unchanged.
			for _, w := range written {
				for _, pr := range prior {
					if pr.ID == w.ID {
						_ = e.store.RestorePlan(ctx, pr)
					}
				}
			}
			_ = e.store.RemovePlan(ctx, target.ID)
			return nil, fmt.Errorf("failed to mark plan %s merged: %w", p.ID, err)
		}
		written = append(written, next)
	}

	newState := append([]*types.Plan{target}, written...)
	if err := e.journal(ctx, proposal, prior, newState); err != nil {
		for _, pr := range prior {
			_ = e.store.RestorePlan(ctx, pr)
		}
		_ = e.store.RemovePlan(ctx, target.ID)
		return nil, err
	}
	return &Result{Applied: true, PlanID: target.ID}, nil
}

func (e *Editor) journal(ctx context.Context, proposal *types.ModificationProposal, prior, next []*types.Plan) error {
	entry := &types.JournalEntry{
		ID:         uuid.New().String(),
		RunID:      e.runID,
		Proposal:   *proposal,
		PriorState: prior,
		NewState:   next,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.AppendJournal(ctx, entry); err != nil {
		return fmt.Errorf("failed to journal mutation: %w", err)
	}
	return nil
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
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
