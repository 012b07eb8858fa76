package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordhq/accord/internal/editor"
	"github.com/accordhq/accord/internal/storage"
	"github.com/accordhq/accord/internal/storage/sqlite"
	"github.com/accordhq/accord/internal/types"
)

// scriptedReviewer returns canned decisions in call order and records
// the confidence of each request it sees.
type scriptedReviewer struct {
	decisions []Decision
	calls     int
	seen      []float64
}

func (r *scriptedReviewer) Review(ctx context.Context, req *types.ApprovalRequest) (Decision, error) {
	r.seen = append(r.seen, req.Proposal.Confidence)
	d := r.decisions[r.calls%len(r.decisions)]
	r.calls++
	return d, nil
}

// stuckReviewer never answers
type stuckReviewer struct{}

func (r *stuckReviewer) Review(ctx context.Context, req *types.ApprovalRequest) (Decision, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newTestGate(t *testing.T, reviewer Reviewer, timeout time.Duration) (*Gate, *editor.Editor, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ed, err := editor.New(&editor.Config{
		Store:                store,
		AutoApproveThreshold: 0.85,
		RunID:                "run-1",
	})
	require.NoError(t, err)

	gate, err := New(&Config{Store: store, Editor: ed, Reviewer: reviewer, Timeout: timeout})
	require.NoError(t, err)
	return gate, ed, store
}

func stageAdd(t *testing.T, ed *editor.Editor, id, title string, confidence float64) string {
	t.Helper()
	res, err := ed.Apply(context.Background(), &types.ModificationProposal{
		ID:         id,
		Op:         types.OpAdd,
		Confidence: confidence,
		Draft: &types.PlanDraft{
			Title:    title,
			Body:     "details for " + title,
			Priority: types.PriorityMedium,
		},
	})
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.NotEmpty(t, res.RequestID)
	return res.RequestID
}

func TestProcessPendingAppliesApproved(t *testing.T) {
	reviewer := &scriptedReviewer{decisions: []Decision{DecisionApprove}}
	gate, ed, store := newTestGate(t, reviewer, 0)
	ctx := context.Background()

	stageAdd(t, ed, "prop-1", "Add request tracing", 0.6)

	summary, err := gate.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 1, summary.Applied)

	status := types.PlanActive
	plans, err := store.ListPlans(ctx, types.PlanFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Add request tracing", plans[0].Title)

	pending, err := store.ListPendingApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessPendingHighestConfidenceFirst(t *testing.T) {
	reviewer := &scriptedReviewer{decisions: []Decision{DecisionReject}}
	gate, ed, _ := newTestGate(t, reviewer, 0)

	stageAdd(t, ed, "prop-low", "Low confidence plan", 0.2)
	stageAdd(t, ed, "prop-high", "High confidence plan", 0.8)
	stageAdd(t, ed, "prop-mid", "Mid confidence plan", 0.5)

	summary, err := gate.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Rejected)
	assert.Equal(t, []float64{0.8, 0.5, 0.2}, reviewer.seen)
}

func TestProcessPendingScopedToRun(t *testing.T) {
	reviewer := &scriptedReviewer{decisions: []Decision{DecisionApprove}}
	gate, ed, store := newTestGate(t, reviewer, 0)
	ctx := context.Background()

	// A leftover request from an earlier run shares the same store.
	oldEd, err := editor.New(&editor.Config{
		Store:                store,
		AutoApproveThreshold: 0.85,
		RunID:                "run-0",
	})
	require.NoError(t, err)
	staleID := stageAdd(t, oldEd, "prop-stale", "Stale backlog plan", 0.7)

	stageAdd(t, ed, "prop-1", "Add request tracing", 0.6)

	scoped, err := New(&Config{
		Store:    store,
		Editor:   ed,
		Reviewer: reviewer,
		RunID:    "run-1",
	})
	require.NoError(t, err)

	summary, err := scoped.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, []float64{0.6}, reviewer.seen)

	// The other run's request is still pending.
	req, err := store.GetApprovalRequest(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, req.Status)

	// An unscoped gate drains the whole backlog.
	summary, err = gate.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, []float64{0.6, 0.7}, reviewer.seen)
}

func TestProcessPendingRejectLeavesRepositoryUntouched(t *testing.T) {
	reviewer := &scriptedReviewer{decisions: []Decision{DecisionReject}}
	gate, ed, store := newTestGate(t, reviewer, 0)
	ctx := context.Background()

	reqID := stageAdd(t, ed, "prop-1", "Add request tracing", 0.6)

	summary, err := gate.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 0, summary.Applied)

	req, err := store.GetApprovalRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalRejected, req.Status)
	require.NotNil(t, req.ResolvedAt)

	plans, err := store.ListPlans(ctx, types.PlanFilter{})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestProcessPendingTimeoutCountsAsRejection(t *testing.T) {
	gate, ed, store := newTestGate(t, &stuckReviewer{}, 50*time.Millisecond)
	ctx := context.Background()

	reqID := stageAdd(t, ed, "prop-1", "Add request tracing", 0.6)

	summary, err := gate.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TimedOut)
	assert.Equal(t, 0, summary.Applied)

	req, err := store.GetApprovalRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalTimedOut, req.Status)

	plans, err := store.ListPlans(ctx, types.PlanFilter{})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestResolveAppliesApprovedProposal(t *testing.T) {
	gate, ed, store := newTestGate(t, &scriptedReviewer{decisions: []Decision{DecisionReject}}, 0)
	ctx := context.Background()

	reqID := stageAdd(t, ed, "prop-1", "Add request tracing", 0.6)

	res, err := gate.Resolve(ctx, reqID, DecisionApprove)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Applied)

	// Resolving twice fails.
	_, err = gate.Resolve(ctx, reqID, DecisionReject)
	assert.ErrorIs(t, err, ErrRequestResolved)

	plan, err := store.GetPlan(ctx, res.PlanID)
	require.NoError(t, err)
	assert.Equal(t, "Add request tracing", plan.Title)
}

func TestResolveReject(t *testing.T) {
	gate, ed, store := newTestGate(t, &scriptedReviewer{decisions: []Decision{DecisionApprove}}, 0)
	ctx := context.Background()

	reqID := stageAdd(t, ed, "prop-1", "Add request tracing", 0.6)

	res, err := gate.Resolve(ctx, reqID, DecisionReject)
	require.NoError(t, err)
	assert.Nil(t, res)

	req, err := store.GetApprovalRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalRejected, req.Status)
}
