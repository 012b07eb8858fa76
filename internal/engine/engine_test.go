package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordhq/accord/internal/analyzer"
	"github.com/accordhq/accord/internal/approval"
	"github.com/accordhq/accord/internal/config"
	"github.com/accordhq/accord/internal/consensus"
	"github.com/accordhq/accord/internal/phase"
	"github.com/accordhq/accord/internal/similarity"
	"github.com/accordhq/accord/internal/storage"
	"github.com/accordhq/accord/internal/storage/sqlite"
	"github.com/accordhq/accord/internal/types"
)

// staticAnalyzer returns fixed recommendations for every document
type staticAnalyzer struct {
	id     string
	titles []string
	calls  int
	err    error
}

func (s *staticAnalyzer) ID() string { return s.id }

func (s *staticAnalyzer) Analyze(ctx context.Context, doc *types.Document) ([]types.Recommendation, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	recs := make([]types.Recommendation, 0, len(s.titles))
	for i, title := range s.titles {
		recs = append(recs, types.Recommendation{
			ID:               fmt.Sprintf("%s-%s-%d", s.id, doc.ID, i),
			Title:            title,
			Body:             "details about how to " + title,
			SourceAnalyzerID: s.id,
		})
	}
	return recs, nil
}

// approveAll approves every request it reviews
type approveAll struct{}

func (approveAll) Review(ctx context.Context, req *types.ApprovalRequest) (approval.Decision, error) {
	return approval.DecisionApprove, nil
}

func newTestOrchestrator(t *testing.T, reviewer approval.Reviewer) (*Orchestrator, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	o, err := New(&Config{
		Store:     store,
		Cfg:       config.DefaultConfig(),
		Reviewer:  reviewer,
		Documents: []*types.Document{{ID: "doc-1", Content: "service handler source"}},
	})
	require.NoError(t, err)
	return o, store
}

func TestRunOncePipelineAppliesHighAgreementGap(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	// Both analyzers propose the same recommendation: full agreement,
	// confidence 1.0, auto-applied.
	analyzers := []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}},
		&staticAnalyzer{id: "a2", titles: []string{"add retry logic for network calls"}},
	}

	result, err := o.RunOnce(ctx, "run-1", nil, analyzers)
	require.NoError(t, err)

	assert.Equal(t, 3, result.PhasesCompleted)
	assert.Equal(t, 1, result.ProposalsApplied)
	assert.Equal(t, 0, result.ProposalsPendingApproval)
	assert.Empty(t, result.Errors)

	status := types.PlanActive
	plans, err := store.ListPlans(ctx, types.PlanFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, types.PriorityHigh, plans[0].Priority)

	// The mutation is journaled for rollback.
	entries, err := store.GetJournal(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunOnceLowAgreementStagesForApproval(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	// Only one of three analyzers proposes the change: 0.33 < 0.85.
	analyzers := []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"migrate sessions into redis storage"}},
		&staticAnalyzer{id: "a2", titles: []string{"tighten request validation everywhere"}},
		&staticAnalyzer{id: "a3", titles: []string{"instrument slow database queries"}},
	}

	result, err := o.RunOnce(ctx, "run-1", nil, analyzers)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ProposalsApplied)
	assert.Equal(t, 3, result.ProposalsPendingApproval)

	plans, err := store.ListPlans(ctx, types.PlanFilter{})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestRunOnceReviewerResolvesStagedProposals(t *testing.T) {
	o, store := newTestOrchestrator(t, approveAll{})
	ctx := context.Background()

	analyzers := []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"migrate sessions into redis storage"}},
		&staticAnalyzer{id: "a2", titles: []string{"tighten request validation everywhere"}},
	}

	result, err := o.RunOnce(ctx, "run-1", nil, analyzers)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProposalsApplied)
	assert.Equal(t, 0, result.ProposalsPendingApproval)

	status := types.PlanActive
	plans, err := store.ListPlans(ctx, types.PlanFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestRunOnceAnalyzerFailureDegrades(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	analyzers := []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}},
		&staticAnalyzer{id: "broken", err: fmt.Errorf("503 service unavailable")},
	}

	result, err := o.RunOnce(ctx, "run-1", nil, analyzers)
	require.NoError(t, err)

	// The run completes on the surviving analyzer.
	assert.Equal(t, 3, result.PhasesCompleted)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "broken")

	_ = store
}

func TestRunOnceResumesFromCheckpoints(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	first, err := o.RunOnce(ctx, "run-1", nil, []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}},
		&staticAnalyzer{id: "a2", titles: []string{"add retry logic for network calls"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.ProposalsApplied)

	// The same run again: every phase is checkpointed, nothing reruns.
	a := &staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}}
	result, err := o.RunOnce(ctx, "run-1", nil, []analyzer.Analyzer{a})
	require.NoError(t, err)

	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 3, result.PhasesCompleted)
	assert.Equal(t, 0, result.ProposalsApplied)
	assert.Empty(t, result.Errors)

	entries, err := store.GetJournal(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// agreeingOutputs is the serialized analyze result of two analyzers
// proposing the same recommendation.
func agreeingOutputs() [][]types.Recommendation {
	rec := func(analyzerID string) types.Recommendation {
		return types.Recommendation{
			ID:               analyzerID + "-doc-1-0",
			Title:            "add retry logic for network calls",
			Body:             "details about how to add retry logic for network calls",
			SourceAnalyzerID: analyzerID,
		}
	}
	return [][]types.Recommendation{{rec("a1")}, {rec("a2")}}
}

func saveProgress(t *testing.T, store storage.Storage, runID, phaseID string, cp phaseCheckpoint) {
	t.Helper()
	progress, err := json.Marshal(cp)
	require.NoError(t, err)
	require.NoError(t, store.SaveCheckpoint(context.Background(), &types.Checkpoint{
		RunID:     runID,
		PhaseID:   phaseID,
		Progress:  string(progress),
		CreatedAt: time.Now().UTC(),
	}))
}

func TestRunOnceResumesAfterAnalyzeCrash(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	// The run died after analyze was checkpointed. Consensus and
	// reconcile pick up from the rehydrated analyzer outputs.
	outputs := agreeingOutputs()
	saveProgress(t, store, "run-1", PhaseAnalyze,
		phaseCheckpoint{Completed: true, Outputs: outputs, TotalAnalyzers: 2})

	a := &staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}}
	result, err := o.RunOnce(ctx, "run-1", nil, []analyzer.Analyzer{a})
	require.NoError(t, err)

	assert.Equal(t, 0, a.calls)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 3, result.PhasesCompleted)
	assert.Equal(t, 1, result.ProposalsApplied)

	status := types.PlanActive
	plans, err := store.ListPlans(ctx, types.PlanFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestRunOnceResumesAfterConsensusCrash(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	outputs := agreeingOutputs()
	builder, err := consensus.NewBuilder(similarity.NewTokenOverlap(), config.DefaultConfig().SimilarityThreshold)
	require.NoError(t, err)
	res, err := builder.Build(outputs, 2)
	require.NoError(t, err)

	saveProgress(t, store, "run-1", PhaseAnalyze,
		phaseCheckpoint{Completed: true, Outputs: outputs, TotalAnalyzers: 2})
	saveProgress(t, store, "run-1", PhaseConsensus,
		phaseCheckpoint{Completed: true, Consensus: res})

	a := &staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}}
	result, err := o.RunOnce(ctx, "run-1", nil, []analyzer.Analyzer{a})
	require.NoError(t, err)

	// Only reconcile runs, against the rehydrated consensus result.
	assert.Equal(t, 0, a.calls)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 3, result.PhasesCompleted)
	assert.Equal(t, 1, result.ProposalsApplied)

	status := types.PlanActive
	plans, err := store.ListPlans(ctx, types.PlanFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, types.PriorityHigh, plans[0].Priority)
}

func TestRunOnceReplaysCheckpointWithoutIntermediates(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	// A completed marker that carries no analyzer outputs cannot feed
	// consensus, so analyze reruns instead of wedging the run.
	require.NoError(t, store.SaveCheckpoint(ctx, &types.Checkpoint{
		RunID:     "run-1",
		PhaseID:   PhaseAnalyze,
		Progress:  checkpointCompleted,
		CreatedAt: time.Now().UTC(),
	}))

	analyzers := []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}},
		&staticAnalyzer{id: "a2", titles: []string{"add retry logic for network calls"}},
	}
	result, err := o.RunOnce(ctx, "run-1", nil, analyzers)
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 3, result.PhasesCompleted)
	assert.Equal(t, 1, result.ProposalsApplied)
}

func TestRunOnceCancelledContext(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}}
	_, err := o.RunOnce(ctx, "run-1", nil, []analyzer.Analyzer{a})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.calls)
}

func TestRunOnceCustomGraphWithOrderingPhase(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	graph, err := phase.NewGraph([]phase.Def{
		{ID: PhaseAnalyze},
		{ID: PhaseConsensus, Prerequisites: []string{PhaseAnalyze}},
		{ID: PhaseReconcile, Prerequisites: []string{PhaseConsensus}},
		{ID: "report", Prerequisites: []string{PhaseReconcile}},
	})
	require.NoError(t, err)

	analyzers := []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}},
		&staticAnalyzer{id: "a2", titles: []string{"add retry logic for network calls"}},
	}

	result, err := o.RunOnce(ctx, "run-1", graph, analyzers)
	require.NoError(t, err)
	assert.Equal(t, 4, result.PhasesCompleted)
}

func TestRunOnceSecondRunIsIdempotent(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	ctx := context.Background()

	analyzers := []analyzer.Analyzer{
		&staticAnalyzer{id: "a1", titles: []string{"add retry logic for network calls"}},
		&staticAnalyzer{id: "a2", titles: []string{"add retry logic for network calls"}},
	}

	first, err := o.RunOnce(ctx, "run-1", nil, analyzers)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ProposalsApplied)

	// A fresh run against the mutated repository proposes nothing new.
	second, err := o.RunOnce(ctx, "run-2", nil, analyzers)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ProposalsApplied)

	plans, err := store.ListPlans(ctx, types.PlanFilter{})
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = New(&Config{Store: store})
	assert.Error(t, err)

	bad := config.DefaultConfig()
	bad.MaxWorkers = 0
	_, err = New(&Config{Store: store, Cfg: bad})
	assert.Error(t, err)
}
