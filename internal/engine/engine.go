// Package engine drives a run: it schedules phases over a bounded
// worker pool in dependency order, invokes the analysis, consensus,
// and reconcile stages, and accumulates the run result.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/accordhq/accord/internal/analyzer"
	"github.com/accordhq/accord/internal/approval"
	"github.com/accordhq/accord/internal/config"
	"github.com/accordhq/accord/internal/consensus"
	"github.com/accordhq/accord/internal/cost"
	"github.com/accordhq/accord/internal/detect"
	"github.com/accordhq/accord/internal/editor"
	"github.com/accordhq/accord/internal/events"
	"github.com/accordhq/accord/internal/phase"
	"github.com/accordhq/accord/internal/similarity"
	"github.com/accordhq/accord/internal/storage"
	"github.com/accordhq/accord/internal/types"
)

// Well-known phase IDs with built-in behavior. Phases with other IDs
// participate in dependency ordering and cascades but do no work.
const (
	PhaseAnalyze   = "analyze"
	PhaseConsensus = "consensus"
	PhaseReconcile = "reconcile"
)

// checkpointCompleted marks a phase checkpoint as done for the run
const checkpointCompleted = "completed"

// phaseCheckpoint is the serialized form of a phase's durable
// progress. Completed analyze and consensus checkpoints carry the
// intermediates their dependents read from EngineState, so a resumed
// run can skip the phase and still feed the rest of the pipeline.
type phaseCheckpoint struct {
	Completed      bool                     `json:"completed,omitempty"`
	Analyzed       []string                 `json:"analyzed,omitempty"`
	Outputs        [][]types.Recommendation `json:"outputs,omitempty"`
	TotalAnalyzers int                      `json:"total_analyzers,omitempty"`
	Consensus      *consensus.Result        `json:"consensus,omitempty"`
}

// parseCheckpoint decodes a checkpoint's progress payload. The bare
// checkpointCompleted marker decodes as completed with no
// intermediates; anything unreadable decodes as not completed, so the
// phase reruns.
func parseCheckpoint(progress string) phaseCheckpoint {
	if progress == checkpointCompleted {
		return phaseCheckpoint{Completed: true}
	}
	var cp phaseCheckpoint
	if err := json.Unmarshal([]byte(progress), &cp); err != nil {
		return phaseCheckpoint{}
	}
	return cp
}

// CheckpointCompleted reports whether a stored checkpoint payload
// marks its phase as completed for the run.
func CheckpointCompleted(progress string) bool {
	return parseCheckpoint(progress).Completed
}

// Orchestrator coordinates one run at a time
type Orchestrator struct {
	store     storage.Storage
	cfg       *config.Config
	reviewer  approval.Reviewer
	documents []*types.Document
	tracker   *cost.Tracker
}

// Config holds orchestrator configuration
type Config struct {
	Store storage.Storage
	Cfg   *config.Config
	// Reviewer resolves staged approvals during the run. Nil leaves
	// staged requests pending for offline resolution.
	Reviewer approval.Reviewer
	// Documents are the source documents fed to every analyzer
	Documents []*types.Document
	// Tracker accumulates analyzer spend; shared with analyzers that
	// report usage. Created internally when nil.
	Tracker *cost.Tracker
}

// New creates an orchestrator
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Cfg == nil {
		return nil, fmt.Errorf("engine config is required")
	}
	if err := cfg.Cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	tracker := cfg.Tracker
	if tracker == nil {
		var err error
		tracker, err = cost.NewTracker(&cost.Config{
			Enabled:         cfg.Cfg.BudgetUSD > 0,
			MaxCostPerRun:   cfg.Cfg.BudgetUSD,
			AlertThreshold:  0.80,
			InputTokenCost:  3.00,
			OutputTokenCost: 15.00,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		store:     cfg.Store,
		cfg:       cfg.Cfg,
		reviewer:  cfg.Reviewer,
		documents: cfg.Documents,
		tracker:   tracker,
	}, nil
}

// phaseOutcome reports one finished phase back to the scheduler
type phaseOutcome struct {
	phaseID  string
	err      error
	duration time.Duration
}

// RunOnce executes the phase graph to completion. Analyzer failures
// and per-proposal errors degrade the run and land in
// RunResult.Errors; only scheduler invariant violations abort.
func (o *Orchestrator) RunOnce(ctx context.Context, runID string, graph *phase.Graph, analyzers []analyzer.Analyzer) (*types.RunResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if graph == nil {
		graph = phase.DefaultGraph()
	}

	startedAt := time.Now().UTC()
	state := &EngineState{
		RunID:   runID,
		Machine: phase.NewMachine(graph),
		Tracker: o.tracker,
	}

	ed, err := editor.New(&editor.Config{
		Store:                o.store,
		AutoApproveThreshold: o.cfg.AutoApproveThreshold,
		RunID:                runID,
	})
	if err != nil {
		return nil, err
	}

	var gate *approval.Gate
	if o.reviewer != nil {
		gate, err = approval.New(&approval.Config{
			Store:    o.store,
			Editor:   ed,
			Reviewer: o.reviewer,
			Timeout:  o.cfg.ApprovalTimeout,
			// Scope interactive review to this run; backlog from other
			// runs is resolved offline via approve/reject.
			RunID: runID,
		})
		if err != nil {
			return nil, err
		}
	}

	// Resume: skip phases this run already completed, rehydrating the
	// intermediates their dependents read from EngineState. A phase is
	// skipped only when its checkpoint carries what later phases need
	// and every prerequisite is itself skipped; anything else reruns,
	// which the analyzer result cache keeps cheap.
	checkpoints, err := o.store.LoadCheckpoints(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	satisfied, skipped := resumeFromCheckpoints(state, graph, checkpoints)
	for phaseID, cp := range checkpoints {
		if _, inGraph := satisfied[phaseID]; inGraph {
			continue
		}
		if parseCheckpoint(cp.Progress).Completed {
			// Checkpoint for a phase no longer in the graph.
			state.AddError(phaseID, fmt.Errorf("stale checkpoint ignored: phase %s is not in the graph", phaseID))
		}
	}
	if skipped > 0 {
		o.emit(ctx, events.New(events.EventTypeRunResumed, runID, "", events.SeverityInfo,
			fmt.Sprintf("run %s resumed, %d phase(s) already completed", runID, skipped), nil))
	}

	o.emit(ctx, events.New(events.EventTypeRunStarted, runID, "", events.SeverityInfo,
		fmt.Sprintf("run %s started with %d analyzers over %d documents", runID, len(analyzers), len(o.documents)), nil))

	if err := o.schedule(ctx, state, ed, gate, analyzers); err != nil {
		return nil, err
	}

	result := o.buildResult(ctx, state, startedAt)
	o.emit(ctx, events.New(events.EventTypeRunCompleted, runID, "", events.SeverityInfo,
		fmt.Sprintf("run %s finished: %d phases completed, %d proposals applied, %d pending",
			runID, result.PhasesCompleted, result.ProposalsApplied, result.ProposalsPendingApproval), nil))
	return result, nil
}

// resumeFromCheckpoints marks graph phases completed from this run's
// checkpoints and rehydrates the pipeline intermediates they recorded.
// It returns one entry per graph phase (true when the phase is
// satisfied without running this time) and the number of
// checkpoint-skipped phases.
//
// Phases are processed in topological order, and a phase is skipped
// only when every prerequisite is itself satisfied: a rerun upstream
// invalidates whatever this phase recorded. A completed checkpoint
// missing the intermediates its dependents need (analyze without
// outputs, consensus without a result) also reruns instead of leaving
// the pipeline with a hole in the middle.
func resumeFromCheckpoints(state *EngineState, graph *phase.Graph, checkpoints map[string]*types.Checkpoint) (map[string]bool, int) {
	prereqs := make(map[string][]string, len(graph.Phases))
	declaredSkip := make(map[string]bool, len(graph.Phases))
	for _, def := range graph.Phases {
		prereqs[def.ID] = def.Prerequisites
		declaredSkip[def.ID] = def.Skip
	}

	satisfied := make(map[string]bool, len(graph.Phases))
	skipped := 0
	for _, phaseID := range graph.Order() {
		if declaredSkip[phaseID] {
			satisfied[phaseID] = true
			continue
		}
		satisfied[phaseID] = false

		cp, ok := checkpoints[phaseID]
		if !ok {
			continue
		}
		progress := parseCheckpoint(cp.Progress)
		if !progress.Completed {
			continue
		}

		eligible := true
		for _, pre := range prereqs[phaseID] {
			if !satisfied[pre] {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}

		switch phaseID {
		case PhaseAnalyze:
			if progress.TotalAnalyzers < 1 {
				continue
			}
			state.SetAnalysis(progress.Outputs, progress.TotalAnalyzers)
		case PhaseConsensus:
			if progress.Consensus == nil {
				continue
			}
			state.SetConsensus(progress.Consensus)
		}

		if state.Machine.MarkCompleted(phaseID) == nil {
			satisfied[phaseID] = true
			skipped++
		}
	}
	return satisfied, skipped
}

// schedule drives the worker pool until no phase is ready or running.
// Cancellation is honored between phases: in-flight phases finish (or
// roll back) before the scheduler stops.
func (o *Orchestrator) schedule(ctx context.Context, state *EngineState, ed *editor.Editor, gate *approval.Gate, analyzers []analyzer.Analyzer) error {
	sem := semaphore.NewWeighted(int64(o.cfg.MaxWorkers))
	outcomes := make(chan phaseOutcome)
	inFlight := make(map[string]bool)

	for {
		if ctx.Err() == nil {
			for _, phaseID := range state.Machine.Ready() {
				if inFlight[phaseID] {
					continue
				}
				if err := state.Machine.Start(phaseID); err != nil {
					if errors.Is(err, phase.ErrPrerequisiteViolation) {
						return err
					}
					state.AddError(phaseID, err)
					continue
				}
				inFlight[phaseID] = true

				rec, _ := state.Machine.Record(phaseID)
				o.emit(ctx, events.NewPhaseStarted(state.RunID, phaseID, rec.RunCount))

				go func(phaseID string) {
					start := time.Now()
					if err := sem.Acquire(ctx, 1); err != nil {
						outcomes <- phaseOutcome{phaseID: phaseID, err: err, duration: time.Since(start)}
						return
					}
					err := o.runPhase(ctx, state, ed, gate, analyzers, phaseID)
					sem.Release(1)
					outcomes <- phaseOutcome{phaseID: phaseID, err: err, duration: time.Since(start)}
				}(phaseID)
			}
		}

		if len(inFlight) == 0 {
			if err := ctx.Err(); err != nil {
				state.AddError("", err)
			}
			return nil
		}

		out := <-outcomes
		delete(inFlight, out.phaseID)

		if out.err != nil {
			_ = state.Machine.Fail(out.phaseID, out.duration)
			state.AddError(out.phaseID, out.err)
			o.emit(ctx, events.NewPhaseFailed(state.RunID, out.phaseID, out.err))
			continue
		}

		_ = state.Machine.Complete(out.phaseID, out.duration)
		o.emit(ctx, events.NewPhaseCompleted(state.RunID, out.phaseID, out.duration))
		o.checkpoint(ctx, state.RunID, out.phaseID, completedProgress(state, out.phaseID))
	}
}

// runPhase executes one phase's work
func (o *Orchestrator) runPhase(ctx context.Context, state *EngineState, ed *editor.Editor, gate *approval.Gate, analyzers []analyzer.Analyzer, phaseID string) error {
	switch phaseID {
	case PhaseAnalyze:
		return o.runAnalyze(ctx, state, analyzers, phaseID)
	case PhaseConsensus:
		return o.runConsensus(ctx, state, phaseID)
	case PhaseReconcile:
		return o.runReconcile(ctx, state, ed, gate, phaseID)
	default:
		// Declared but unhandled phases complete immediately so custom
		// graphs can express ordering-only steps.
		return nil
	}
}

// runAnalyze invokes every analyzer against every document. Analyzer
// failures degrade the run; the consensus denominator still counts the
// failed analyzer.
func (o *Orchestrator) runAnalyze(ctx context.Context, state *EngineState, analyzers []analyzer.Analyzer, phaseID string) error {
	outputs := make([][]types.Recommendation, 0, len(analyzers))

	var analyzed []string
	for _, a := range analyzers {
		if err := ctx.Err(); err != nil {
			return err
		}

		if ok, reason := state.Tracker.CanProceed(); !ok {
			state.AddError(phaseID, fmt.Errorf("analyzer %s skipped: %s", a.ID(), reason))
			o.emit(ctx, events.New(events.EventTypeBudgetExceeded, state.RunID, phaseID, events.SeverityWarning,
				fmt.Sprintf("analyzer %s skipped: %s", a.ID(), reason), nil))
			outputs = append(outputs, nil)
			continue
		}

		var recs []types.Recommendation
		for _, doc := range o.documents {
			docRecs, err := a.Analyze(ctx, doc)
			if err != nil {
				state.AddError(phaseID, fmt.Errorf("analyzer %s on %s: %w", a.ID(), doc.ID, err))
				o.emit(ctx, events.NewAnalyzerFailed(state.RunID, phaseID, a.ID(), o.cfg.AnalyzerRetries, err))
				continue
			}
			recs = append(recs, docRecs...)
		}
		outputs = append(outputs, recs)

		// Durable progress marker; resumed runs redo the phase but the
		// result cache makes redone calls cheap.
		analyzed = append(analyzed, a.ID())
		if progress, err := json.Marshal(phaseCheckpoint{Analyzed: analyzed}); err == nil {
			o.checkpoint(ctx, state.RunID, phaseID, string(progress))
		}
	}

	state.SetAnalysis(outputs, len(analyzers))
	return nil
}

// runConsensus clusters the analyzer outputs into the consensus set
func (o *Orchestrator) runConsensus(ctx context.Context, state *EngineState, phaseID string) error {
	outputs, totalAnalyzers := state.Analysis()

	builder, err := consensus.NewBuilder(similarity.NewTokenOverlap(), o.cfg.SimilarityThreshold)
	if err != nil {
		return err
	}
	result, err := builder.Build(outputs, totalAnalyzers)
	if err != nil {
		return err
	}
	state.SetConsensus(result)

	o.emit(ctx, events.NewConsensusBuilt(state.RunID, phaseID,
		result.TotalAnalyzers, result.TotalRecommendations, len(result.Recommendations)))
	if result.Degraded {
		o.emit(ctx, events.NewLowAgreement(state.RunID, phaseID, nonEmptyCount(outputs)))
	}
	return nil
}

// runReconcile detects gaps, duplicates, and obsolete plans against
// the consensus set and routes the resulting proposals through the
// editor and, when staged, the approval gate.
func (o *Orchestrator) runReconcile(ctx context.Context, state *EngineState, ed *editor.Editor, gate *approval.Gate, phaseID string) error {
	res := state.Consensus()
	if res == nil {
		return fmt.Errorf("reconcile requires a consensus result; declare %q as a prerequisite", PhaseConsensus)
	}

	plans, err := o.store.ListPlans(ctx, types.PlanFilter{})
	if err != nil {
		return fmt.Errorf("failed to list plans: %w", err)
	}

	detector, err := detect.New(&detect.Config{
		Scorer:             similarity.NewTokenOverlap(),
		CoverageThreshold:  o.cfg.CoverageThreshold,
		DuplicateThreshold: o.cfg.DuplicateThreshold,
	})
	if err != nil {
		return err
	}

	proposals := detector.Detect(res.Recommendations, plans, phaseID)
	for i := range proposals {
		if err := ctx.Err(); err != nil {
			return err
		}

		proposal := &proposals[i]
		applied, err := ed.Apply(ctx, proposal)
		if err != nil {
			state.AddError(phaseID, fmt.Errorf("proposal %s: %w", proposal.ID, err))
			continue
		}
		o.recordOutcome(ctx, state, proposal, applied)
	}

	if gate != nil {
		summary, err := gate.ProcessPending(ctx)
		if err != nil {
			return fmt.Errorf("approval gate failed: %w", err)
		}
		for i := 0; i < summary.Applied; i++ {
			state.AddApplied()
		}
		if summary.Applied > 0 {
			o.cascade(ctx, state, phaseID)
		}
	}
	return nil
}

// recordOutcome updates counters, emits events, and cascades rerun
// marks for an applied mutation.
func (o *Orchestrator) recordOutcome(ctx context.Context, state *EngineState, proposal *types.ModificationProposal, res *editor.Result) {
	if !res.Applied {
		o.emit(ctx, events.NewProposalStaged(state.RunID, proposal.PhaseID, res.RequestID, proposal.Summary(), proposal.Confidence))
		return
	}
	if res.NoOp {
		return
	}
	state.AddApplied()
	o.emit(ctx, events.NewProposalApplied(state.RunID, proposal.PhaseID, proposal.ID, res.PlanID, proposal.Summary()))
	o.cascade(ctx, state, proposal.PhaseID)
}

// cascade marks the mutating phase's transitive dependents NeedsRerun
func (o *Orchestrator) cascade(ctx context.Context, state *EngineState, phaseID string) {
	marked, err := state.Machine.Cascade(phaseID)
	if err != nil || len(marked) == 0 {
		return
	}
	o.emit(ctx, events.NewCascadeMarked(state.RunID, phaseID, marked))
}

func (o *Orchestrator) buildResult(ctx context.Context, state *EngineState, startedAt time.Time) *types.RunResult {
	completed := 0
	for _, rec := range state.Machine.Records() {
		if rec.Status == types.PhaseCompleted {
			completed++
		}
	}

	pending := 0
	if reqs, err := o.store.ListPendingApprovals(ctx); err == nil {
		for _, req := range reqs {
			if req.RunID == state.RunID {
				pending++
			}
		}
	}

	return &types.RunResult{
		RunID:                    state.RunID,
		PhasesCompleted:          completed,
		ProposalsApplied:         state.Applied(),
		ProposalsPendingApproval: pending,
		Errors:                   state.Errors(),
		StartedAt:                startedAt,
		FinishedAt:               time.Now().UTC(),
	}
}

// completedProgress serializes a completed phase's checkpoint,
// embedding the intermediates a resumed run rehydrates.
func completedProgress(state *EngineState, phaseID string) string {
	cp := phaseCheckpoint{Completed: true}
	switch phaseID {
	case PhaseAnalyze:
		cp.Outputs, cp.TotalAnalyzers = state.Analysis()
	case PhaseConsensus:
		cp.Consensus = state.Consensus()
	}
	progress, err := json.Marshal(cp)
	if err != nil {
		return checkpointCompleted
	}
	return string(progress)
}

func (o *Orchestrator) checkpoint(ctx context.Context, runID, phaseID, progress string) {
	err := o.store.SaveCheckpoint(ctx, &types.Checkpoint{
		RunID:     runID,
		PhaseID:   phaseID,
		Progress:  progress,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		o.emit(ctx, events.New(events.EventTypeCheckpointFailed, runID, phaseID, events.SeverityWarning,
			fmt.Sprintf("checkpoint write failed: %v", err), nil))
	}
}

// emit stores an event, dropping it on storage failure. Event loss
// never fails a run.
func (o *Orchestrator) emit(ctx context.Context, event *events.EngineEvent) {
	_ = o.store.StoreEvent(ctx, event)
}

func nonEmptyCount(outputs [][]types.Recommendation) int {
	n := 0
	for _, recs := range outputs {
		if len(recs) > 0 {
			n++
		}
	}
	return n
}
