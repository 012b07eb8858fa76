package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New creates an EngineEvent with a generated ID and current timestamp.
func New(eventType EventType, runID, phaseID string, severity EventSeverity, message string, data map[string]interface{}) *EngineEvent {
	return &EngineEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		PhaseID:   phaseID,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}

// NewPhaseStarted creates a phase_started event.
func NewPhaseStarted(runID, phaseID string, runCount int) *EngineEvent {
	return New(EventTypePhaseStarted, runID, phaseID, SeverityInfo,
		fmt.Sprintf("Phase %s started (run %d)", phaseID, runCount),
		map[string]interface{}{"run_count": runCount})
}

// NewPhaseCompleted creates a phase_completed event.
func NewPhaseCompleted(runID, phaseID string, duration time.Duration) *EngineEvent {
	return New(EventTypePhaseCompleted, runID, phaseID, SeverityInfo,
		fmt.Sprintf("Phase %s completed in %s", phaseID, duration.Round(time.Millisecond)),
		map[string]interface{}{"duration_ms": duration.Milliseconds()})
}

// NewPhaseFailed creates a phase_failed event.
func NewPhaseFailed(runID, phaseID string, cause error) *EngineEvent {
	return New(EventTypePhaseFailed, runID, phaseID, SeverityError,
		fmt.Sprintf("Phase %s failed: %v", phaseID, cause),
		map[string]interface{}{"error": cause.Error()})
}

// NewCascadeMarked creates a cascade_marked event listing the phases
// flagged for rerun after a mutation attributed to phaseID.
func NewCascadeMarked(runID, phaseID string, marked []string) *EngineEvent {
	return New(EventTypeCascadeMarked, runID, phaseID, SeverityInfo,
		fmt.Sprintf("Mutation in %s marked %d dependent phase(s) for rerun", phaseID, len(marked)),
		map[string]interface{}{"marked": marked})
}

// NewConsensusBuilt creates a consensus_built event.
func NewConsensusBuilt(runID, phaseID string, analyzers, recommendations, clusters int) *EngineEvent {
	return New(EventTypeConsensusBuilt, runID, phaseID, SeverityInfo,
		fmt.Sprintf("Clustered %d recommendations from %d analyzers into %d consensus entries",
			recommendations, analyzers, clusters),
		map[string]interface{}{
			"analyzers":       analyzers,
			"recommendations": recommendations,
			"clusters":        clusters,
		})
}

// NewLowAgreement creates the warning emitted when consensus degrades
// to pass-through because fewer than two analyzer outputs arrived.
func NewLowAgreement(runID, phaseID string, analyzerCount int) *EngineEvent {
	return New(EventTypeLowAgreement, runID, phaseID, SeverityWarning,
		fmt.Sprintf("Only %d analyzer output(s) available; consensus degraded to pass-through", analyzerCount),
		map[string]interface{}{"analyzer_count": analyzerCount})
}

// NewProposalApplied creates a proposal_applied event.
func NewProposalApplied(runID, phaseID, proposalID, planID, summary string) *EngineEvent {
	return New(EventTypeProposalApplied, runID, phaseID, SeverityInfo,
		fmt.Sprintf("Applied %s", summary),
		map[string]interface{}{"proposal_id": proposalID, "plan_id": planID})
}

// NewProposalStaged creates a proposal_staged event.
func NewProposalStaged(runID, phaseID, requestID, summary string, confidence float64) *EngineEvent {
	return New(EventTypeProposalStaged, runID, phaseID, SeverityInfo,
		fmt.Sprintf("Staged for approval (confidence %.2f): %s", confidence, summary),
		map[string]interface{}{"request_id": requestID, "confidence": confidence})
}

// NewAnalyzerFailed creates an analyzer_failed event.
func NewAnalyzerFailed(runID, phaseID, analyzerID string, attempts int, cause error) *EngineEvent {
	return New(EventTypeAnalyzerFailed, runID, phaseID, SeverityWarning,
		fmt.Sprintf("Analyzer %s failed after %d attempt(s): %v", analyzerID, attempts, cause),
		map[string]interface{}{"analyzer_id": analyzerID, "attempts": attempts, "error": cause.Error()})
}
