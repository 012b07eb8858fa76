// Package events defines the structured event taxonomy for the engine.
// Events are persisted through storage and surfaced by the status CLI,
// forming the engine's durable activity log.
package events

import (
	"time"
)

// EventType represents the type of event that occurred during a run.
type EventType string

const (
	// Run lifecycle
	// EventTypeRunStarted indicates an orchestrator run began
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunCompleted indicates an orchestrator run finished
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeRunResumed indicates a run resumed from checkpoints
	EventTypeRunResumed EventType = "run_resumed"

	// Phase lifecycle
	// EventTypePhaseStarted indicates a phase transitioned to in_progress
	EventTypePhaseStarted EventType = "phase_started"
	// EventTypePhaseCompleted indicates a phase completed successfully
	EventTypePhaseCompleted EventType = "phase_completed"
	// EventTypePhaseFailed indicates a phase failed
	EventTypePhaseFailed EventType = "phase_failed"
	// EventTypePhaseSkipped indicates a phase was skipped by configuration or checkpoint
	EventTypePhaseSkipped EventType = "phase_skipped"
	// EventTypeCascadeMarked indicates dependent phases were marked needs_rerun
	EventTypeCascadeMarked EventType = "cascade_marked"

	// Analyzer boundary
	// EventTypeAnalyzerCompleted indicates one analyzer returned recommendations
	EventTypeAnalyzerCompleted EventType = "analyzer_completed"
	// EventTypeAnalyzerFailed indicates an analyzer failed after retries
	EventTypeAnalyzerFailed EventType = "analyzer_failed"
	// EventTypeAnalyzerCacheHit indicates analyzer output was served from cache
	EventTypeAnalyzerCacheHit EventType = "analyzer_cache_hit"
	// EventTypeCircuitBreakerStateChange indicates an analyzer circuit breaker transitioned
	EventTypeCircuitBreakerStateChange EventType = "circuit_breaker_state_change"

	// Consensus and detection
	// EventTypeConsensusBuilt indicates clustering produced a consensus list
	EventTypeConsensusBuilt EventType = "consensus_built"
	// EventTypeLowAgreement indicates consensus degraded to pass-through
	EventTypeLowAgreement EventType = "low_agreement"
	// EventTypeProposalsDetected indicates the detector emitted proposals
	EventTypeProposalsDetected EventType = "proposals_detected"

	// Editor and approval
	// EventTypeProposalApplied indicates a proposal mutated the plan repository
	EventTypeProposalApplied EventType = "proposal_applied"
	// EventTypeProposalStaged indicates a proposal was staged for approval
	EventTypeProposalStaged EventType = "proposal_staged"
	// EventTypeProposalRejected indicates an invalid proposal was rejected locally
	EventTypeProposalRejected EventType = "proposal_rejected"
	// EventTypeProposalRolledBack indicates a failed mutation was rolled back
	EventTypeProposalRolledBack EventType = "proposal_rolled_back"
	// EventTypeApprovalResolved indicates a human resolved an approval request
	EventTypeApprovalResolved EventType = "approval_resolved"
	// EventTypeApprovalTimedOut indicates an approval request timed out
	EventTypeApprovalTimedOut EventType = "approval_timed_out"
	// EventTypeRunRolledBack indicates a whole run's mutations were reversed
	EventTypeRunRolledBack EventType = "run_rolled_back"

	// Budget
	// EventTypeBudgetWarning indicates analyzer spend is approaching its ceiling
	EventTypeBudgetWarning EventType = "budget_warning"
	// EventTypeBudgetExceeded indicates analyzer spend hit its ceiling
	EventTypeBudgetExceeded EventType = "budget_exceeded"

	// Storage
	// EventTypeCheckpointFailed indicates a checkpoint write failed
	EventTypeCheckpointFailed EventType = "checkpoint_failed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo is for normal operational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning is for degraded-but-continuing conditions
	SeverityWarning EventSeverity = "warning"
	// SeverityError is for failures surfaced in RunResult
	SeverityError EventSeverity = "error"
)

// IsValid checks if the severity value is valid
func (s EventSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// EngineEvent is one structured event in the engine's activity log
type EngineEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// RunID is the run during which this event occurred
	RunID string `json:"run_id"`
	// PhaseID is the phase that produced this event, if any
	PhaseID string `json:"phase_id,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventFilter controls which events are returned by queries
type EventFilter struct {
	RunID    string         `json:"run_id,omitempty"`
	PhaseID  string         `json:"phase_id,omitempty"`
	Type     *EventType     `json:"type,omitempty"`
	Severity *EventSeverity `json:"severity,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}
