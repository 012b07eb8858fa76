package types

import (
	"fmt"
	"time"
)

// PhaseStatus represents the execution state of a named phase
type PhaseStatus string

const (
	PhaseNotStarted PhaseStatus = "not_started"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseFailed     PhaseStatus = "failed"
	PhaseNeedsRerun PhaseStatus = "needs_rerun"
	PhaseSkipped    PhaseStatus = "skipped"
)

// IsValid checks if the phase status value is valid
func (s PhaseStatus) IsValid() bool {
	switch s {
	case PhaseNotStarted, PhaseInProgress, PhaseCompleted, PhaseFailed, PhaseNeedsRerun, PhaseSkipped:
		return true
	}
	return false
}

// SatisfiesPrerequisite reports whether a phase in this state unblocks
// its dependents. Skipped counts exactly like Completed.
func (s PhaseStatus) SatisfiesPrerequisite() bool {
	return s == PhaseCompleted || s == PhaseSkipped
}

// PhaseRecord tracks one phase's execution state within a run
type PhaseRecord struct {
	PhaseID       string        `json:"phase_id"`
	Status        PhaseStatus   `json:"status"`
	Prerequisites []string      `json:"prerequisites,omitempty"`
	Dependents    []string      `json:"dependents,omitempty"`
	RunCount      int           `json:"run_count"`
	LastDuration  time.Duration `json:"last_duration"`
}

// Validate checks if the phase record has valid field values
func (p *PhaseRecord) Validate() error {
	if p.PhaseID == "" {
		return fmt.Errorf("phase_id is required")
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.RunCount < 0 {
		return fmt.Errorf("run_count cannot be negative (got %d)", p.RunCount)
	}
	return nil
}

// CacheEntry is one content-addressed analyzer output. The key is a
// hash of analyzer ID and document ID; entries past their TTL are
// treated as absent.
type CacheEntry struct {
	Key       string        `json:"key"`
	Value     string        `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at the given time.
// A zero TTL means the entry never expires.
func (e *CacheEntry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Checkpoint is a durable snapshot of one phase's progress within a
// run, written after each unit of durable progress so a crashed run
// resumes without redoing completed work.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	PhaseID   string    `json:"phase_id"`
	Progress  string    `json:"serialized_progress"`
	CreatedAt time.Time `json:"created_at"`
}

// RunError is one non-fatal error accumulated during a run
type RunError struct {
	PhaseID string `json:"phase_id,omitempty"`
	Message string `json:"message"`
}

func (e RunError) Error() string {
	if e.PhaseID != "" {
		return fmt.Sprintf("[%s] %s", e.PhaseID, e.Message)
	}
	return e.Message
}

// RunResult summarizes one orchestrator invocation
type RunResult struct {
	RunID                    string     `json:"run_id"`
	PhasesCompleted          int        `json:"phases_completed"`
	ProposalsApplied         int        `json:"proposals_applied"`
	ProposalsPendingApproval int        `json:"proposals_pending_approval"`
	Errors                   []RunError `json:"errors,omitempty"`
	StartedAt                time.Time  `json:"started_at"`
	FinishedAt               time.Time  `json:"finished_at"`
}
