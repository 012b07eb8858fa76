package types

import (
	"fmt"
	"time"
)

// Operation is the kind of plan mutation a proposal requests
type Operation string

const (
	OpAdd    Operation = "add"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
	OpMerge  Operation = "merge"
)

// IsValid checks if the operation value is valid
func (o Operation) IsValid() bool {
	switch o {
	case OpAdd, OpModify, OpDelete, OpMerge:
		return true
	}
	return false
}

// ModificationProposal is a proposed mutation of the plan repository.
// It is a tagged union over the four operations: exactly the payload
// fields for its Op are set, everything else stays zero. Proposals are
// pure data with no side effects until the editor applies them.
//
// Payload fields per operation:
//   - OpAdd:    Draft
//   - OpModify: PlanID, Patch
//   - OpDelete: PlanID, Reason
//   - OpMerge:  PlanIDs (two or more), TargetDraft
type ModificationProposal struct {
	ID          string     `json:"id"`
	Op          Operation  `json:"op"`
	Draft       *PlanDraft `json:"draft,omitempty"`
	PlanID      string     `json:"plan_id,omitempty"`
	Patch       *PlanPatch `json:"patch,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	PlanIDs     []string   `json:"plan_ids,omitempty"`
	TargetDraft *PlanDraft `json:"target_draft,omitempty"`

	// Confidence is the detector's confidence in this mutation (0.0 to 1.0).
	// Proposals at or above the auto-approve threshold are applied
	// immediately; anything below is staged for human approval.
	Confidence float64 `json:"confidence"`

	// Rationale explains why the detector proposed this mutation.
	// Shown verbatim to the human reviewer.
	Rationale string `json:"rationale"`

	// PhaseID attributes the mutation to the phase that produced it,
	// so the state machine can cascade reruns to dependent phases.
	PhaseID string `json:"phase_id,omitempty"`
}

// Validate checks that the proposal's payload matches its operation
func (m *ModificationProposal) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("proposal id is required")
	}
	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", m.Confidence)
	}
	switch m.Op {
	case OpAdd:
		if m.Draft == nil {
			return fmt.Errorf("add proposal requires a draft")
		}
		if err := m.Draft.Validate(); err != nil {
			return fmt.Errorf("invalid draft: %w", err)
		}
		if m.PlanID != "" || len(m.PlanIDs) > 0 || m.Patch != nil || m.TargetDraft != nil {
			return fmt.Errorf("add proposal must not carry modify/delete/merge payloads")
		}
	case OpModify:
		if m.PlanID == "" {
			return fmt.Errorf("modify proposal requires a plan_id")
		}
		if m.Patch == nil || m.Patch.IsEmpty() {
			return fmt.Errorf("modify proposal requires a non-empty patch")
		}
		if m.Draft != nil || len(m.PlanIDs) > 0 || m.TargetDraft != nil {
			return fmt.Errorf("modify proposal must not carry add/merge payloads")
		}
	case OpDelete:
		if m.PlanID == "" {
			return fmt.Errorf("delete proposal requires a plan_id")
		}
		if m.Reason == "" {
			return fmt.Errorf("delete proposal requires a reason")
		}
		if m.Draft != nil || m.Patch != nil || len(m.PlanIDs) > 0 || m.TargetDraft != nil {
			return fmt.Errorf("delete proposal must not carry add/modify/merge payloads")
		}
	case OpMerge:
		if len(m.PlanIDs) < 2 {
			return fmt.Errorf("merge proposal requires at least two plan_ids (got %d)", len(m.PlanIDs))
		}
		if m.TargetDraft == nil {
			return fmt.Errorf("merge proposal requires a target draft")
		}
		if err := m.TargetDraft.Validate(); err != nil {
			return fmt.Errorf("invalid target draft: %w", err)
		}
		if m.Draft != nil || m.Patch != nil || m.PlanID != "" {
			return fmt.Errorf("merge proposal must not carry add/modify/delete payloads")
		}
	default:
		return fmt.Errorf("invalid operation: %q", m.Op)
	}
	return nil
}

// Summary returns a one-line description suitable for approval prompts
// and journal listings.
func (m *ModificationProposal) Summary() string {
	switch m.Op {
	case OpAdd:
		return fmt.Sprintf("ADD %q (priority %s)", m.Draft.Title, m.Draft.Priority)
	case OpModify:
		return fmt.Sprintf("MODIFY %s", m.PlanID)
	case OpDelete:
		return fmt.Sprintf("DELETE %s: %s", m.PlanID, m.Reason)
	case OpMerge:
		return fmt.Sprintf("MERGE %v into %q", m.PlanIDs, m.TargetDraft.Title)
	default:
		return fmt.Sprintf("UNKNOWN(%s)", m.Op)
	}
}

// ApprovalStatus represents the state of a staged approval request
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalTimedOut ApprovalStatus = "timed_out"
)

// IsValid checks if the approval status value is valid
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalTimedOut:
		return true
	}
	return false
}

// IsResolved reports whether the request has reached a terminal state.
func (s ApprovalStatus) IsResolved() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalTimedOut
}

// ApprovalRequest is a staged proposal awaiting a human decision. One
// request maps 1:1 to one proposal whose confidence fell below the
// auto-approve threshold (or whose operation is DELETE, which is never
// auto-applied).
type ApprovalRequest struct {
	ID          string               `json:"id"`
	RunID       string               `json:"run_id"`
	Proposal    ModificationProposal `json:"proposal"`
	Status      ApprovalStatus       `json:"status"`
	RequestedAt time.Time            `json:"requested_at"`
	ResolvedAt  *time.Time           `json:"resolved_at,omitempty"`
}

// Validate checks if the approval request has valid field values
func (a *ApprovalRequest) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("request id is required")
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", a.Status)
	}
	if a.Status.IsResolved() && a.ResolvedAt == nil {
		return fmt.Errorf("resolved request must have resolved_at set")
	}
	if err := a.Proposal.Validate(); err != nil {
		return fmt.Errorf("invalid proposal: %w", err)
	}
	return nil
}
