package types

import (
	"fmt"
	"time"
)

// JournalEntry records one applied mutation with enough state to
// reverse it. PriorState holds the affected plans exactly as they were
// before the mutation (empty for ADD); NewState holds them as written.
// Reversing an entry restores PriorState byte-for-byte, including
// version counters, and removes plans that did not exist before.
type JournalEntry struct {
	ID         string               `json:"id"`
	RunID      string               `json:"run_id"`
	Proposal   ModificationProposal `json:"proposal"`
	PriorState []*Plan              `json:"prior_state,omitempty"`
	NewState   []*Plan              `json:"new_state,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	RolledBack bool                 `json:"rolled_back"`
}

// Validate checks if the journal entry has valid field values
func (j *JournalEntry) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("journal entry id is required")
	}
	if j.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if err := j.Proposal.Validate(); err != nil {
		return fmt.Errorf("invalid proposal: %w", err)
	}
	if len(j.PriorState) == 0 && len(j.NewState) == 0 {
		return fmt.Errorf("journal entry must record prior or new state")
	}
	return nil
}
