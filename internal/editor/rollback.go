package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/accordhq/accord/internal/types"
)

// ErrAlreadyRolledBack indicates a journal entry was reversed before
var ErrAlreadyRolledBack = errors.New("journal entry already rolled back")

// Rollback reverses a single journal entry: plans in the prior state
// are restored byte for byte, plans created by the mutation are
// removed, and the entry is marked rolled back.
func (e *Editor) Rollback(ctx context.Context, entry *types.JournalEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rollbackLocked(ctx, entry)
}

// RollbackRun reverses every journal entry of a run in reverse
// chronological order. Entries already rolled back are skipped, so a
// partial rollback can be resumed safely.
func (e *Editor) RollbackRun(ctx context.Context, runID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.GetJournal(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to load journal for run %s: %w", runID, err)
	}

	reversed := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].RolledBack {
			continue
		}
		if err := e.rollbackLocked(ctx, entries[i]); err != nil {
			return reversed, fmt.Errorf("failed to roll back entry %s: %w", entries[i].ID, err)
		}
		reversed++
	}
	return reversed, nil
}

func (e *Editor) rollbackLocked(ctx context.Context, entry *types.JournalEntry) error {
	if entry.RolledBack {
		return ErrAlreadyRolledBack
	}

	priorIDs := make(map[string]bool, len(entry.PriorState))
	for _, p := range entry.PriorState {
		priorIDs[p.ID] = true
	}

	// Plans that exist only in the new state were created by this
	// mutation and must be removed.
	for _, p := range entry.NewState {
		if !priorIDs[p.ID] {
			if err := e.store.RemovePlan(ctx, p.ID); err != nil {
				return fmt.Errorf("failed to remove plan %s: %w", p.ID, err)
			}
		}
	}

	for _, p := range entry.PriorState {
		if err := e.store.RestorePlan(ctx, p); err != nil {
			return fmt.Errorf("failed to restore plan %s: %w", p.ID, err)
		}
	}

	if err := e.store.MarkJournalRolledBack(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to mark entry rolled back: %w", err)
	}
	entry.RolledBack = true
	return nil
}
