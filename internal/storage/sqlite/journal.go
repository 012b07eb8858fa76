package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/accordhq/accord/internal/types"
)

// AppendJournal records one applied mutation with its reversible state
func (s *SQLiteStorage) AppendJournal(ctx context.Context, entry *types.JournalEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid journal entry: %w", err)
	}

	proposal, err := json.Marshal(entry.Proposal)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}
	prior, err := json.Marshal(entry.PriorState)
	if err != nil {
		return fmt.Errorf("failed to marshal prior state: %w", err)
	}
	next, err := json.Marshal(entry.NewState)
	if err != nil {
		return fmt.Errorf("failed to marshal new state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal (id, run_id, proposal, prior_state, new_state, created_at, rolled_back)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.RunID, string(proposal), string(prior), string(next),
		entry.CreatedAt, boolToInt(entry.RolledBack))
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// GetJournal returns a run's journal entries in application order
func (s *SQLiteStorage) GetJournal(ctx context.Context, runID string) ([]*types.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, proposal, prior_state, new_state, created_at, rolled_back
		FROM journal WHERE run_id = ?
		ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []*types.JournalEntry
	for rows.Next() {
		var entry types.JournalEntry
		var proposal, prior, next string
		var rolledBack int

		if err := rows.Scan(&entry.ID, &entry.RunID, &proposal, &prior, &next,
			&entry.CreatedAt, &rolledBack); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		if err := json.Unmarshal([]byte(proposal), &entry.Proposal); err != nil {
			return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
		}
		if err := json.Unmarshal([]byte(prior), &entry.PriorState); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if err := json.Unmarshal([]byte(next), &entry.NewState); err != nil {
			return nil, fmt.Errorf("failed to unmarshal new state: %w", err)
		}
		entry.RolledBack = rolledBack != 0

		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// MarkJournalRolledBack flags an entry so rollback is not repeated
func (s *SQLiteStorage) MarkJournalRolledBack(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE journal SET rolled_back = 1 WHERE id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark journal entry rolled back: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("journal entry not found: %s", entryID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
