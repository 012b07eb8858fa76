package sqlite

import (
	"context"
	"fmt"

	"github.com/accordhq/accord/internal/types"
)

// SaveCheckpoint writes the latest progress for (run_id, phase_id).
// Keyed upserts mean concurrent phases never contend on the same row.
func (s *SQLiteStorage) SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	if cp.RunID == "" || cp.PhaseID == "" {
		return fmt.Errorf("checkpoint requires run_id and phase_id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, phase_id, progress, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, phase_id) DO UPDATE SET
			progress = excluded.progress,
			created_at = excluded.created_at
	`, cp.RunID, cp.PhaseID, cp.Progress, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoints returns the latest checkpoint per phase for a run
func (s *SQLiteStorage) LoadCheckpoints(ctx context.Context, runID string) (map[string]*types.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, phase_id, progress, created_at
		FROM checkpoints WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make(map[string]*types.Checkpoint)
	for rows.Next() {
		var cp types.Checkpoint
		if err := rows.Scan(&cp.RunID, &cp.PhaseID, &cp.Progress, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints[cp.PhaseID] = &cp
	}
	return checkpoints, rows.Err()
}
