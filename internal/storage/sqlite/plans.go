package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/accordhq/accord/internal/types"
)

// ErrPlanNotFound is returned when a plan ID does not exist
var ErrPlanNotFound = fmt.Errorf("plan not found")

// ErrVersionConflict is returned when an update's expected version does
// not match the stored row
var ErrVersionConflict = fmt.Errorf("plan version conflict")

// CreatePlan inserts a new plan row
func (s *SQLiteStorage) CreatePlan(ctx context.Context, plan *types.Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	sourceIDs, err := json.Marshal(plan.SourceRecommendationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source recommendation ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, title, body, priority, version, status, created_at, updated_at, source_recommendation_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.Title, plan.Body, plan.Priority, plan.Version, plan.Status,
		plan.CreatedAt, plan.UpdatedAt, string(sourceIDs))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("plan %s already exists", plan.ID)
		}
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID
func (s *SQLiteStorage) GetPlan(ctx context.Context, id string) (*types.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, body, priority, version, status, created_at, updated_at, source_recommendation_ids
		FROM plans WHERE id = ?
	`, id)

	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// UpdatePlan writes a plan row guarded by an optimistic version check.
// The caller supplies the version it read; the write fails with
// ErrVersionConflict if the stored row has moved on.
func (s *SQLiteStorage) UpdatePlan(ctx context.Context, plan *types.Plan, expectedVersion int) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	sourceIDs, err := json.Marshal(plan.SourceRecommendationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source recommendation ids: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE plans
		SET title = ?, body = ?, priority = ?, version = ?, status = ?, updated_at = ?, source_recommendation_ids = ?
		WHERE id = ? AND version = ?
	`, plan.Title, plan.Body, plan.Priority, plan.Version, plan.Status, plan.UpdatedAt,
		string(sourceIDs), plan.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the plan is gone or someone else bumped the version.
		if _, getErr := s.GetPlan(ctx, plan.ID); getErr != nil {
			return fmt.Errorf("%w: %s", ErrPlanNotFound, plan.ID)
		}
		return fmt.Errorf("%w: %s (expected version %d)", ErrVersionConflict, plan.ID, expectedVersion)
	}
	return nil
}

// RestorePlan writes a plan row exactly as given, creating it if
// missing. Used only by rollback, which must reproduce prior state
// byte-for-byte including the version counter.
func (s *SQLiteStorage) RestorePlan(ctx context.Context, plan *types.Plan) error {
	sourceIDs, err := json.Marshal(plan.SourceRecommendationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source recommendation ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, title, body, priority, version, status, created_at, updated_at, source_recommendation_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			priority = excluded.priority,
			version = excluded.version,
			status = excluded.status,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			source_recommendation_ids = excluded.source_recommendation_ids
	`, plan.ID, plan.Title, plan.Body, plan.Priority, plan.Version, plan.Status,
		plan.CreatedAt, plan.UpdatedAt, string(sourceIDs))
	if err != nil {
		return fmt.Errorf("failed to restore plan: %w", err)
	}
	return nil
}

// RemovePlan hard-deletes a plan row. Used only by rollback of an ADD.
func (s *SQLiteStorage) RemovePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return nil
}

// ListPlans returns plans matching the filter, newest first
func (s *SQLiteStorage) ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.Plan, error) {
	query := `
		SELECT id, title, body, priority, version, status, created_at, updated_at, source_recommendation_ids
		FROM plans WHERE 1=1`
	args := []interface{}{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		query += " AND priority = ?"
		args = append(args, *filter.Priority)
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*types.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*types.Plan, error) {
	var plan types.Plan
	var sourceIDs string

	err := row.Scan(&plan.ID, &plan.Title, &plan.Body, &plan.Priority, &plan.Version,
		&plan.Status, &plan.CreatedAt, &plan.UpdatedAt, &sourceIDs)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sourceIDs), &plan.SourceRecommendationIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source recommendation ids: %w", err)
	}
	return &plan, nil
}
