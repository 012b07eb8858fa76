package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/accordhq/accord/internal/types"
)

// ErrRequestNotFound is returned when an approval request ID does not exist
var ErrRequestNotFound = fmt.Errorf("approval request not found")

// ErrRequestResolved is returned when resolving an already-resolved request
var ErrRequestResolved = fmt.Errorf("approval request already resolved")

// CreateApprovalRequest stages a proposal for human review
func (s *SQLiteStorage) CreateApprovalRequest(ctx context.Context, req *types.ApprovalRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid approval request: %w", err)
	}

	proposal, err := json.Marshal(req.Proposal)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approval_requests (id, run_id, proposal, status, requested_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.ID, req.RunID, string(proposal), req.Status, req.RequestedAt, req.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert approval request: %w", err)
	}
	return nil
}

// GetApprovalRequest retrieves a request by ID
func (s *SQLiteStorage) GetApprovalRequest(ctx context.Context, id string) (*types.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, proposal, status, requested_at, resolved_at
		FROM approval_requests WHERE id = ?
	`, id)

	req, err := scanApprovalRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return req, nil
}

// ResolveApprovalRequest transitions a pending request to a terminal
// status. Resolving a non-pending request fails so a request cannot be
// approved twice or flip between decisions.
func (s *SQLiteStorage) ResolveApprovalRequest(ctx context.Context, id string, status types.ApprovalStatus, resolvedAt time.Time) error {
	if !status.IsResolved() {
		return fmt.Errorf("status %s is not a terminal approval status", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE approval_requests SET status = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, status, resolvedAt, id, types.ApprovalPending)
	if err != nil {
		return fmt.Errorf("failed to resolve approval request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetApprovalRequest(ctx, id); getErr != nil {
			return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
		}
		return fmt.Errorf("%w: %s", ErrRequestResolved, id)
	}
	return nil
}

// ListPendingApprovals returns pending requests ordered highest
// confidence first, so a partial approval session still resolves the
// most impactful operations.
func (s *SQLiteStorage) ListPendingApprovals(ctx context.Context) ([]*types.ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, proposal, status, requested_at, resolved_at
		FROM approval_requests WHERE status = ?
		ORDER BY json_extract(proposal, '$.confidence') DESC, requested_at, id
	`, types.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var reqs []*types.ApprovalRequest
	for rows.Next() {
		req, err := scanApprovalRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func scanApprovalRequest(row rowScanner) (*types.ApprovalRequest, error) {
	var req types.ApprovalRequest
	var proposal string
	var resolvedAt sql.NullTime

	err := row.Scan(&req.ID, &req.RunID, &proposal, &req.Status, &req.RequestedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(proposal), &req.Proposal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}
