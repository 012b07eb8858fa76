package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/accordhq/accord/internal/events"
)

// StoreEvent persists one engine event
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.EngineEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if !event.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", event.Severity)
	}

	var data sql.NullString
	if event.Data != nil {
		b, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_events (id, type, timestamp, run_id, phase_id, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Type, event.Timestamp, event.RunID, event.PhaseID,
		event.Severity, event.Message, data)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// GetEvents returns events matching the filter, newest first
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.EngineEvent, error) {
	query := `
		SELECT id, type, timestamp, run_id, phase_id, severity, message, data
		FROM engine_events WHERE 1=1`
	args := []interface{}{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.PhaseID != "" {
		query += " AND phase_id = ?"
		args = append(args, filter.PhaseID)
	}
	if filter.Type != nil {
		query += " AND type = ?"
		args = append(args, *filter.Type)
	}
	if filter.Severity != nil {
		query += " AND severity = ?"
		args = append(args, *filter.Severity)
	}
	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []*events.EngineEvent
	for rows.Next() {
		var event events.EngineEvent
		var phaseID, data sql.NullString

		if err := rows.Scan(&event.ID, &event.Type, &event.Timestamp, &event.RunID,
			&phaseID, &event.Severity, &event.Message, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.PhaseID = phaseID.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		result = append(result, &event)
	}
	return result, rows.Err()
}

// GetConfig retrieves a config value by key
func (s *SQLiteStorage) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}

// SetConfig stores a config value
func (s *SQLiteStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config: %w", err)
	}
	return nil
}
