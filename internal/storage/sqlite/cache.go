package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CacheGet returns a cache entry's value if present and unexpired.
// Expired entries are treated as absent; they are removed lazily by
// CachePurgeExpired rather than on read.
func (s *SQLiteStorage) CacheGet(ctx context.Context, key string) (string, bool, error) {
	var value string
	var createdAt time.Time
	var ttlSeconds int64

	err := s.db.QueryRowContext(ctx, `
		SELECT value, created_at, ttl_seconds FROM cache_entries WHERE key = ?
	`, key).Scan(&value, &createdAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if ttlSeconds > 0 && time.Now().After(createdAt.Add(time.Duration(ttlSeconds)*time.Second)) {
		return "", false, nil
	}
	return value, true, nil
}

// CachePut stores a cache entry, replacing any existing value for the
// key (last-writer-wins).
func (s *SQLiteStorage) CachePut(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			ttl_seconds = excluded.ttl_seconds
	`, key, value, time.Now(), int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// CachePurgeExpired removes entries past their TTL and returns the count
func (s *SQLiteStorage) CachePurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries
		WHERE ttl_seconds > 0
		  AND datetime(created_at, '+' || ttl_seconds || ' seconds') < datetime('now')
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(affected), nil
}
