// Package storage defines the persistence interface for the engine:
// the plan repository, the editor's journal, staged approval requests,
// the analyzer cache, run checkpoints, and the engine event log.
package storage

import (
	"context"
	"time"

	"github.com/accordhq/accord/internal/events"
	"github.com/accordhq/accord/internal/storage/sqlite"
	"github.com/accordhq/accord/internal/types"
)

// Storage defines the interface for engine storage backends
type Storage interface {
	// Plans - the durable plan repository. All mutation goes through
	// the editor; these methods are the raw persistence primitives.
	CreatePlan(ctx context.Context, plan *types.Plan) error
	GetPlan(ctx context.Context, id string) (*types.Plan, error)
	UpdatePlan(ctx context.Context, plan *types.Plan, expectedVersion int) error
	// RestorePlan writes a plan exactly as given, bypassing the
	// version bump. Used only by rollback.
	RestorePlan(ctx context.Context, plan *types.Plan) error
	// RemovePlan hard-deletes a plan row. Used only by rollback of an
	// ADD (soft deletion is a status flip via UpdatePlan).
	RemovePlan(ctx context.Context, id string) error
	ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.Plan, error)

	// Journal - append-only log of applied mutations
	AppendJournal(ctx context.Context, entry *types.JournalEntry) error
	GetJournal(ctx context.Context, runID string) ([]*types.JournalEntry, error)
	MarkJournalRolledBack(ctx context.Context, entryID string) error

	// Approval requests
	CreateApprovalRequest(ctx context.Context, req *types.ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, id string) (*types.ApprovalRequest, error)
	ResolveApprovalRequest(ctx context.Context, id string, status types.ApprovalStatus, resolvedAt time.Time) error
	ListPendingApprovals(ctx context.Context) ([]*types.ApprovalRequest, error)

	// Analyzer cache - content-addressed, last-writer-wins
	CacheGet(ctx context.Context, key string) (string, bool, error)
	CachePut(ctx context.Context, key, value string, ttl time.Duration) error
	CachePurgeExpired(ctx context.Context) (int, error)

	// Checkpoints - keyed by (run_id, phase_id), latest wins
	SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error
	LoadCheckpoints(ctx context.Context, runID string) (map[string]*types.Checkpoint, error)

	// Engine events
	StoreEvent(ctx context.Context, event *events.EngineEvent) error
	GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.EngineEvent, error)

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".accord/accord.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".accord/accord.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = ".accord/accord.db"
	}
	return sqlite.New(cfg.Path)
}
