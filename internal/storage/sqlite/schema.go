package sqlite

const schema = `
-- Plans table: one row per plan, the durable plan repository
CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    body TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'medium',
    version INTEGER NOT NULL DEFAULT 1 CHECK(version >= 1),
    status TEXT NOT NULL DEFAULT 'active',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    source_recommendation_ids TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
CREATE INDEX IF NOT EXISTS idx_plans_priority ON plans(priority);

-- Journal: append-only log of applied mutations with reversible state
CREATE TABLE IF NOT EXISTS journal (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    proposal TEXT NOT NULL,
    prior_state TEXT NOT NULL DEFAULT '[]',
    new_state TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    rolled_back INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_journal_run ON journal(run_id);

-- Approval requests: staged proposals awaiting a human decision
CREATE TABLE IF NOT EXISTS approval_requests (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    proposal TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    requested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_approvals_status ON approval_requests(status);
CREATE INDEX IF NOT EXISTS idx_approvals_run ON approval_requests(run_id);

-- Analyzer output cache: content-addressed, last-writer-wins
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    ttl_seconds INTEGER NOT NULL DEFAULT 0
);

-- Checkpoints: latest progress per (run_id, phase_id)
CREATE TABLE IF NOT EXISTS checkpoints (
    run_id TEXT NOT NULL,
    phase_id TEXT NOT NULL,
    progress TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, phase_id)
);

-- Engine events: structured activity log
CREATE TABLE IF NOT EXISTS engine_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    run_id TEXT NOT NULL,
    phase_id TEXT,
    severity TEXT NOT NULL DEFAULT 'info',
    message TEXT NOT NULL,
    data TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_run ON engine_events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON engine_events(type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON engine_events(timestamp);

-- Config table for engine settings
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
