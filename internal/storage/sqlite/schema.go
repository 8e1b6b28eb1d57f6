package sqlite

// SchemaVersion is the semver of the current on-disk layout. It is recorded
// in the meta table on first open and stamped into every checkpoint row.
// Bump the minor for additive migrations; a major bump means older binaries
// must refuse to open the database.
const SchemaVersion = "v1.1.0"

const schema = `
-- Sessions table
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'running',
    model TEXT NOT NULL DEFAULT '',
    parent_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
    worker TEXT NOT NULL DEFAULT '',
    depth INTEGER NOT NULL DEFAULT 0 CHECK(depth >= 0),
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    final_text TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);

-- Checkpoints table (one row per session, replaced on every save)
CREATE TABLE IF NOT EXISTS checkpoints (
    session_id TEXT PRIMARY KEY,
    schema_version TEXT NOT NULL,
    transcript TEXT NOT NULL,
    pending TEXT,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Interrupts table (gated tool calls; rows are kept after decision for audit)
CREATE TABLE IF NOT EXISTS interrupts (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    call_id TEXT NOT NULL,
    tool TEXT NOT NULL,
    args TEXT NOT NULL DEFAULT '{}',
    description TEXT NOT NULL DEFAULT '',
    policy TEXT NOT NULL DEFAULT '',
    allowed TEXT NOT NULL DEFAULT '[]',
    state TEXT NOT NULL DEFAULT 'awaiting_approval',
    decision TEXT,
    reason TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    decided_at DATETIME,
    resumed_at DATETIME,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_interrupts_session ON interrupts(session_id);
CREATE INDEX IF NOT EXISTS idx_interrupts_state ON interrupts(state);
CREATE UNIQUE INDEX IF NOT EXISTS idx_interrupts_call ON interrupts(session_id, call_id);

-- Trading signals table
CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    exchange TEXT NOT NULL DEFAULT '',
    direction TEXT NOT NULL CHECK(direction IN ('long', 'short')),
    entry REAL NOT NULL CHECK(entry > 0),
    stop_loss REAL NOT NULL CHECK(stop_loss > 0),
    targets TEXT NOT NULL DEFAULT '[]',
    size_pct REAL NOT NULL CHECK(size_pct > 0 AND size_pct <= 100),
    leverage REAL NOT NULL DEFAULT 1 CHECK(leverage >= 1),
    status TEXT NOT NULL DEFAULT 'active',
    rationale TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at);

-- Memories table
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Agent events table (activity feed)
CREATE TABLE IF NOT EXISTS agent_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    worker TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_agent_events_session ON agent_events(session_id);
CREATE INDEX IF NOT EXISTS idx_agent_events_timestamp ON agent_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_agent_events_type ON agent_events(type);
CREATE INDEX IF NOT EXISTS idx_agent_events_severity ON agent_events(severity);

-- Meta table (key-value workspace settings, holds schema_version)
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
