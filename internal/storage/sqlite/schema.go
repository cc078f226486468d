package sqlite

const schema = `
-- Per-type time-ordered event log (range scans by type)
CREATE TABLE IF NOT EXISTS events_by_type (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    type TEXT NOT NULL,
    ts_ms INTEGER NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_by_type_type_ts ON events_by_type(type, ts_ms, seq);
CREATE INDEX IF NOT EXISTS idx_events_by_type_ts ON events_by_type(ts_ms);

-- Per-calendar-day (UTC) time-ordered event log
CREATE TABLE IF NOT EXISTS events_by_day (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    day TEXT NOT NULL,
    ts_ms INTEGER NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_by_day_day_ts ON events_by_day(day, ts_ms, seq);
CREATE INDEX IF NOT EXISTS idx_events_by_day_ts ON events_by_day(ts_ms);

-- Individually addressable copies, each with its own expiry
CREATE TABLE IF NOT EXISTS event_points (
    id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    expires_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_points_expires ON event_points(expires_at_ms);

-- Capped most-recent list, trimmed on every write
CREATE TABLE IF NOT EXISTS recent_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    payload TEXT NOT NULL
);

-- Job queue
CREATE TABLE IF NOT EXISTS jobs (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    priority INTEGER NOT NULL DEFAULT 0,
    delay_ms INTEGER NOT NULL DEFAULT 0,
    run_at_ms INTEGER NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0 CHECK(progress >= 0 AND progress <= 100),
    status TEXT NOT NULL DEFAULT 'waiting' CHECK(status IN ('waiting', 'active', 'completed', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3 CHECK(max_attempts >= 1),
    backoff_ms INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    finished_at_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(status, priority, run_at_ms, seq);
`
