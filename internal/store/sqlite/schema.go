package sqlite

// CreateRawEventTableSQL creates the append-only event log. seq records
// insertion order and breaks ties between equal timestamps; ts is Unix
// nanoseconds in UTC.
const CreateRawEventTableSQL = `
CREATE TABLE IF NOT EXISTS raw_event (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    user_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    value REAL NOT NULL,
    ts INTEGER NOT NULL
)`

// CreateDailyAggregateTableSQL creates the per-user, per-day aggregate table.
// date is stored as YYYY-MM-DD so text order is date order.
const CreateDailyAggregateTableSQL = `
CREATE TABLE IF NOT EXISTS daily_aggregate (
    user_id INTEGER NOT NULL,
    date TEXT NOT NULL,
    total_sleep REAL NOT NULL DEFAULT 0,
    total_screen REAL NOT NULL DEFAULT 0,
    total_steps REAL NOT NULL DEFAULT 0,
    mood INTEGER,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, date)
)`

var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_raw_event_user_ts ON raw_event(user_id, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_event_ts ON raw_event(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_aggregate_date ON daily_aggregate(date)`,
}

// AllSchemaSQL returns all schema creation statements in order.
func AllSchemaSQL() []string {
	stmts := []string{CreateRawEventTableSQL, CreateDailyAggregateTableSQL}
	return append(stmts, CreateIndexesSQL...)
}
