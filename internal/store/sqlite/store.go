// Package sqlite implements the event and aggregate stores on a single
// SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitalog/vitalog/internal/store"
	"github.com/vitalog/vitalog/pkg/types"
)

// Store persists raw events and daily aggregates in SQLite. Writes go
// through a single connection guarded by mu; reads use a separate pool.
type Store struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool
	mu     sync.Mutex
	ids    *types.ULIDGenerator
	now    func() time.Time

	appendStmt *sql.Stmt
	putStmt    *sql.Stmt
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dbPath and initializes the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:  db,
		ids: types.NewULIDGenerator(),
		now: time.Now,
	}

	// Schema first: the read-only pool cannot create the file.
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	if s.appendStmt, err = db.Prepare(`
		INSERT INTO raw_event (id, user_id, kind, value, ts) VALUES (?, ?, ?, ?, ?)`); err != nil {
		s.Close()
		return nil, fmt.Errorf("sqlite: failed to prepare append statement: %w", err)
	}
	if s.putStmt, err = db.Prepare(upsertAggregateSQL); err != nil {
		s.Close()
		return nil, fmt.Errorf("sqlite: failed to prepare upsert statement: %w", err)
	}

	return s, nil
}

const upsertAggregateSQL = `
	INSERT INTO daily_aggregate (user_id, date, total_sleep, total_screen, total_steps, mood, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, date) DO UPDATE SET
		total_sleep = excluded.total_sleep,
		total_screen = excluded.total_screen,
		total_steps = excluded.total_steps,
		mood = excluded.mood,
		updated_at = excluded.updated_at`

func (s *Store) initSchema() error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks both connections.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: write connection: %w", err)
	}
	if err := s.readDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: read connection: %w", err)
	}
	return nil
}

// Close releases prepared statements and both connection pools.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.appendStmt, s.putStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.readDB != nil {
		s.readDB.Close()
	}
	return s.db.Close()
}

// Append implements store.EventStore.
func (s *Store) Append(ctx context.Context, userID int64, kind types.Kind, value float64, ts time.Time) (string, error) {
	ts = ts.UTC()
	id, err := s.ids.NewEventID(ts)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to generate event id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.appendStmt.ExecContext(ctx, id, userID, kind.String(), value, ts.UnixNano()); err != nil {
		return "", fmt.Errorf("sqlite: failed to append event: %w", err)
	}
	return id, nil
}

// EventsFor implements store.EventStore.
func (s *Store) EventsFor(ctx context.Context, userID int64, date types.Date) ([]types.RawEvent, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, user_id, kind, value, ts FROM raw_event
		WHERE user_id = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC, seq ASC`,
		userID, date.Start().UnixNano(), date.End().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsOn implements store.EventStore.
func (s *Store) EventsOn(ctx context.Context, date types.Date) ([]types.RawEvent, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, user_id, kind, value, ts FROM raw_event
		WHERE ts >= ? AND ts < ?
		ORDER BY user_id ASC, ts ASC, seq ASC`,
		date.Start().UnixNano(), date.End().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// scanEvents reads event rows. A kind name that no longer parses is
// returned as the zero Kind so callers can decide to skip it.
func scanEvents(rows *sql.Rows) ([]types.RawEvent, error) {
	var events []types.RawEvent
	for rows.Next() {
		var (
			ev       types.RawEvent
			kindName string
			tsNanos  int64
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &kindName, &ev.Value, &tsNanos); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan event: %w", err)
		}
		ev.Kind, _ = types.ParseKind(kindName)
		ev.Timestamp = time.Unix(0, tsNanos).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate events: %w", err)
	}
	return events, nil
}

// Get implements store.AggregateStore.
func (s *Store) Get(ctx context.Context, userID int64, date types.Date) (*types.DailyAggregate, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT user_id, date, total_sleep, total_screen, total_steps, mood
		FROM daily_aggregate WHERE user_id = ? AND date = ?`,
		userID, date.String())

	agg, err := scanAggregate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get aggregate: %w", err)
	}
	return agg, nil
}

// Put implements store.AggregateStore.
func (s *Store) Put(ctx context.Context, agg types.DailyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.putStmt.ExecContext(ctx, aggregateArgs(agg, s.now())...); err != nil {
		return fmt.Errorf("sqlite: failed to put aggregate: %w", err)
	}
	return nil
}

// Range implements store.AggregateStore.
func (s *Store) Range(ctx context.Context, userID int64, from, to types.Date) ([]types.DailyAggregate, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT user_id, date, total_sleep, total_screen, total_steps, mood
		FROM daily_aggregate
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query aggregates: %w", err)
	}
	defer rows.Close()
	return scanAggregates(rows)
}

// ForDate implements store.AggregateStore.
func (s *Store) ForDate(ctx context.Context, date types.Date) ([]types.DailyAggregate, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT user_id, date, total_sleep, total_screen, total_steps, mood
		FROM daily_aggregate WHERE date = ?
		ORDER BY user_id ASC`,
		date.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query aggregates: %w", err)
	}
	defer rows.Close()
	return scanAggregates(rows)
}

// ReplaceDay implements store.AggregateStore.
func (s *Store) ReplaceDay(ctx context.Context, date types.Date, aggs []types.DailyAggregate) error {
	if err := store.CheckReplaceDay(date, aggs); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_aggregate WHERE date = ?`, date.String()); err != nil {
		return fmt.Errorf("sqlite: failed to clear aggregates for %s: %w", date, err)
	}

	stmt := tx.StmtContext(ctx, s.putStmt)
	defer stmt.Close()

	now := s.now()
	for _, agg := range aggs {
		if _, err := stmt.ExecContext(ctx, aggregateArgs(agg, now)...); err != nil {
			return fmt.Errorf("sqlite: failed to insert aggregate for user %d: %w", agg.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit transaction: %w", err)
	}
	return nil
}

func aggregateArgs(agg types.DailyAggregate, now time.Time) []interface{} {
	var mood sql.NullInt64
	if agg.Mood != nil {
		mood = sql.NullInt64{Int64: int64(*agg.Mood), Valid: true}
	}
	return []interface{}{
		agg.UserID, agg.Date.String(),
		agg.TotalSleep, agg.TotalScreen, agg.TotalSteps,
		mood, now.UnixNano(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAggregate(row rowScanner) (*types.DailyAggregate, error) {
	var (
		agg     types.DailyAggregate
		dateStr string
		mood    sql.NullInt64
	)
	if err := row.Scan(&agg.UserID, &dateStr, &agg.TotalSleep, &agg.TotalScreen, &agg.TotalSteps, &mood); err != nil {
		return nil, err
	}
	date, err := types.ParseDate(dateStr)
	if err != nil {
		return nil, err
	}
	agg.Date = date
	if mood.Valid {
		agg.Mood = types.IntPtr(int(mood.Int64))
	}
	return &agg, nil
}

func scanAggregates(rows *sql.Rows) ([]types.DailyAggregate, error) {
	var out []types.DailyAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan aggregate: %w", err)
		}
		out = append(out, *agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate aggregates: %w", err)
	}
	return out, nil
}
