package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalog/vitalog/internal/store"
	"github.com/vitalog/vitalog/pkg/types"
)

// Store persists raw events and daily aggregates in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	ids    *types.ULIDGenerator
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool. Call Migrate before first use.
func New(pool *pgxpool.Pool, schema string) *Store {
	if schema == "" {
		schema = "public"
	}
	return &Store{pool: pool, schema: schema, ids: types.NewULIDGenerator()}
}

// Open connects with cfg and creates the tables if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(pool, cfg.Schema)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) eventsTable() string {
	return pgx.Identifier{s.schema, "raw_event"}.Sanitize()
}

func (s *Store) aggregatesTable() string {
	return pgx.Identifier{s.schema, "daily_aggregate"}.Sanitize()
}

// schemaSQL returns the DDL for the configured schema.
func (s *Store) schemaSQL() []string {
	ev, agg := s.eventsTable(), s.aggregatesTable()
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{s.schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			user_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		)`, ev),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS raw_event_user_ts_idx ON %s (user_id, ts)`, ev),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS raw_event_ts_idx ON %s (ts)`, ev),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			user_id BIGINT NOT NULL,
			date DATE NOT NULL,
			total_sleep DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_screen DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_steps DOUBLE PRECISION NOT NULL DEFAULT 0,
			mood SMALLINT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, date)
		)`, agg),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS daily_aggregate_date_idx ON %s (date)`, agg),
	}
}

// Migrate creates the schema and tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.schemaSQL() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Append implements store.EventStore.
func (s *Store) Append(ctx context.Context, userID int64, kind types.Kind, value float64, ts time.Time) (string, error) {
	ts = ts.UTC()
	id, err := s.ids.NewEventID(ts)
	if err != nil {
		return "", fmt.Errorf("postgres: generate event id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, user_id, kind, value, ts) VALUES ($1, $2, $3, $4, $5)`, s.eventsTable()),
		id, userID, kind.String(), value, ts)
	if err != nil {
		return "", fmt.Errorf("postgres: append event: %w", err)
	}
	return id, nil
}

// EventsFor implements store.EventStore.
func (s *Store) EventsFor(ctx context.Context, userID int64, date types.Date) ([]types.RawEvent, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, kind, value, ts FROM %s
		WHERE user_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC, seq ASC`, s.eventsTable()),
		userID, date.Start(), date.End())
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	return scanEvents(rows)
}

// EventsOn implements store.EventStore.
func (s *Store) EventsOn(ctx context.Context, date types.Date) ([]types.RawEvent, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, kind, value, ts FROM %s
		WHERE ts >= $1 AND ts < $2
		ORDER BY user_id ASC, ts ASC, seq ASC`, s.eventsTable()),
		date.Start(), date.End())
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]types.RawEvent, error) {
	defer rows.Close()

	var events []types.RawEvent
	for rows.Next() {
		var (
			ev       types.RawEvent
			kindName string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &kindName, &ev.Value, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Kind, _ = types.ParseKind(kindName)
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

// Get implements store.AggregateStore.
func (s *Store) Get(ctx context.Context, userID int64, date types.Date) (*types.DailyAggregate, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT user_id, date, total_sleep, total_screen, total_steps, mood
		FROM %s WHERE user_id = $1 AND date = $2::date`, s.aggregatesTable()),
		userID, date.Start())

	agg, err := scanAggregate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get aggregate: %w", err)
	}
	return agg, nil
}

func (s *Store) upsertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %s (user_id, date, total_sleep, total_screen, total_steps, mood, updated_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, now())
		ON CONFLICT (user_id, date) DO UPDATE SET
			total_sleep = EXCLUDED.total_sleep,
			total_screen = EXCLUDED.total_screen,
			total_steps = EXCLUDED.total_steps,
			mood = EXCLUDED.mood,
			updated_at = EXCLUDED.updated_at`, s.aggregatesTable())
}

// Put implements store.AggregateStore.
func (s *Store) Put(ctx context.Context, agg types.DailyAggregate) error {
	if _, err := s.pool.Exec(ctx, s.upsertSQL(), aggregateArgs(agg)...); err != nil {
		return fmt.Errorf("postgres: put aggregate: %w", err)
	}
	return nil
}

// Range implements store.AggregateStore.
func (s *Store) Range(ctx context.Context, userID int64, from, to types.Date) ([]types.DailyAggregate, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT user_id, date, total_sleep, total_screen, total_steps, mood
		FROM %s WHERE user_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date ASC`, s.aggregatesTable()),
		userID, from.Start(), to.Start())
	if err != nil {
		return nil, fmt.Errorf("postgres: query aggregates: %w", err)
	}
	return scanAggregates(rows)
}

// ForDate implements store.AggregateStore.
func (s *Store) ForDate(ctx context.Context, date types.Date) ([]types.DailyAggregate, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT user_id, date, total_sleep, total_screen, total_steps, mood
		FROM %s WHERE date = $1::date
		ORDER BY user_id ASC`, s.aggregatesTable()),
		date.Start())
	if err != nil {
		return nil, fmt.Errorf("postgres: query aggregates: %w", err)
	}
	return scanAggregates(rows)
}

// ReplaceDay implements store.AggregateStore.
func (s *Store) ReplaceDay(ctx context.Context, date types.Date, aggs []types.DailyAggregate) error {
	if err := store.CheckReplaceDay(date, aggs); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE date = $1::date`, s.aggregatesTable()), date.Start()); err != nil {
		return fmt.Errorf("postgres: clear aggregates for %s: %w", date, err)
	}

	batch := &pgx.Batch{}
	upsert := s.upsertSQL()
	for _, agg := range aggs {
		batch.Queue(upsert, aggregateArgs(agg)...)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert aggregates for %s: %w", date, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func aggregateArgs(agg types.DailyAggregate) []any {
	var mood *int16
	if agg.Mood != nil {
		m := int16(*agg.Mood)
		mood = &m
	}
	return []any{agg.UserID, agg.Date.Start(), agg.TotalSleep, agg.TotalScreen, agg.TotalSteps, mood}
}

func scanAggregate(row pgx.Row) (*types.DailyAggregate, error) {
	var (
		agg  types.DailyAggregate
		date time.Time
		mood *int16
	)
	if err := row.Scan(&agg.UserID, &date, &agg.TotalSleep, &agg.TotalScreen, &agg.TotalSteps, &mood); err != nil {
		return nil, err
	}
	agg.Date = types.DateOf(date)
	if mood != nil {
		agg.Mood = types.IntPtr(int(*mood))
	}
	return &agg, nil
}

func scanAggregates(rows pgx.Rows) ([]types.DailyAggregate, error) {
	defer rows.Close()

	var out []types.DailyAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan aggregate: %w", err)
		}
		out = append(out, *agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate aggregates: %w", err)
	}
	return out, nil
}
