// Package store defines the persistence contracts for raw events and daily
// aggregates. Backends live in the sqlite and postgres subpackages.
package store

import (
	"context"
	"time"

	"github.com/vitalog/vitalog/pkg/types"
)

// EventStore is the append-only log of raw events. There is no update or
// delete; duplicate events are permitted.
type EventStore interface {
	// Append persists one event and returns its assigned ID. ts is required;
	// callers wanting "now" pass their own clock reading.
	Append(ctx context.Context, userID int64, kind types.Kind, value float64, ts time.Time) (string, error)

	// EventsFor returns one user's events on date, oldest first. Events with
	// equal timestamps are returned in insertion order.
	EventsFor(ctx context.Context, userID int64, date types.Date) ([]types.RawEvent, error)

	// EventsOn returns every user's events on date ordered by user, then as EventsFor.
	EventsOn(ctx context.Context, date types.Date) ([]types.RawEvent, error)
}

// AggregateStore holds at most one aggregate per (user, date).
type AggregateStore interface {
	// Get returns nil, nil when no aggregate exists for the key.
	Get(ctx context.Context, userID int64, date types.Date) (*types.DailyAggregate, error)

	// Put inserts or replaces the aggregate for its key.
	Put(ctx context.Context, agg types.DailyAggregate) error

	// Range returns one user's aggregates with from <= date <= to, date ascending.
	Range(ctx context.Context, userID int64, from, to types.Date) ([]types.DailyAggregate, error)

	// ForDate returns all users' aggregates for date ordered by user.
	ForDate(ctx context.Context, date types.Date) ([]types.DailyAggregate, error)

	// ReplaceDay atomically removes every aggregate for date and inserts aggs.
	// Either all of it is applied or none of it is.
	ReplaceDay(ctx context.Context, date types.Date, aggs []types.DailyAggregate) error
}

// Store is a backend providing both contracts over one database.
type Store interface {
	EventStore
	AggregateStore
	Ping(ctx context.Context) error
	Close() error
}
