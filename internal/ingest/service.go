// Package ingest accepts single metric events and keeps the day's aggregate
// current.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/keylock"
	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/internal/metrics"
	"github.com/vitalog/vitalog/internal/rule"
	"github.com/vitalog/vitalog/internal/store"
	"github.com/vitalog/vitalog/pkg/types"
)

// Receipt describes a successful ingest.
type Receipt struct {
	EventID   string               `json:"event_id"`
	Date      types.Date           `json:"date"`
	Aggregate types.DailyAggregate `json:"aggregate"`
}

// Service appends events and applies them to the day's aggregate.
type Service struct {
	events  store.EventStore
	aggs    store.AggregateStore
	locks   *keylock.Locker
	now     func() time.Time
	logger  *bolt.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the source of ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocker shares a Locker with the repair aggregator. Both must use the
// same Locker for repair to exclude ingest on its date.
func WithLocker(l *keylock.Locker) Option {
	return func(s *Service) { s.locks = l }
}

func WithLogger(l *bolt.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates an ingestion service over the given stores.
func NewService(events store.EventStore, aggs store.AggregateStore, opts ...Option) *Service {
	s := &Service{
		events: events,
		aggs:   aggs,
		now:    time.Now,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = keylock.New(keylock.DefaultStripes)
	}
	return s
}

// Ingest records one event stamped with the current time and applies it to
// the aggregate for (userID, today UTC).
//
// Validation failures return InvalidKind or InvalidValue without writing.
// A failed append returns a retryable storage error with nothing written.
// A failure after the append returns a PartialWriteError: the event is
// stored but the aggregate is stale until the day is repaired.
func (s *Service) Ingest(ctx context.Context, userID int64, kind types.Kind, value float64) (*Receipt, error) {
	start := time.Now()

	if err := rule.Validate(kind, value); err != nil {
		s.metrics.Ingest(kindLabel(kind), metrics.OutcomeInvalid, 0)
		logging.With(s.logger.Debug(), logging.Component("ingest"), logging.UserID(userID),
			logging.Kind(kind), logging.Value(value), logging.Error(err)).Msg("rejected event")
		return nil, err
	}

	ts, date, unlock := s.lockToday(userID)
	defer unlock()

	id, err := s.events.Append(ctx, userID, kind, value, ts)
	if err != nil {
		s.metrics.Ingest(kind.String(), metrics.OutcomeAppendFailed, 0)
		logging.With(s.logger.Error(), logging.Component("ingest"), logging.UserID(userID),
			logging.Kind(kind), logging.Error(err)).Msg("event append failed")
		return nil, verrors.NewStorageError(verrors.CodeAppendFailed, "failed to append event", err)
	}

	agg, err := s.applyToAggregate(ctx, types.RawEvent{ID: id, UserID: userID, Kind: kind, Value: value, Timestamp: ts})
	if err != nil {
		s.metrics.Ingest(kind.String(), metrics.OutcomePartial, 0)
		logging.With(s.logger.Error(), logging.Component("ingest"), logging.UserID(userID),
			logging.Date(date), logging.EventID(id), logging.Error(err)).Msg("aggregate update failed after append; repair required")
		return nil, verrors.NewPartialWriteError(id, date.String(), err)
	}

	s.metrics.Ingest(kind.String(), metrics.OutcomeOK, time.Since(start))
	logging.With(s.logger.Debug(), logging.Component("ingest"), logging.UserID(userID),
		logging.Date(date), logging.Kind(kind), logging.EventID(id), logging.Duration(time.Since(start))).Msg("event ingested")

	return &Receipt{EventID: id, Date: date, Aggregate: agg}, nil
}

// lockToday locks (userID, today) and reads the timestamp while holding the
// lock, so timestamps on one key increase in the order events are applied.
// If midnight passes between choosing the key and reading the clock, the
// lock is released and taken again for the new day.
func (s *Service) lockToday(userID int64) (time.Time, types.Date, func()) {
	for {
		date := types.DateOf(s.now())
		unlock := s.locks.LockKey(userID, date)
		ts := s.now().UTC()
		if types.DateOf(ts) == date {
			return ts, date, unlock
		}
		unlock()
	}
}

// IngestNamed is Ingest for callers holding the wire name of the kind.
func (s *Service) IngestNamed(ctx context.Context, userID int64, kindName string, value float64) (*Receipt, error) {
	kind, err := types.ParseKind(kindName)
	if err != nil {
		s.metrics.Ingest("unknown", metrics.OutcomeInvalid, 0)
		return nil, rule.InvalidKind(kindName)
	}
	return s.Ingest(ctx, userID, kind, value)
}

func (s *Service) applyToAggregate(ctx context.Context, ev types.RawEvent) (types.DailyAggregate, error) {
	cur, err := s.aggs.Get(ctx, ev.UserID, ev.Date())
	if err != nil {
		return types.DailyAggregate{}, fmt.Errorf("read aggregate: %w", err)
	}
	next, err := rule.Apply(cur, ev)
	if err != nil {
		return types.DailyAggregate{}, err
	}
	if err := s.aggs.Put(ctx, next); err != nil {
		return types.DailyAggregate{}, fmt.Errorf("write aggregate: %w", err)
	}
	return next, nil
}

// Backfill appends a validated event with an explicit timestamp. The
// aggregate is not touched; run a repair of the event's date afterwards.
func (s *Service) Backfill(ctx context.Context, userID int64, kind types.Kind, value float64, ts time.Time) (string, error) {
	if err := rule.Validate(kind, value); err != nil {
		return "", err
	}
	if ts.IsZero() {
		return "", verrors.NewValidationError(verrors.CodeInvalidDate, "backfill requires a timestamp")
	}

	id, err := s.events.Append(ctx, userID, kind, value, ts.UTC())
	if err != nil {
		return "", verrors.NewStorageError(verrors.CodeAppendFailed, "failed to append event", err)
	}
	logging.With(s.logger.Info(), logging.Component("ingest"), logging.Operation("backfill"),
		logging.UserID(userID), logging.Date(types.DateOf(ts)), logging.Kind(kind), logging.EventID(id)).Msg("event backfilled")
	return id, nil
}

func kindLabel(k types.Kind) string {
	if k.Valid() {
		return k.String()
	}
	return "unknown"
}
