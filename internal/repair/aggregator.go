// Package repair recomputes daily aggregates from the raw event log.
package repair

import (
	"context"
	"fmt"
	"sort"
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

// Result summarizes the recomputation of one date.
type Result struct {
	Date       types.Date             `json:"date"`
	Users      int                    `json:"users"`
	Events     int                    `json:"events"`
	Skipped    int                    `json:"skipped"`
	Aggregates []types.DailyAggregate `json:"aggregates"`
	Duration   time.Duration          `json:"duration_ns"`
}

// Drift is a stored aggregate that disagrees with the event log.
// Stored or Expected is nil when the row is missing on that side.
type Drift struct {
	UserID   int64                 `json:"user_id"`
	Stored   *types.DailyAggregate `json:"stored,omitempty"`
	Expected *types.DailyAggregate `json:"expected,omitempty"`
}

// Aggregator rebuilds a date's aggregates from its events.
type Aggregator struct {
	events  store.EventStore
	aggs    store.AggregateStore
	locks   *keylock.Locker
	logger  *bolt.Logger
	metrics *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLocker must be given the ingest service's Locker so that a repair
// excludes ingest on its date.
func WithLocker(l *keylock.Locker) Option {
	return func(a *Aggregator) { a.locks = l }
}

func WithLogger(l *bolt.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an aggregator over the given stores.
func NewAggregator(events store.EventStore, aggs store.AggregateStore, opts ...Option) *Aggregator {
	a := &Aggregator{events: events, aggs: aggs, logger: logging.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.locks == nil {
		a.locks = keylock.New(keylock.DefaultStripes)
	}
	return a
}

// RepairDay replaces every aggregate on date with one folded from that
// user's events in timestamp order, starting from empty. Users without
// events on date end up with no row. The replacement is a single
// transaction, so a failure leaves the date as it was. Running it twice
// yields identical rows.
func (a *Aggregator) RepairDay(ctx context.Context, date types.Date) (*Result, error) {
	start := time.Now()

	unlock := a.locks.LockDate(date)
	defer unlock()

	res, err := a.compute(ctx, date)
	if err == nil {
		err = a.aggs.ReplaceDay(ctx, date, res.Aggregates)
	}
	if err != nil {
		a.metrics.Repair(false, 0, 0, time.Since(start))
		logging.With(a.logger.Error(), logging.Component("repair"), logging.Operation("repair_day"),
			logging.Date(date), logging.Error(err)).Msg("repair failed")
		return nil, verrors.NewRepairError(date.String(), err)
	}

	res.Duration = time.Since(start)
	a.metrics.Repair(true, len(res.Aggregates), res.Skipped, res.Duration)
	logging.With(a.logger.Info(), logging.Component("repair"), logging.Operation("repair_day"),
		logging.Date(date), logging.Count("users", res.Users), logging.Count("events", res.Events),
		logging.Count("skipped", res.Skipped), logging.Duration(res.Duration)).Msg("day repaired")
	return res, nil
}

// RepairRange repairs each date from..to inclusive in order, stopping at
// the first failure. Results for completed dates are returned either way.
func (a *Aggregator) RepairRange(ctx context.Context, from, to types.Date) ([]*Result, error) {
	if to.Before(from) {
		return nil, verrors.NewValidationError(verrors.CodeInvalidDate,
			fmt.Sprintf("range end %s is before start %s", to, from))
	}
	var results []*Result
	for d := from; !d.After(to); d = d.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return results, verrors.NewRepairError(d.String(), err)
		}
		res, err := a.RepairDay(ctx, d)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Diff compares stored aggregates for date against a fresh fold of its
// events without writing anything.
func (a *Aggregator) Diff(ctx context.Context, date types.Date) ([]Drift, error) {
	res, err := a.compute(ctx, date)
	if err != nil {
		return nil, verrors.NewStorageError(verrors.CodeReadFailed, "failed to fold events", err)
	}
	stored, err := a.aggs.ForDate(ctx, date)
	if err != nil {
		return nil, verrors.NewStorageError(verrors.CodeReadFailed, "failed to read aggregates", err)
	}

	expected := make(map[int64]types.DailyAggregate, len(res.Aggregates))
	for _, agg := range res.Aggregates {
		expected[agg.UserID] = agg
	}

	var drift []Drift
	for _, s := range stored {
		s := s
		e, ok := expected[s.UserID]
		delete(expected, s.UserID)
		switch {
		case !ok:
			drift = append(drift, Drift{UserID: s.UserID, Stored: &s})
		case !e.Equal(s):
			drift = append(drift, Drift{UserID: s.UserID, Stored: &s, Expected: &e})
		}
	}
	for _, e := range res.Aggregates {
		if _, missing := expected[e.UserID]; missing {
			e := e
			drift = append(drift, Drift{UserID: e.UserID, Expected: &e})
		}
	}
	return drift, nil
}

// compute folds date's events per user. Events that no longer validate are
// skipped and logged rather than failing the whole date.
func (a *Aggregator) compute(ctx context.Context, date types.Date) (*Result, error) {
	events, err := a.events.EventsOn(ctx, date)
	if err != nil {
		return nil, err
	}

	res := &Result{Date: date, Events: len(events)}
	for _, group := range groupByUser(events) {
		valid := group[:0:0]
		for _, ev := range group {
			if err := rule.Validate(ev.Kind, ev.Value); err != nil {
				res.Skipped++
				logging.With(a.logger.Warn(), logging.Component("repair"), logging.Date(date),
					logging.UserID(ev.UserID), logging.EventID(ev.ID), logging.Error(err)).Msg("skipping invalid stored event")
				continue
			}
			valid = append(valid, ev)
		}
		res.Users++

		rule.SortEvents(valid)
		agg, err := rule.Fold(valid)
		if err != nil {
			return nil, err
		}
		if agg != nil {
			res.Aggregates = append(res.Aggregates, *agg)
		}
	}
	return res, nil
}

// groupByUser splits events into per-user runs, keeping each user's
// events in their original relative order.
func groupByUser(events []types.RawEvent) [][]types.RawEvent {
	sort.SliceStable(events, func(i, j int) bool { return events[i].UserID < events[j].UserID })

	var groups [][]types.RawEvent
	for i := 0; i < len(events); {
		j := i + 1
		for j < len(events) && events[j].UserID == events[i].UserID {
			j++
		}
		groups = append(groups, events[i:j])
		i = j
	}
	return groups
}
