// Package report serves read-side views over daily aggregates.
package report

import (
	"context"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/store"
	"github.com/vitalog/vitalog/pkg/types"
)

// WeekDays is the number of dates covered by a weekly report.
const WeekDays = 7

// Service answers weekly and daily queries.
type Service struct {
	aggs store.AggregateStore
}

// NewService creates a report service over aggs.
func NewService(aggs store.AggregateStore) *Service {
	return &Service{aggs: aggs}
}

// Weekly returns the user's aggregates for [end-6, end], oldest first.
// Dates with no aggregate are omitted, so the result may be empty.
func (s *Service) Weekly(ctx context.Context, userID int64, end types.Date) ([]types.DailyAggregate, error) {
	from := WeekStart(end)
	aggs, err := s.aggs.Range(ctx, userID, from, end)
	if err != nil {
		return nil, verrors.NewStorageError(verrors.CodeReadFailed, "failed to read weekly aggregates", err).
			WithDetails(map[string]interface{}{"user_id": userID, "end": end.String()})
	}
	if aggs == nil {
		aggs = []types.DailyAggregate{}
	}
	return aggs, nil
}

// Daily returns every user's aggregate for date ordered by user ID.
func (s *Service) Daily(ctx context.Context, date types.Date) ([]types.DailyAggregate, error) {
	aggs, err := s.aggs.ForDate(ctx, date)
	if err != nil {
		return nil, verrors.NewStorageError(verrors.CodeReadFailed, "failed to read daily aggregates", err).
			WithDetails(map[string]interface{}{"date": date.String()})
	}
	if aggs == nil {
		aggs = []types.DailyAggregate{}
	}
	return aggs, nil
}

// WeekStart returns the first date of the week ending on end.
func WeekStart(end types.Date) types.Date {
	return end.AddDays(-(WeekDays - 1))
}

// Dense expands a sparse weekly result to exactly seven points. Missing
// dates get zero totals and no mood; present entries are copied.
func Dense(userID int64, end types.Date, week []types.DailyAggregate) []types.DailyAggregate {
	byDate := make(map[types.Date]types.DailyAggregate, len(week))
	for _, a := range week {
		byDate[a.Date] = a
	}

	out := make([]types.DailyAggregate, 0, WeekDays)
	for d := WeekStart(end); !d.After(end); d = d.AddDays(1) {
		if a, ok := byDate[d]; ok {
			out = append(out, a.Clone())
			continue
		}
		out = append(out, types.NewDailyAggregate(userID, d))
	}
	return out
}
