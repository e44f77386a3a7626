// Package storetest is a conformance suite shared by the store backends.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalog/vitalog/internal/store"
	"github.com/vitalog/vitalog/pkg/types"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises every store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"AppendAndEventsFor", testAppendAndEventsFor},
		{"EventsForBucketsByUTCDate", testEventsForBucketsByUTCDate},
		{"EqualTimestampsKeepInsertionOrder", testEqualTimestampsKeepInsertionOrder},
		{"EventsOnOrdersByUser", testEventsOnOrdersByUser},
		{"DuplicateEventsAllowed", testDuplicateEventsAllowed},
		{"GetAbsent", testGetAbsent},
		{"PutUpserts", testPutUpserts},
		{"MoodAbsentVsPresent", testMoodAbsentVsPresent},
		{"RangeIsInclusiveAndSorted", testRangeIsInclusiveAndSorted},
		{"ForDate", testForDate},
		{"ReplaceDay", testReplaceDay},
		{"ReplaceDayRejectsForeignDate", testReplaceDayRejectsForeignDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

var (
	day  = types.MustParseDate("2026-03-01")
	next = day.AddDays(1)
)

func at(d types.Date, offset time.Duration) time.Time {
	return d.Start().Add(offset)
}

func testAppendAndEventsFor(t *testing.T, s store.Store) {
	ctx := context.Background()

	idLate, err := s.Append(ctx, 42, types.KindSleep, 390, at(day, 9*time.Hour))
	require.NoError(t, err)
	idEarly, err := s.Append(ctx, 42, types.KindSleep, 420, at(day, 7*time.Hour))
	require.NoError(t, err)
	require.NotEqual(t, idLate, idEarly)

	events, err := s.EventsFor(ctx, 42, day)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, idEarly, events[0].ID)
	assert.Equal(t, 420.0, events[0].Value)
	assert.Equal(t, types.KindSleep, events[0].Kind)
	assert.Equal(t, int64(42), events[0].UserID)
	assert.True(t, events[0].Timestamp.Equal(at(day, 7*time.Hour)))
	assert.Equal(t, idLate, events[1].ID)
}

func testEventsForBucketsByUTCDate(t *testing.T, s store.Store) {
	ctx := context.Background()
	tokyo := time.FixedZone("JST", 9*3600)

	// 2026-03-02 08:00 JST is 2026-03-01 23:00 UTC.
	_, err := s.Append(ctx, 1, types.KindSteps, 100, time.Date(2026, 3, 2, 8, 0, 0, 0, tokyo))
	require.NoError(t, err)
	_, err = s.Append(ctx, 1, types.KindSteps, 200, at(next, 0))
	require.NoError(t, err)
	_, err = s.Append(ctx, 1, types.KindSteps, 300, at(day, -time.Nanosecond))
	require.NoError(t, err)

	events, err := s.EventsFor(ctx, 1, day)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 100.0, events[0].Value)
	assert.Equal(t, day, events[0].Date())
}

func testEqualTimestampsKeepInsertionOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := at(day, 12*time.Hour)

	var ids []string
	for _, v := range []float64{10, 20, 30} {
		id, err := s.Append(ctx, 5, types.KindSteps, v, ts)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	events, err := s.EventsFor(ctx, 5, day)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, ids[i], ev.ID)
	}
}

func testEventsOnOrdersByUser(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Append(ctx, 9, types.KindMood, 2, at(day, time.Hour))
	require.NoError(t, err)
	_, err = s.Append(ctx, 3, types.KindMood, 4, at(day, 2*time.Hour))
	require.NoError(t, err)
	_, err = s.Append(ctx, 3, types.KindSleep, 400, at(day, time.Hour))
	require.NoError(t, err)
	_, err = s.Append(ctx, 3, types.KindSleep, 500, at(next, time.Hour))
	require.NoError(t, err)

	events, err := s.EventsOn(ctx, day)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[0].UserID)
	assert.Equal(t, types.KindSleep, events[0].Kind)
	assert.Equal(t, int64(3), events[1].UserID)
	assert.Equal(t, types.KindMood, events[1].Kind)
	assert.Equal(t, int64(9), events[2].UserID)

	empty, err := s.EventsOn(ctx, day.AddDays(-10))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDuplicateEventsAllowed(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := at(day, time.Hour)

	_, err := s.Append(ctx, 1, types.KindSteps, 50, ts)
	require.NoError(t, err)
	_, err = s.Append(ctx, 1, types.KindSteps, 50, ts)
	require.NoError(t, err)

	events, err := s.EventsFor(ctx, 1, day)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func testGetAbsent(t *testing.T, s store.Store) {
	agg, err := s.Get(context.Background(), 1, day)
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func testPutUpserts(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 1, Date: day, TotalSleep: 420}))
	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 1, Date: day, TotalSleep: 390, TotalSteps: 0}))

	got, err := s.Get(ctx, 1, day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 390.0, got.TotalSleep)

	all, err := s.ForDate(ctx, day)
	require.NoError(t, err)
	assert.Len(t, all, 1, "one row per (user, date)")
}

func testMoodAbsentVsPresent(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 1, Date: day}))
	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 2, Date: day, Mood: types.IntPtr(3)}))

	a, err := s.Get(ctx, 1, day)
	require.NoError(t, err)
	assert.Nil(t, a.Mood)

	b, err := s.Get(ctx, 2, day)
	require.NoError(t, err)
	require.NotNil(t, b.Mood)
	assert.Equal(t, 3, *b.Mood)
}

func testRangeIsInclusiveAndSorted(t *testing.T, s store.Store) {
	ctx := context.Background()
	end := types.MustParseDate("2026-03-07")

	for _, d := range []types.Date{end, end.AddDays(-6), end.AddDays(-7), end.AddDays(1), end.AddDays(-3)} {
		require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 7, Date: d, TotalSteps: 1}))
	}
	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 8, Date: end, TotalSteps: 1}))

	got, err := s.Range(ctx, 7, end.AddDays(-6), end)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, end.AddDays(-6), got[0].Date)
	assert.Equal(t, end.AddDays(-3), got[1].Date)
	assert.Equal(t, end, got[2].Date)

	none, err := s.Range(ctx, 99, end.AddDays(-6), end)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testForDate(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 20, Date: day, TotalScreen: 30}))
	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 10, Date: day, TotalScreen: 60}))
	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 10, Date: next, TotalScreen: 90}))

	got, err := s.ForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].UserID)
	assert.Equal(t, 60.0, got[0].TotalScreen)
	assert.Equal(t, int64(20), got[1].UserID)
}

func testReplaceDay(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 1, Date: day, TotalSleep: 999}))
	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 2, Date: day, TotalSleep: 888}))
	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 1, Date: next, TotalSleep: 777}))

	replacement := []types.DailyAggregate{
		{UserID: 1, Date: day, TotalSleep: 420, Mood: types.IntPtr(2)},
		{UserID: 3, Date: day, TotalSteps: 0},
	}
	require.NoError(t, s.ReplaceDay(ctx, day, replacement))

	got, err := s.ForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, replacement[0].Equal(got[0]), "got %+v", got[0])
	assert.True(t, replacement[1].Equal(got[1]), "got %+v", got[1])

	other, err := s.Get(ctx, 1, next)
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, 777.0, other.TotalSleep, "other dates untouched")

	require.NoError(t, s.ReplaceDay(ctx, day, nil))
	cleared, err := s.ForDate(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func testReplaceDayRejectsForeignDate(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, types.DailyAggregate{UserID: 1, Date: day, TotalSleep: 1}))
	err := s.ReplaceDay(ctx, day, []types.DailyAggregate{{UserID: 1, Date: next}})
	assert.True(t, errors.Is(err, store.ErrDateMismatch))

	got, err := s.Get(ctx, 1, day)
	require.NoError(t, err)
	require.NotNil(t, got, "rejected replace must leave existing rows")
}
