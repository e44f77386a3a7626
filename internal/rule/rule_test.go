package rule

import (
	"errors"
	"math"
	"testing"
	"time"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/pkg/types"
)

var day = types.MustParseDate("2026-03-01")

func event(kind types.Kind, value float64, offset time.Duration) types.RawEvent {
	return types.RawEvent{UserID: 42, Kind: kind, Value: value, Timestamp: day.Start().Add(offset)}
}

func TestApply_FromAbsent(t *testing.T) {
	agg, err := Apply(nil, event(types.KindSteps, 0, time.Hour))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := types.DailyAggregate{UserID: 42, Date: day}
	if !want.Equal(agg) {
		t.Errorf("Apply(nil) = %+v, want %+v", agg, want)
	}
	if agg.Mood != nil {
		t.Errorf("mood = %d, want absent", *agg.Mood)
	}
}

func TestApply_OverwritesNotSums(t *testing.T) {
	first, err := Apply(nil, event(types.KindSleep, 420, time.Hour))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	second, err := Apply(&first, event(types.KindSleep, 390, 2*time.Hour))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if second.TotalSleep != 390 {
		t.Errorf("TotalSleep = %v, want 390", second.TotalSleep)
	}
	if first.TotalSleep != 420 {
		t.Errorf("input modified: TotalSleep = %v, want 420", first.TotalSleep)
	}
}

func TestApply_EachKindTouchesOnlyItsField(t *testing.T) {
	base := types.DailyAggregate{UserID: 42, Date: day, TotalSleep: 1, TotalScreen: 2, TotalSteps: 3, Mood: types.IntPtr(2)}

	tests := []struct {
		kind  types.Kind
		value float64
		want  types.DailyAggregate
	}{
		{types.KindSleep, 480, types.DailyAggregate{UserID: 42, Date: day, TotalSleep: 480, TotalScreen: 2, TotalSteps: 3, Mood: types.IntPtr(2)}},
		{types.KindScreen, 95, types.DailyAggregate{UserID: 42, Date: day, TotalSleep: 1, TotalScreen: 95, TotalSteps: 3, Mood: types.IntPtr(2)}},
		{types.KindSteps, 8000, types.DailyAggregate{UserID: 42, Date: day, TotalSleep: 1, TotalScreen: 2, TotalSteps: 8000, Mood: types.IntPtr(2)}},
		{types.KindMood, 4, types.DailyAggregate{UserID: 42, Date: day, TotalSleep: 1, TotalScreen: 2, TotalSteps: 3, Mood: types.IntPtr(4)}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, err := Apply(&base, event(tt.kind, tt.value, time.Minute))
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if !tt.want.Equal(got) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
	if *base.Mood != 2 {
		t.Errorf("mood pointer shared with result: base mood = %d", *base.Mood)
	}
}

func TestApply_UnknownKind(t *testing.T) {
	if _, err := Apply(nil, event(types.Kind(99), 1, 0)); !errors.Is(err, verrors.ErrInvalidKind) {
		t.Errorf("error = %v, want ErrInvalidKind", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		kind  types.Kind
		value float64
		want  error
	}{
		{"sleep ok", types.KindSleep, 420, nil},
		{"sleep zero", types.KindSleep, 0, nil},
		{"sleep full day", types.KindSleep, 1440, nil},
		{"sleep over a day", types.KindSleep, 1441, verrors.ErrInvalidValue},
		{"screen negative", types.KindScreen, -1, verrors.ErrInvalidValue},
		{"steps zero", types.KindSteps, 0, nil},
		{"steps large", types.KindSteps, 65000, nil},
		{"steps negative", types.KindSteps, -10, verrors.ErrInvalidValue},
		{"mood low", types.KindMood, 1, nil},
		{"mood high", types.KindMood, 4, nil},
		{"mood zero", types.KindMood, 0, verrors.ErrInvalidValue},
		{"mood nine", types.KindMood, 9, verrors.ErrInvalidValue},
		{"mood fraction", types.KindMood, 2.5, verrors.ErrInvalidValue},
		{"nan", types.KindSteps, math.NaN(), verrors.ErrInvalidValue},
		{"inf", types.KindSleep, math.Inf(1), verrors.ErrInvalidValue},
		{"unknown kind", types.Kind(0), 1, verrors.ErrInvalidKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.kind, tt.value)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate(%v, %v) = %v, want nil", tt.kind, tt.value, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate(%v, %v) = %v, want %v", tt.kind, tt.value, err, tt.want)
			}
		})
	}
}

func TestFold_LaterTimestampWins(t *testing.T) {
	events := []types.RawEvent{
		event(types.KindSleep, 390, 5*time.Hour),
		event(types.KindMood, 2, 3*time.Hour),
		event(types.KindSleep, 420, 2*time.Hour),
		event(types.KindMood, 3, 4*time.Hour),
	}
	SortEvents(events)

	agg, err := Fold(events)
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}
	if agg == nil {
		t.Fatal("Fold returned no aggregate")
	}
	if agg.TotalSleep != 390 {
		t.Errorf("TotalSleep = %v, want 390", agg.TotalSleep)
	}
	if agg.Mood == nil || *agg.Mood != 3 {
		t.Errorf("Mood = %v, want 3", agg.Mood)
	}
}

func TestFold_EqualTimestampsKeepStoreOrder(t *testing.T) {
	a := event(types.KindSteps, 100, time.Hour)
	a.ID = "a"
	b := event(types.KindSteps, 200, time.Hour)
	b.ID = "b"
	events := []types.RawEvent{a, b}
	SortEvents(events)

	agg, err := Fold(events)
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}
	if agg.TotalSteps != 200 {
		t.Errorf("TotalSteps = %v, want 200", agg.TotalSteps)
	}
}

func TestFold_Empty(t *testing.T) {
	agg, err := Fold(nil)
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}
	if agg != nil {
		t.Errorf("Fold(nil) = %+v, want nil", agg)
	}
}
