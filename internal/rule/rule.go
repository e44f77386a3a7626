// Package rule maps raw metric events onto daily aggregates.
//
// Every kind overwrites its field: an aggregate holds the most recent reading
// of the day, not a running sum. Order of application therefore decides the
// result, and callers folding a day must apply events in timestamp order.
package rule

import (
	"fmt"
	"math"
	"sort"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/pkg/types"
)

const (
	// MaxDailyMinutes bounds sleep and screen readings.
	MaxDailyMinutes = 24 * 60

	MinMood = 1
	MaxMood = 4
)

// Validate checks that value lies in the domain of kind.
func Validate(kind types.Kind, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return invalidValue(kind, value, "must be a finite number")
	}

	switch kind {
	case types.KindSleep, types.KindScreen:
		if value < 0 || value > MaxDailyMinutes {
			return invalidValue(kind, value, fmt.Sprintf("must be between 0 and %d minutes", MaxDailyMinutes))
		}
	case types.KindSteps:
		if value < 0 {
			return invalidValue(kind, value, "must not be negative")
		}
	case types.KindMood:
		if value != math.Trunc(value) || value < MinMood || value > MaxMood {
			return invalidValue(kind, value, fmt.Sprintf("must be an integer between %d and %d", MinMood, MaxMood))
		}
	default:
		return InvalidKind(kind)
	}
	return nil
}

// InvalidKind builds the validation error for an unrecognized kind.
func InvalidKind(kind interface{}) error {
	return verrors.NewValidationError(verrors.CodeInvalidKind, fmt.Sprintf("unrecognized kind %v", kind)).
		WithDetails(map[string]interface{}{"kind": fmt.Sprint(kind)})
}

func invalidValue(kind types.Kind, value float64, reason string) error {
	return verrors.NewValidationError(verrors.CodeInvalidValue, fmt.Sprintf("%s value %v %s", kind, value, reason)).
		WithDetails(map[string]interface{}{"kind": kind.String(), "value": value})
}

// Apply returns the aggregate that results from applying ev to current.
// A nil current starts from an empty aggregate keyed by the event's user and
// UTC date. current is never modified.
func Apply(current *types.DailyAggregate, ev types.RawEvent) (types.DailyAggregate, error) {
	var next types.DailyAggregate
	if current == nil {
		next = types.NewDailyAggregate(ev.UserID, ev.Date())
	} else {
		next = current.Clone()
	}

	switch ev.Kind {
	case types.KindSleep:
		next.TotalSleep = ev.Value
	case types.KindScreen:
		next.TotalScreen = ev.Value
	case types.KindSteps:
		next.TotalSteps = ev.Value
	case types.KindMood:
		next.Mood = types.IntPtr(int(ev.Value))
	default:
		return types.DailyAggregate{}, InvalidKind(ev.Kind)
	}
	return next, nil
}

// SortEvents orders events by timestamp. The sort is stable so events with
// equal timestamps keep the order the store returned them in.
func SortEvents(events []types.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// Fold applies events in order starting from an absent aggregate. Events are
// expected to belong to a single (user, date) key and be sorted already.
// It returns nil for an empty slice.
func Fold(events []types.RawEvent) (*types.DailyAggregate, error) {
	var agg *types.DailyAggregate
	for _, ev := range events {
		next, err := Apply(agg, ev)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		agg = &next
	}
	return agg, nil
}
