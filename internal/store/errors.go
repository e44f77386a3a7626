package store

import (
	"errors"
	"fmt"

	"github.com/vitalog/vitalog/pkg/types"
)

// ErrDateMismatch is returned by ReplaceDay when an aggregate does not
// belong to the date being replaced.
var ErrDateMismatch = errors.New("aggregate date does not match replaced date")

// CheckReplaceDay validates the input of ReplaceDay before a transaction is opened.
func CheckReplaceDay(date types.Date, aggs []types.DailyAggregate) error {
	seen := make(map[int64]struct{}, len(aggs))
	for _, a := range aggs {
		if a.Date != date {
			return fmt.Errorf("%w: user %d has %s, want %s", ErrDateMismatch, a.UserID, a.Date, date)
		}
		if _, dup := seen[a.UserID]; dup {
			return fmt.Errorf("duplicate aggregate for user %d on %s", a.UserID, date)
		}
		seen[a.UserID] = struct{}{}
	}
	return nil
}
