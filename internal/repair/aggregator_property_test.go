package repair

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vitalog/vitalog/internal/store/sqlite"
	"github.com/vitalog/vitalog/pkg/types"
)

func TestProperty_RepairIgnoresInsertionOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("repaired totals equal the latest-timestamp value", prop.ForAll(
		func(values []int, seed int64) bool {
			if len(values) == 0 {
				return true
			}
			s, err := sqlite.Open(filepath.Join(t.TempDir(), "prop.db"))
			if err != nil {
				return false
			}
			defer s.Close()
			ctx := context.Background()

			order := rand.New(rand.NewSource(seed)).Perm(len(values))
			for _, i := range order {
				ts := day.Start().Add(time.Duration(i+1) * time.Minute)
				if _, err := s.Append(ctx, 1, types.KindScreen, float64(values[i]), ts); err != nil {
					return false
				}
			}

			agg := NewAggregator(s, s)
			if _, err := agg.RepairDay(ctx, day); err != nil {
				return false
			}
			got, err := s.Get(ctx, 1, day)
			return err == nil && got != nil && got.TotalScreen == float64(values[len(values)-1])
		},
		gen.SliceOfN(8, gen.IntRange(0, 1440)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
