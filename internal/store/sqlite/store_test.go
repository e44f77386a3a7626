package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vitalog/vitalog/internal/store"
	"github.com/vitalog/vitalog/internal/store/storetest"
	"github.com/vitalog/vitalog/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vitalog.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestStore(t)
	})
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalog.db")
	ctx := context.Background()
	day := types.MustParseDate("2026-03-01")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if _, err := s.Append(ctx, 1, types.KindMood, 3, day.Start().Add(time.Hour)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Put(ctx, types.DailyAggregate{UserID: 1, Date: day, Mood: types.IntPtr(3)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	events, err := s.EventsFor(ctx, 1, day)
	if err != nil || len(events) != 1 {
		t.Fatalf("events after reopen = %v, %v", events, err)
	}
	agg, err := s.Get(ctx, 1, day)
	if err != nil || agg == nil || agg.Mood == nil || *agg.Mood != 3 {
		t.Fatalf("aggregate after reopen = %+v, %v", agg, err)
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	ctx := context.Background()
	day := types.MustParseDate("2026-03-01")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(ctx, int64(i%4), types.KindSteps, float64(i), day.Start().Add(time.Duration(i)*time.Second)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	events, err := s.EventsOn(ctx, day)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestStore_UnknownStoredKind(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	ctx := context.Background()
	day := types.MustParseDate("2026-03-01")
	if _, err := s.db.Exec(`INSERT INTO raw_event (id, user_id, kind, value, ts) VALUES ('x', 1, 'weight', 70, ?)`,
		day.Start().UnixNano()); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := s.EventsFor(ctx, 1, day)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Kind.Valid() {
		t.Errorf("expected one event with an invalid kind, got %+v", events)
	}
}
