package types

import (
	"strings"
	"testing"
	"time"
)

func TestULIDGenerator_MonotonicWithinMillisecond(t *testing.T) {
	gen := NewULIDGenerator()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev, err := gen.NewEventID(ts)
	if err != nil {
		t.Fatalf("failed to generate event ID: %v", err)
	}
	for i := 0; i < 500; i++ {
		next, err := gen.NewEventID(ts)
		if err != nil {
			t.Fatalf("failed to generate event ID: %v", err)
		}
		if prev >= next {
			t.Fatalf("event ID %d not increasing: %s >= %s", i, prev, next)
		}
		prev = next
	}
}

func TestULIDGenerator_CarriesAcrossRandomBytes(t *testing.T) {
	gen := NewULIDGenerator()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := gen.GenerateWithTime(ts); err != nil {
		t.Fatalf("failed to generate ULID: %v", err)
	}
	for i := range gen.lastRand {
		gen.lastRand[i] = 0xFF
	}
	gen.lastRand[0] = 0x00

	u, err := gen.GenerateWithTime(ts)
	if err != nil {
		t.Fatalf("failed to generate ULID: %v", err)
	}
	if u[6] != 0x01 || u[15] != 0x00 {
		t.Errorf("increment did not carry: % x", u[6:])
	}
}

func TestNewEventID_Form(t *testing.T) {
	id, err := NewULIDGenerator().NewEventID(time.Date(2026, 3, 1, 12, 30, 15, 0, time.UTC))
	if err != nil {
		t.Fatalf("failed to generate event ID: %v", err)
	}
	if len(id) != 26 {
		t.Fatalf("len(%q) = %d, want 26", id, len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune(crockfordBase32, c) {
			t.Errorf("unexpected character %q in %s", c, id)
		}
	}
}

func TestNewEventID_TimestampPrefix(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 15, 250_000_000, time.UTC)
	a, err := NewULIDGenerator().NewEventID(ts)
	if err != nil {
		t.Fatalf("failed to generate event ID: %v", err)
	}
	b, err := NewULIDGenerator().NewEventID(ts)
	if err != nil {
		t.Fatalf("failed to generate event ID: %v", err)
	}
	// 48 timestamp bits fill the first ten symbols.
	if a[:10] != b[:10] {
		t.Errorf("same millisecond, different prefix: %s vs %s", a, b)
	}
}
