package types

import (
	"errors"
	"testing"
	"time"
)

func TestDateOf_UsesUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 2026-03-02 07:00 in Tokyo is still 2026-03-01 in UTC.
	ts := time.Date(2026, 3, 2, 7, 0, 0, 0, tokyo)
	if got := DateOf(ts); got != MustParseDate("2026-03-01") {
		t.Errorf("DateOf = %s, want 2026-03-01", got)
	}
}

func TestDate_AddDays(t *testing.T) {
	tests := []struct {
		start string
		n     int
		want  string
	}{
		{"2026-03-07", -6, "2026-03-01"},
		{"2026-03-01", -1, "2026-02-28"},
		{"2024-02-28", 1, "2024-02-29"},
		{"2025-12-31", 1, "2026-01-01"},
		{"2026-01-01", 0, "2026-01-01"},
	}
	for _, tt := range tests {
		got := MustParseDate(tt.start).AddDays(tt.n).String()
		if got != tt.want {
			t.Errorf("%s + %d = %s, want %s", tt.start, tt.n, got, tt.want)
		}
	}
}

func TestDate_Compare(t *testing.T) {
	a := MustParseDate("2026-03-01")
	b := MustParseDate("2026-03-02")
	c := MustParseDate("2027-01-01")

	if !a.Before(b) || !b.After(a) {
		t.Error("expected a < b")
	}
	if a.Compare(a) != 0 {
		t.Error("expected a == a")
	}
	if !b.Before(c) {
		t.Error("expected b < c across years")
	}
}

func TestDate_Bounds(t *testing.T) {
	d := MustParseDate("2026-03-01")
	if d.End().Sub(d.Start()) != 24*time.Hour {
		t.Errorf("day span = %v", d.End().Sub(d.Start()))
	}
	if DateOf(d.End().Add(-time.Nanosecond)) != d {
		t.Error("last instant of the day should map back to the day")
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, input := range []string{"", "2026-13-01", "03/01/2026", "2026-02-30"} {
		if _, err := ParseDate(input); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) error = %v, want ErrInvalidDate", input, err)
		}
	}
}

func TestDailyAggregate_CloneAndEqual(t *testing.T) {
	a := DailyAggregate{UserID: 7, Date: MustParseDate("2026-03-01"), TotalSteps: 100, Mood: IntPtr(3)}
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone should equal original")
	}
	*b.Mood = 2
	if *a.Mood != 3 {
		t.Error("clone must not share the mood pointer")
	}
	if a.Equal(b) {
		t.Error("differing mood should not be equal")
	}
	b.Mood = nil
	if a.Equal(b) {
		t.Error("absent mood should not equal present mood")
	}
}
