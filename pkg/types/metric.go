package types

import "time"

// RawEvent is one immutable measurement as persisted in the event log.
type RawEvent struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Date returns the UTC calendar date the event is bucketed into.
func (e RawEvent) Date() Date {
	return DateOf(e.Timestamp)
}

// DailyAggregate is the current-state summary of one user's metrics for one day.
//
// The Total fields hold the most recent reading of the day for their kind.
// Mood is nil until a mood event has been recorded for the day.
type DailyAggregate struct {
	UserID      int64   `json:"user_id"`
	Date        Date    `json:"date"`
	TotalSleep  float64 `json:"total_sleep"`
	TotalScreen float64 `json:"total_screen"`
	TotalSteps  float64 `json:"total_steps"`
	Mood        *int    `json:"mood,omitempty"`
}

// NewDailyAggregate returns an empty aggregate for the key.
func NewDailyAggregate(userID int64, date Date) DailyAggregate {
	return DailyAggregate{UserID: userID, Date: date}
}

// Clone returns a deep copy; the Mood pointer is not shared.
func (a DailyAggregate) Clone() DailyAggregate {
	cp := a
	if a.Mood != nil {
		m := *a.Mood
		cp.Mood = &m
	}
	return cp
}

// Equal compares two aggregates by value, including Mood.
func (a DailyAggregate) Equal(b DailyAggregate) bool {
	if a.UserID != b.UserID || a.Date != b.Date ||
		a.TotalSleep != b.TotalSleep || a.TotalScreen != b.TotalScreen || a.TotalSteps != b.TotalSteps {
		return false
	}
	if a.Mood == nil || b.Mood == nil {
		return a.Mood == nil && b.Mood == nil
	}
	return *a.Mood == *b.Mood
}

// IntPtr is a small helper for building Mood values.
func IntPtr(v int) *int {
	return &v
}
