// Package streak tracks consecutive days of qualifying activity.
//
// Evaluation is lazy: a broken streak is only observed, and reset, when the user
// next acts. Nothing runs at midnight.
package streak

import (
	"time"
)

// Transition describes what a qualifying activity did to the streak.
type Transition string

// Streak transitions.
const (
	Started  Transition = "started"  // first recorded activity
	Same     Transition = "same_day" // another activity on the last active day
	Extended Transition = "extended" // activity on the day after the last active day
	Held     Transition = "held"     // consecutive day, but already at the ceiling
	Reset    Transition = "reset"    // one or more days were missed
	Ignored  Transition = "ignored"  // activity dated before the last active day
)

// State is the persisted pair (last active day, streak length).
type State struct {
	LastActiveDay *time.Time
	Days          int
}

// Day returns the calendar date of t in loc, expressed as midnight UTC.
// Representing civil dates in UTC keeps day arithmetic free of DST shifts.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// Advance applies a qualifying activity on day to s. maxDays caps the streak length.
func Advance(s State, day time.Time, maxDays int) (State, Transition) {
	day = Day(day, time.UTC)

	if s.LastActiveDay == nil {
		days := s.Days
		if days < 1 {
			days = 1
		}
		return State{LastActiveDay: &day, Days: capDays(days, maxDays)}, Started
	}

	switch gap := daysBetween(*s.LastActiveDay, day); {
	case gap < 0:
		return s, Ignored
	case gap == 0:
		return State{LastActiveDay: &day, Days: s.Days}, Same
	case gap == 1:
		if maxDays > 0 && s.Days >= maxDays {
			return State{LastActiveDay: &day, Days: maxDays}, Held
		}
		return State{LastActiveDay: &day, Days: capDays(s.Days+1, maxDays)}, Extended
	default:
		return State{LastActiveDay: &day, Days: 1}, Reset
	}
}

// Effective returns the streak length as it stands on today, treating a streak whose
// last active day is before yesterday as already broken. It never mutates state.
func Effective(s State, today time.Time) int {
	if s.LastActiveDay == nil {
		return s.Days
	}
	if daysBetween(*s.LastActiveDay, Day(today, time.UTC)) > 1 {
		return 0
	}
	return s.Days
}

func capDays(days, maxDays int) int {
	if maxDays > 0 && days > maxDays {
		return maxDays
	}
	return days
}
