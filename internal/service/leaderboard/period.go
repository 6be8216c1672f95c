package leaderboard

import (
	"strings"
	"time"
)

// Scope is the population boundary of a leaderboard.
type Scope string

// Leaderboard scopes.
const (
	ScopeIndividual Scope = "INDIVIDUAL"
	ScopeBranch     Scope = "BRANCH"
	ScopeArea       Scope = "AREA"
	ScopeRegional   Scope = "REGIONAL"
)

// Scopes lists every scope, in display order.
var Scopes = []Scope{ScopeIndividual, ScopeBranch, ScopeArea, ScopeRegional}

// ParseScope parses a scope name case-insensitively.
func ParseScope(raw string) (Scope, bool) {
	s := Scope(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case ScopeIndividual, ScopeBranch, ScopeArea, ScopeRegional:
		return s, true
	default:
		return "", false
	}
}

// Period is the time window over which earned XP is summed.
type Period string

// Leaderboard periods.
const (
	PeriodDaily   Period = "DAILY"
	PeriodWeekly  Period = "WEEKLY"
	PeriodMonthly Period = "MONTHLY"
	PeriodYearly  Period = "YEARLY"
)

// Periods lists every period, in display order.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly}

// ParsePeriod parses a period name case-insensitively.
func ParsePeriod(raw string) (Period, bool) {
	p := Period(strings.ToUpper(strings.TrimSpace(raw)))
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return p, true
	default:
		return "", false
	}
}

// Window returns the half-open interval [start, end) of the period containing now,
// using calendar boundaries in loc. Weeks start on Monday (ISO 8601).
func (p Period) Window(now time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch p {
	case PeriodWeekly:
		offset := (int(local.Weekday()) + 6) % 7 // days since Monday
		start = midnight.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case PeriodYearly:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	default:
		start = midnight
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}
