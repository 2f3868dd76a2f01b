// Package tradedate answers calendar questions for mainland exchanges:
// whether a day is a session, and which session a timestamp maps to.
package tradedate

import (
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

// Calendar is an immutable, sorted set of trading days. Build a new one when
// the calendar snapshot refreshes instead of mutating in place.
type Calendar struct {
	days []string // sorted YYYY-MM-DD
	set  map[string]struct{}
}

// New builds a calendar from YYYY-MM-DD dates in any order.
func New(dates []string) *Calendar {
	days := make([]string, len(dates))
	copy(days, dates)
	sort.Strings(days)

	set := make(map[string]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return &Calendar{days: days, set: set}
}

// Len returns the number of known trading days.
func (c *Calendar) Len() int { return len(c.days) }

// IsTradeDate reports whether the given day is a trading session.
func (c *Calendar) IsTradeDate(t time.Time) bool {
	_, ok := c.set[t.Format(dayLayout)]
	return ok
}

// LatestOn returns the most recent trading day on or before t, or "" when t
// predates the calendar. A query before the session open on a trading day
// still maps to that day; intraday cutoffs are the caller's concern.
func (c *Calendar) LatestOn(t time.Time) string {
	day := t.Format(dayLayout)
	// First index with days[i] > day, so the answer is the element before it.
	i := sort.SearchStrings(c.days, day+"\x00")
	if i == 0 {
		return ""
	}
	return c.days[i-1]
}

// Prev returns the trading day strictly before day, or "" when none is known.
func (c *Calendar) Prev(day string) string {
	i := sort.SearchStrings(c.days, day)
	if i == 0 {
		return ""
	}
	return c.days[i-1]
}

// Next returns the trading day strictly after day, or "" when none is known.
func (c *Calendar) Next(day string) string {
	i := sort.SearchStrings(c.days, day+"\x00")
	if i >= len(c.days) {
		return ""
	}
	return c.days[i]
}

// Between returns the trading days in [from, to], inclusive on both ends.
func (c *Calendar) Between(from, to string) []string {
	lo := sort.SearchStrings(c.days, from)
	hi := sort.SearchStrings(c.days, to+"\x00")
	if lo >= hi {
		return nil
	}
	out := make([]string, hi-lo)
	copy(out, c.days[lo:hi])
	return out
}
