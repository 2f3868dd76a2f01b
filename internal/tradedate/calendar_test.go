package tradedate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// A week around the 2026 Qingming holiday: Apr 4 (Sat), 5 (Sun), 6 (Mon,
// holiday) are closed.
var week = []string{
	"2026-04-01", "2026-04-02", "2026-04-03",
	"2026-04-07", "2026-04-08",
}

func TestIsTradeDate(t *testing.T) {
	c := New(week)

	assert.True(t, c.IsTradeDate(time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)))
	assert.False(t, c.IsTradeDate(time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC)))
	assert.False(t, c.IsTradeDate(time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)))
}

func TestLatestOnMapsHolidaysBack(t *testing.T) {
	c := New(week)

	// A trading day maps to itself.
	assert.Equal(t, "2026-04-03", c.LatestOn(time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC)))
	// The long weekend maps back to Friday.
	assert.Equal(t, "2026-04-03", c.LatestOn(time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-04-03", c.LatestOn(time.Date(2026, 4, 6, 23, 59, 0, 0, time.UTC)))
	// Before the calendar starts there is nothing to map to.
	assert.Equal(t, "", c.LatestOn(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)))
}

func TestPrevAndNext(t *testing.T) {
	c := New(week)

	assert.Equal(t, "2026-04-03", c.Prev("2026-04-07"))
	assert.Equal(t, "2026-04-07", c.Next("2026-04-03"))
	// Non-trading inputs still work: neighbors in the sorted set.
	assert.Equal(t, "2026-04-03", c.Prev("2026-04-05"))
	assert.Equal(t, "2026-04-07", c.Next("2026-04-05"))
	assert.Equal(t, "", c.Prev("2026-04-01"))
	assert.Equal(t, "", c.Next("2026-04-08"))
}

func TestBetweenInclusive(t *testing.T) {
	c := New(week)

	assert.Equal(t, []string{"2026-04-02", "2026-04-03", "2026-04-07"},
		c.Between("2026-04-02", "2026-04-07"))
	assert.Nil(t, c.Between("2026-04-09", "2026-04-30"))
}

func TestUnsortedInputIsSorted(t *testing.T) {
	c := New([]string{"2026-04-08", "2026-04-01", "2026-04-03"})
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "2026-04-01", c.Prev("2026-04-02"))
}
