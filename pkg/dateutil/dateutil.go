// Package dateutil provides date-only parsing and the day arithmetic used
// for SLA deadline computation.
package dateutil

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for date-only values.
const DateLayout = "2006-01-02"

// ParseDate parses a date-only string in the local location.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AddDays shifts t by n calendar days, preserving wall-clock time across
// DST boundaries.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// EndOfDay returns the SLA boundary for a due date: midnight at the start
// of the following calendar day. An item due on day D is overdue once D has
// fully elapsed.
func EndOfDay(t time.Time) time.Time {
	return DateOnly(t).AddDate(0, 0, 1)
}

// HoursUntil returns the number of whole hours from now until t, negative
// when t is in the past.
func HoursUntil(now, t time.Time) int {
	return int(t.Sub(now).Hours())
}

// At returns the instant on t's calendar day at hour:minute.
func At(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}
