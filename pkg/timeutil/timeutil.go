// Package timeutil provides calendar-date helpers and an injectable clock.
// Fee due dates are calendar dates stored as UTC midnight.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Clock returns the current time. Handlers take a Clock so tests can pin "now".
type Clock func() time.Time

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock {
	return func() time.Time { return time.Now().UTC() }
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Date creates a UTC midnight time for the given calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return Date(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a due date. It accepts "YYYY-MM-DD" (UTC midnight)
// and full RFC 3339 timestamps, which keep their instant and are converted to UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("timeutil: empty date")
	}

	if t, err := time.ParseInLocation(DateLayout, value, time.UTC); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q: expected YYYY-MM-DD or RFC 3339", value)
	}
	return t.UTC(), nil
}

// FormatDate formats t as "YYYY-MM-DD" in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// IsSameDay checks if two times fall on the same UTC calendar date.
func IsSameDay(t1, t2 time.Time) bool {
	return StartOfDay(t1).Equal(StartOfDay(t2))
}
