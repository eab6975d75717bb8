package cpm

import "time"

const secondsPerDay = 24 * 60 * 60

// Day returns the calendar date of t as midnight UTC. All schedule dates are
// normalized this way so day arithmetic never crosses a DST boundary.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a schedule date.
func Date(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts t by n whole calendar days. Spans past the time.Duration
// range stay exact.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b, counted on
// Unix seconds so it never saturates.
func DaysBetween(a, b time.Time) int {
	return int((Day(b).Unix() - Day(a).Unix()) / secondsPerDay)
}
