package utils

import (
	"fmt"
	"time"

	"instrument-rental-backend/internal/domain"
)

const DateLayout = "2006-01-02"

// ParseDate accepts yyyy-mm-dd or an RFC3339 timestamp and returns the UTC
// calendar day it falls on.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected yyyy-mm-dd", domain.ErrInvalidInput, s)
	}
	return TruncateDay(t), nil
}

// TruncateDay drops the time of day in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween is the number of whole days in [start, end).
func DaysBetween(start, end time.Time) int32 {
	return int32(TruncateDay(end).Sub(TruncateDay(start)).Hours() / 24)
}

// AddDays returns the calendar day n days after t.
func AddDays(t time.Time, n int32) time.Time {
	return TruncateDay(t).AddDate(0, 0, int(n))
}

// FormatDate renders a calendar day as yyyy-mm-dd.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
