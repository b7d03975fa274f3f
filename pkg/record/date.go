package record

import (
	"fmt"
	"time"
)

// DateLayout is the only date format the engines understand.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddDays shifts a YYYY-MM-DD date by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, n)), nil
}

// MonthBounds returns the lexical bounds covering every day of a YYYY-MM month.
// The end bound is always day 31, which sorts after the last real day of any month.
func MonthBounds(yearMonth string) (start, end string) {
	return yearMonth + "-01", yearMonth + "-31"
}
