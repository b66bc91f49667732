package models

import (
	"fmt"
	"strconv"
	"time"

	perrors "github.com/p-blackswan/pulse/internal/errors"
)

// Month is a zero-padded "YYYY-MM" key. Lexicographic order equals chronological order.
type Month string

// ParseMonth validates s and returns it as a Month.
func ParseMonth(s string) (Month, error) {
	if len(s) != 7 || s[4] != '-' {
		return "", fmt.Errorf("%w: %q", perrors.ErrMalformedMonth, s)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil || year < 1 {
		return "", fmt.Errorf("%w: %q", perrors.ErrMalformedMonth, s)
	}
	mon, err := strconv.Atoi(s[5:])
	if err != nil || mon < 1 || mon > 12 {
		return "", fmt.Errorf("%w: %q", perrors.ErrMalformedMonth, s)
	}
	return Month(s), nil
}

// MonthOf returns the month containing t (in UTC).
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// YearMonth splits the month into its numeric parts.
func (m Month) YearMonth() (int, time.Month, error) {
	if _, err := ParseMonth(string(m)); err != nil {
		return 0, 0, err
	}
	year, _ := strconv.Atoi(string(m)[:4])
	mon, _ := strconv.Atoi(string(m)[5:])
	return year, time.Month(mon), nil
}

// Start returns the first instant of the month in UTC.
func (m Month) Start() (time.Time, error) {
	y, mon, err := m.YearMonth()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, mon, 1, 0, 0, 0, 0, time.UTC), nil
}

// End returns the last millisecond of the month in UTC.
func (m Month) End() (time.Time, error) {
	start, err := m.Start()
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 1, 0).Add(-time.Millisecond), nil
}

// Year returns the "YYYY" prefix.
func (m Month) Year() string {
	if len(m) < 4 {
		return ""
	}
	return string(m)[:4]
}

func (m Month) String() string { return string(m) }
