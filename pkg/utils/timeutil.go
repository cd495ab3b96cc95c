// Package utils provides small date and formatting helpers shared across
// StockPulse.
package utils

import (
	"fmt"
	"time"
)

// Day truncates t to UTC midnight. All batch dates are day-granular.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatDay renders t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// MonthsBetween walks the monthly partitions covering [start, end] and
// returns their (year, month) pairs in ascending order. Used by the
// time-series stores to locate monthly data files.
func MonthsBetween(start, end time.Time) [][2]int {
	var out [][2]int
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		out = append(out, [2]int{cur.Year(), int(cur.Month())})
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MonthsSince returns the number of whole months between then and now.
// Returns a large value when then is zero, so "at least N months old" checks
// pass for never-before-seen events.
func MonthsSince(then, now time.Time) int {
	if then.IsZero() {
		return 1 << 20
	}
	months := (now.Year()-then.Year())*12 + int(now.Month()) - int(then.Month())
	if now.Day() < then.Day() {
		months--
	}
	return months
}
