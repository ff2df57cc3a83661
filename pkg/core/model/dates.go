package model

import (
	"fmt"
	"time"
)

// ParseDate parses a calendar date in DateLayout as UTC midnight
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween returns the number of whole days from a to b (negative if b is before a)
func DaysBetween(a, b string) (int, error) {
	from, err := ParseDate(a)
	if err != nil {
		return 0, err
	}
	to, err := ParseDate(b)
	if err != nil {
		return 0, err
	}
	return int(to.Sub(from).Hours() / 24), nil
}

// AddMonths shifts a date by n calendar months
func AddMonths(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, n, 0).Format(DateLayout), nil
}
