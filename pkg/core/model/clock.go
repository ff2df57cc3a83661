package model

import (
	"fmt"
	"time"
)

// ClockLayout is the layout for times of day
const ClockLayout = "15:04"

const minutesPerDay = 24 * 60

// Clock is a time of day in minutes after midnight
type Clock int

// ParseClock parses "HH:MM". "24:00" is accepted as the end of the day.
func ParseClock(s string) (Clock, error) {
	if s == "24:00" {
		return Clock(minutesPerDay), nil
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// TimeRange is a half-open [Start, End) range within one day
type TimeRange struct {
	Start Clock
	End   Clock
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// IsValid reports whether the range is non-empty and inside a single day
func (r TimeRange) IsValid() bool {
	return r.Start >= 0 && r.End <= minutesPerDay && r.Start < r.End
}

// Overlaps reports whether the two ranges share any minute
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Contains reports whether other lies entirely within r
func (r TimeRange) Contains(other TimeRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}
