package allocator

import (
	"fmt"
	"time"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// Reason explains why a member cannot fill a slot-instance.
// Lower values take priority when several apply.
type Reason int

const (
	Eligible Reason = iota
	ReasonNoAvailability
	ReasonBlackout
	ReasonOverlap
	ReasonPeriodCap
	ReasonMinGap
)

// Reasons lists every ineligibility reason in priority order
var Reasons = []Reason{ReasonNoAvailability, ReasonBlackout, ReasonOverlap, ReasonPeriodCap, ReasonMinGap}

func (r Reason) String() string {
	switch r {
	case Eligible:
		return "eligible"
	case ReasonNoAvailability:
		return "no availability"
	case ReasonBlackout:
		return "blackout date"
	case ReasonOverlap:
		return "already assigned at that time"
	case ReasonPeriodCap:
		return "reached max assignments for period"
	case ReasonMinGap:
		return "assigned too recently"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// SlotInstance is one occurrence of a slot on a concrete date
type SlotInstance struct {
	Slot model.Slot
	Date string

	// Capacity is the number of places still to fill: the slot's capacity after overrides, less Held
	Capacity int

	// Closed instances appear in the schedule but are never filled
	Closed bool

	// Held places are already taken by saved assignments and are not part of Capacity
	Held int
}

// TimeRange returns the time of day covered by the instance
func (si SlotInstance) TimeRange() model.TimeRange {
	return si.Slot.TimeRange()
}

// Key identifies the instance within a run
func (si SlotInstance) Key() string {
	return si.Slot.ID + "@" + si.Date
}

func (si SlotInstance) String() string {
	return fmt.Sprintf("%s %s %s", si.Slot.Label, si.Date, si.TimeRange())
}

// MemberProfile is everything the evaluator knows about one member
type MemberProfile struct {
	MemberID string

	// Marks are the member's availability marks for the run (dated and recurring)
	Marks []model.AvailabilityMark

	MaxAssignmentsPerPeriod   int
	MinDaysBetweenAssignments int
	BlackoutDates             map[string]bool
}

// Period groups dates for the per-period assignment cap
type Period string

const (
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
)

// Key returns the identifier of the period containing date, e.g. "2026-03" or "2026-W10"
func (p Period) Key(date string) (string, error) {
	t, err := model.ParseDate(date)
	if err != nil {
		return "", err
	}
	if p == PeriodWeek {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	}
	return t.Format("2006-01"), nil
}

// Start returns the first date of the period containing date
func (p Period) Start(date string) (string, error) {
	t, err := model.ParseDate(date)
	if err != nil {
		return "", err
	}
	if p == PeriodWeek {
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format(model.DateLayout), nil
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout), nil
}

// Next returns the first date of the period after the one containing date
func (p Period) Next(date string) (string, error) {
	start, err := p.Start(date)
	if err != nil {
		return "", err
	}
	t, _ := model.ParseDate(start)
	if p == PeriodWeek {
		return t.AddDate(0, 0, 7).Format(model.DateLayout), nil
	}
	return t.AddDate(0, 1, 0).Format(model.DateLayout), nil
}

// IsValid reports whether p is a known period
func (p Period) IsValid() bool {
	return p == PeriodMonth || p == PeriodWeek
}
