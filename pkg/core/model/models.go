package model

import (
	"fmt"
	"time"
)

// DateLayout is the layout used for every calendar date in the system
const DateLayout = "2006-01-02"

type Role string

const (
	RoleLeader Role = "leader"
	RoleMember Role = "member"
)

func (r Role) IsValid() bool {
	return r == RoleLeader || r == RoleMember
}

// Member represents a person who can be scheduled
type Member struct {
	ID          string
	DisplayName string
	Email       string
}

// Membership links a member to a group with a role
type Membership struct {
	GroupID  string
	MemberID string
	Role     Role
}

// GroupMember is a member together with their role in one group
type GroupMember struct {
	Member
	Role Role
}

// Slot is a recurring weekly time slot that needs Capacity members
type Slot struct {
	ID        string
	GroupID   string
	Label     string
	DayOfWeek time.Weekday
	Start     Clock
	End       Clock
	Capacity  int
}

// TimeRange returns the time of day covered by the slot
func (s Slot) TimeRange() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}

// Validate checks the slot definition is usable for allocation
func (s Slot) Validate() error {
	if s.Label == "" {
		return fmt.Errorf("slot label is required")
	}
	if s.DayOfWeek < time.Sunday || s.DayOfWeek > time.Saturday {
		return fmt.Errorf("slot %q: day of week %d out of range", s.Label, s.DayOfWeek)
	}
	if !s.TimeRange().IsValid() {
		return fmt.Errorf("slot %q: time range %s is invalid", s.Label, s.TimeRange())
	}
	if s.Capacity < 1 {
		return fmt.Errorf("slot %q: capacity must be at least 1, got %d", s.Label, s.Capacity)
	}
	return nil
}

// AvailabilityMark records whether a member can serve.
// A mark with a Date applies to that whole day; a mark without a Date is
// recurring and applies to DayOfWeek between Start and End.
type AvailabilityMark struct {
	GroupID   string
	MemberID  string
	Date      string
	DayOfWeek time.Weekday
	Start     Clock
	End       Clock
	Available bool
	UpdatedAt time.Time
}

// IsRecurring reports whether the mark applies every week
func (m AvailabilityMark) IsRecurring() bool {
	return m.Date == ""
}

// TimeRange returns the time of day covered by a recurring mark
func (m AvailabilityMark) TimeRange() TimeRange {
	return TimeRange{Start: m.Start, End: m.End}
}

// Key identifies the mark for last-write-wins upserts
func (m AvailabilityMark) Key() string {
	if m.IsRecurring() {
		return fmt.Sprintf("%s|%s|%d|%s-%s", m.GroupID, m.MemberID, m.DayOfWeek, m.Start, m.End)
	}
	return fmt.Sprintf("%s|%s|%s", m.GroupID, m.MemberID, m.Date)
}

// Preference holds a member's scheduling limits within a group.
// Zero values mean "use the configured default".
type Preference struct {
	GroupID                   string
	MemberID                  string
	MaxAssignmentsPerPeriod   int
	MinDaysBetweenAssignments int
	BlackoutDates             []string
}

type AssignmentStatus string

const (
	AssignmentConfirmed AssignmentStatus = "confirmed"
)

// Assignment is a concrete commitment of a member to a date and time range
type Assignment struct {
	ID        string
	GroupID   string
	MemberID  string
	SlotID    string // empty for manual assignments with an explicit time range
	Date      string
	Start     Clock
	End       Clock
	Status    AssignmentStatus
	CreatedAt time.Time
}

// TimeRange returns the time of day covered by the assignment
func (a Assignment) TimeRange() TimeRange {
	return TimeRange{Start: a.Start, End: a.End}
}

// Overlaps reports whether both assignments occupy the same date and overlapping times.
// The member is not compared.
func (a Assignment) Overlaps(other Assignment) bool {
	return a.Date == other.Date && a.TimeRange().Overlaps(other.TimeRange())
}

// StartsAt returns the instant the assignment begins in the given location
func (a Assignment) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, a.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid assignment date %q: %w", a.Date, err)
	}
	return day.Add(time.Duration(a.Start) * time.Minute), nil
}

type SwapStatus string

const (
	SwapPending   SwapStatus = "pending"
	SwapAccepted  SwapStatus = "accepted"
	SwapRejected  SwapStatus = "rejected"
	SwapCancelled SwapStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed
func (s SwapStatus) IsTerminal() bool {
	return s == SwapAccepted || s == SwapRejected || s == SwapCancelled
}

// SwapRequest asks the holder of TargetAssignmentID to exchange it for RequesterAssignmentID
type SwapRequest struct {
	ID                    string
	GroupID               string
	RequesterAssignmentID string
	TargetAssignmentID    string
	RequesterMemberID     string
	TargetMemberID        string
	Status                SwapStatus
	Reason                string
	CreatedAt             time.Time
	ResolvedAt            *time.Time
}

// References reports whether the request mentions the assignment on either side
func (s SwapRequest) References(assignmentID string) bool {
	return s.RequesterAssignmentID == assignmentID || s.TargetAssignmentID == assignmentID
}
