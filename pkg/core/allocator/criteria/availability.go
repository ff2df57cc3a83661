package criteria

import (
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator"
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// AvailabilityCriterion requires the member to have marked themselves
// available for the exact date and time.
//
// A dated mark decides the whole day. Without one, recurring marks for the
// weekday apply: any unavailable mark overlapping the instance rejects it,
// otherwise an available mark must cover the whole instance.
type AvailabilityCriterion struct{}

func NewAvailabilityCriterion() *AvailabilityCriterion {
	return &AvailabilityCriterion{}
}

func (c *AvailabilityCriterion) Name() string {
	return "Availability"
}

func (c *AvailabilityCriterion) Reason() allocator.Reason {
	return allocator.ReasonNoAvailability
}

func (c *AvailabilityCriterion) IsEligible(state *allocator.State, member *allocator.MemberProfile, instance *allocator.SlotInstance) bool {
	return IsAvailable(member.Marks, instance.Date, instance.TimeRange())
}

// IsAvailable applies the mark precedence rules to one date and time range
func IsAvailable(marks []model.AvailabilityMark, date string, window model.TimeRange) bool {
	for _, m := range marks {
		if !m.IsRecurring() && m.Date == date {
			return m.Available
		}
	}

	day, err := model.ParseDate(date)
	if err != nil {
		return false
	}

	covered := false
	for _, m := range marks {
		if !m.IsRecurring() || m.DayOfWeek != day.Weekday() || !m.TimeRange().Overlaps(window) {
			continue
		}
		if !m.Available {
			return false
		}
		if m.TimeRange().Contains(window) {
			covered = true
		}
	}
	return covered
}
