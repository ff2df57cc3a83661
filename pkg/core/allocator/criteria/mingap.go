package criteria

import (
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator"
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// MinGapCriterion rejects members whose last assignment in this group, on or
// before the instance date, is fewer than MinDaysBetweenAssignments days earlier
type MinGapCriterion struct{}

func NewMinGapCriterion() *MinGapCriterion {
	return &MinGapCriterion{}
}

func (c *MinGapCriterion) Name() string {
	return "MinGap"
}

func (c *MinGapCriterion) Reason() allocator.Reason {
	return allocator.ReasonMinGap
}

func (c *MinGapCriterion) IsEligible(state *allocator.State, member *allocator.MemberProfile, instance *allocator.SlotInstance) bool {
	if member.MinDaysBetweenAssignments <= 0 {
		return true
	}

	last := state.LastAssigned(member.MemberID, instance.Date)
	if last == "" {
		return true
	}

	days, err := model.DaysBetween(last, instance.Date)
	if err != nil {
		return false
	}
	return days >= member.MinDaysBetweenAssignments
}
