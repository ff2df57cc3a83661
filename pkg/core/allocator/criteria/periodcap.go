package criteria

import (
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator"
)

// PeriodCapCriterion rejects members who already have their maximum number
// of assignments in this group for the period containing the instance
type PeriodCapCriterion struct{}

func NewPeriodCapCriterion() *PeriodCapCriterion {
	return &PeriodCapCriterion{}
}

func (c *PeriodCapCriterion) Name() string {
	return "PeriodCap"
}

func (c *PeriodCapCriterion) Reason() allocator.Reason {
	return allocator.ReasonPeriodCap
}

func (c *PeriodCapCriterion) IsEligible(state *allocator.State, member *allocator.MemberProfile, instance *allocator.SlotInstance) bool {
	if member.MaxAssignmentsPerPeriod <= 0 {
		return true
	}

	period, err := state.Period.Key(instance.Date)
	if err != nil {
		return false
	}

	count := 0
	for _, a := range state.GroupAssignments(member.MemberID) {
		if key, err := state.Period.Key(a.Date); err == nil && key == period {
			count++
		}
	}
	return count < member.MaxAssignmentsPerPeriod
}
