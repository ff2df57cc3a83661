package criteria

import (
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator"
)

// OverlapCriterion rejects members who already hold an assignment, in any
// group, on the same date at an overlapping time. Picks made earlier in the
// same run count, including picks for the same instance.
type OverlapCriterion struct{}

func NewOverlapCriterion() *OverlapCriterion {
	return &OverlapCriterion{}
}

func (c *OverlapCriterion) Name() string {
	return "Overlap"
}

func (c *OverlapCriterion) Reason() allocator.Reason {
	return allocator.ReasonOverlap
}

func (c *OverlapCriterion) IsEligible(state *allocator.State, member *allocator.MemberProfile, instance *allocator.SlotInstance) bool {
	window := instance.TimeRange()
	for _, a := range state.Assignments(member.MemberID) {
		if a.Date == instance.Date && a.TimeRange().Overlaps(window) {
			return false
		}
	}
	return true
}
