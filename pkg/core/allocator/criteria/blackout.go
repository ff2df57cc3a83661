package criteria

import "github.com/jakechorley/volunteer-rota/pkg/core/allocator"

// BlackoutCriterion rejects dates the member has declared unavailable
// regardless of their availability marks
type BlackoutCriterion struct{}

func NewBlackoutCriterion() *BlackoutCriterion {
	return &BlackoutCriterion{}
}

func (c *BlackoutCriterion) Name() string {
	return "Blackout"
}

func (c *BlackoutCriterion) Reason() allocator.Reason {
	return allocator.ReasonBlackout
}

func (c *BlackoutCriterion) IsEligible(state *allocator.State, member *allocator.MemberProfile, instance *allocator.SlotInstance) bool {
	return !member.BlackoutDates[instance.Date]
}
