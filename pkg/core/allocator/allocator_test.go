package allocator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-rota/pkg/core/allocator"
	"github.com/jakechorley/volunteer-rota/pkg/core/allocator/criteria"
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// 2026-03-02 is a Monday
var eveningSlot = model.Slot{ID: "evening", GroupID: "g1", Label: "Evening", DayOfWeek: time.Monday, Start: 18 * 60, End: 20 * 60, Capacity: 3}

func availableMondays(memberID string) *allocator.MemberProfile {
	return &allocator.MemberProfile{
		MemberID: memberID,
		Marks: []model.AvailabilityMark{
			{GroupID: "g1", MemberID: memberID, DayOfWeek: time.Monday, Start: 0, End: 24 * 60, Available: true},
		},
		MaxAssignmentsPerPeriod:   4,
		MinDaysBetweenAssignments: 3,
	}
}

func history(memberID string, dates ...string) []model.Assignment {
	var result []model.Assignment
	for _, d := range dates {
		result = append(result, model.Assignment{
			ID: memberID + "-" + d, GroupID: "g1", MemberID: memberID, SlotID: "evening",
			Date: d, Start: 18 * 60, End: 20 * 60, Status: model.AssignmentConfirmed,
		})
	}
	return result
}

func concat(groups ...[]model.Assignment) []model.Assignment {
	var result []model.Assignment
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}

func instance(slot model.Slot, date string) allocator.SlotInstance {
	return allocator.SlotInstance{Slot: slot, Date: date, Capacity: slot.Capacity}
}

func TestAllocate_PicksLowestCountMembers(t *testing.T) {
	members := []*allocator.MemberProfile{
		availableMondays("e"), availableMondays("d"), availableMondays("c"), availableMondays("b"), availableMondays("a"),
	}
	existing := concat(
		history("b", "2026-01-20"),
		history("c", "2026-01-10"),
		history("d", "2026-01-05", "2026-01-26"),
		history("e", "2026-01-05", "2026-01-12", "2026-01-19"),
	)

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(eveningSlot, "2026-03-02")},
		Members:     members,
		Existing:    existing,
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)

	require.Len(t, outcome.Fills, 1)
	// c and b tie on count; c has been idle longer
	assert.Equal(t, []string{"a", "c", "b"}, outcome.Fills[0].MemberIDs)
	assert.Empty(t, outcome.PartialFills)
	assert.Equal(t, 1.0, outcome.FillRatio)
	assert.Equal(t, 5, outcome.EligibleMemberCount)
	assert.Empty(t, outcome.ValidationErrors)

	for _, p := range outcome.Proposals {
		assert.Empty(t, p.ID)
		assert.Equal(t, "evening", p.SlotID)
		assert.Equal(t, "2026-03-02", p.Date)
		assert.Equal(t, model.AssignmentConfirmed, p.Status)
	}
}

func TestAllocate_TieBreaksOnMemberIDWhenNeverAssigned(t *testing.T) {
	slot := eveningSlot
	slot.Capacity = 2

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(slot, "2026-03-02")},
		Members:     []*allocator.MemberProfile{availableMondays("z"), availableMondays("y"), availableMondays("x")},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, outcome.Fills[0].MemberIDs)
}

func TestAllocate_PeriodCapMarksMemberIneligible(t *testing.T) {
	capped := availableMondays("capped")
	capped.MaxAssignmentsPerPeriod = 2
	members := []*allocator.MemberProfile{capped, availableMondays("free")}
	existing := history("capped", "2026-03-02", "2026-03-09")

	state := allocator.NewState("g1", allocator.PeriodMonth, members, existing)
	evaluator := allocator.NewEvaluator(criteria.Default())

	for _, date := range []string{"2026-03-23", "2026-03-30"} {
		inst := instance(eveningSlot, date)
		verdicts := evaluator.Evaluate(state, &inst)
		require.Len(t, verdicts, 2)
		assert.Equal(t, allocator.ReasonPeriodCap, verdicts[0].Reason, date)
		assert.True(t, verdicts[1].IsEligible(), date)
	}

	// A new month resets the cap
	april := instance(eveningSlot, "2026-04-06")
	verdicts := evaluator.Evaluate(state, &april)
	assert.True(t, verdicts[0].IsEligible())
}

func TestAllocate_ReportsHighestPriorityReason(t *testing.T) {
	member := availableMondays("m1")
	member.Marks = nil
	member.BlackoutDates = map[string]bool{"2026-03-02": true}

	state := allocator.NewState("g1", allocator.PeriodMonth, []*allocator.MemberProfile{member}, nil)
	evaluator := allocator.NewEvaluator(criteria.Default())

	inst := instance(eveningSlot, "2026-03-02")
	verdicts := evaluator.Evaluate(state, &inst)
	assert.Equal(t, allocator.ReasonNoAvailability, verdicts[0].Reason)
}

func TestAllocate_IsDeterministic(t *testing.T) {
	lunch := model.Slot{ID: "lunch", GroupID: "g1", Label: "Lunch", DayOfWeek: time.Monday, Start: 12 * 60, End: 14 * 60, Capacity: 2}
	instances, err := allocator.ExpandSlotInstances([]model.Slot{eveningSlot, lunch}, "2026-03-01", "2026-04-30", nil)
	require.NoError(t, err)

	config := func() allocator.AllocationConfig {
		var members []*allocator.MemberProfile
		for _, id := range []string{"m5", "m2", "m4", "m1", "m3", "m6"} {
			members = append(members, availableMondays(id))
		}
		return allocator.AllocationConfig{
			GroupID:     "g1",
			Instances:   instances,
			Members:     members,
			Existing:    concat(history("m1", "2026-02-02"), history("m4", "2026-02-09", "2026-02-16")),
			Constraints: criteria.Default(),
			Period:      allocator.PeriodMonth,
		}
	}

	first, err := allocator.Allocate(config())
	require.NoError(t, err)
	second, err := allocator.Allocate(config())
	require.NoError(t, err)

	assert.Equal(t, first.Proposals, second.Proposals)
	assert.Equal(t, first.Reasoning, second.Reasoning)
	assert.Empty(t, first.ValidationErrors)
}

func TestAllocate_PrefersMemberWithFewerHistoricalAssignments(t *testing.T) {
	slot := eveningSlot
	slot.Capacity = 1

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(slot, "2026-03-02")},
		Members:     []*allocator.MemberProfile{availableMondays("a"), availableMondays("b")},
		Existing:    concat(history("a", "2026-01-05", "2026-01-12"), history("b", "2026-01-19")),
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, outcome.Fills[0].MemberIDs)
}

func TestAllocate_PartialFill(t *testing.T) {
	unavailable := availableMondays("busy")
	unavailable.Marks = nil

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(eveningSlot, "2026-03-02")},
		Members:     []*allocator.MemberProfile{availableMondays("only"), unavailable},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)

	require.Len(t, outcome.PartialFills, 1)
	assert.Equal(t, []string{"only"}, outcome.PartialFills[0].MemberIDs)
	assert.InDelta(t, 1.0/3.0, outcome.FillRatio, 0.0001)
	assert.Equal(t, 1, outcome.Fills[0].Exclusions[allocator.ReasonNoAvailability])
	assert.Contains(t, outcome.Reasoning, "Most common exclusion: no availability")
	assert.Contains(t, outcome.Reasoning, "Under-filled: Evening 2026-03-02 (1/3)")
	assert.Len(t, outcome.Proposals, 1)
}

func TestAllocate_MemberFillsOnlyOneOfOverlappingSlots(t *testing.T) {
	early := model.Slot{ID: "early", GroupID: "g1", Label: "Early", DayOfWeek: time.Monday, Start: 17 * 60, End: 19 * 60, Capacity: 1}
	late := model.Slot{ID: "late", GroupID: "g1", Label: "Late", DayOfWeek: time.Monday, Start: 18 * 60, End: 21 * 60, Capacity: 1}

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(late, "2026-03-02"), instance(early, "2026-03-02")},
		Members:     []*allocator.MemberProfile{availableMondays("solo")},
		Constraints: []allocator.Constraint{criteria.NewAvailabilityCriterion(), criteria.NewOverlapCriterion()},
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)

	// Earlier start is processed first
	require.Len(t, outcome.Fills, 2)
	assert.Equal(t, "early", outcome.Fills[0].Instance.Slot.ID)
	assert.Equal(t, []string{"solo"}, outcome.Fills[0].MemberIDs)
	assert.Empty(t, outcome.Fills[1].MemberIDs)
	assert.Equal(t, 1, outcome.Fills[1].Exclusions[allocator.ReasonOverlap])
}

func TestAllocate_RespectsOtherGroupCommitments(t *testing.T) {
	slot := eveningSlot
	slot.Capacity = 1

	otherGroup := model.Assignment{ID: "x", GroupID: "g2", MemberID: "a", Date: "2026-03-02", Start: 19 * 60, End: 22 * 60}
	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(slot, "2026-03-02")},
		Members:     []*allocator.MemberProfile{availableMondays("a"), availableMondays("b")},
		Existing:    []model.Assignment{otherGroup},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, outcome.Fills[0].MemberIDs)
}

func TestAllocate_NoEligibleMembers(t *testing.T) {
	member := availableMondays("a")
	member.Marks = nil

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(eveningSlot, "2026-03-02")},
		Members:     []*allocator.MemberProfile{member},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.EligibleMemberCount)
	assert.Equal(t, 0.0, outcome.FillRatio)
}

func TestAllocate_ClosedInstanceIsNotFilled(t *testing.T) {
	closed := instance(eveningSlot, "2026-03-02")
	closed.Closed = true

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{closed},
		Members:     []*allocator.MemberProfile{availableMondays("a")},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)
	assert.Empty(t, outcome.Proposals)
	assert.Empty(t, outcome.PartialFills)
	assert.Equal(t, 1.0, outcome.FillRatio)
	assert.Contains(t, outcome.Reasoning, "1 closed")
}

func TestAllocate_RejectsInvalidInput(t *testing.T) {
	bad := eveningSlot
	bad.Capacity = 0

	_, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:   "g1",
		Instances: []allocator.SlotInstance{instance(bad, "2026-03-02")},
		Period:    allocator.PeriodMonth,
	})
	assert.Error(t, err)

	_, err = allocator.Allocate(allocator.AllocationConfig{GroupID: "g1", Period: "fortnight"})
	assert.Error(t, err)
}

func TestAllocate_HeldPlacesCountTowardsHeadcount(t *testing.T) {
	slot := eveningSlot
	partlyHeld := instance(slot, "2026-03-02")
	partlyHeld.Capacity = 1
	partlyHeld.Held = 2

	unavailable := availableMondays("busy")
	unavailable.Marks = nil

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{partlyHeld},
		Members:     []*allocator.MemberProfile{unavailable},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, outcome.FillRatio, 0.0001)
	assert.Equal(t, 3, outcome.Fills[0].Required())
	assert.Contains(t, outcome.Reasoning, "Filled 2 of 3 places across 1 slot-instances (67%).")
	assert.Contains(t, outcome.Reasoning, "2 already assigned before this run.")
	assert.Contains(t, outcome.Reasoning, "Under-filled: Evening 2026-03-02 (2/3)")
}

func TestAllocate_FullyHeldInstanceIsComplete(t *testing.T) {
	fullyHeld := instance(eveningSlot, "2026-03-02")
	fullyHeld.Capacity = 0
	fullyHeld.Held = 3

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{fullyHeld},
		Members:     []*allocator.MemberProfile{availableMondays("a")},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)

	assert.Empty(t, outcome.Proposals)
	assert.Empty(t, outcome.PartialFills)
	assert.Equal(t, 1.0, outcome.FillRatio)
	assert.Contains(t, outcome.Reasoning, "Filled 3 of 3 places")
}

func TestAllocate_SameTimeSlotsOrderedByLabel(t *testing.T) {
	kitchen := model.Slot{ID: "zz", GroupID: "g1", Label: "Kitchen", DayOfWeek: time.Monday, Start: 18 * 60, End: 20 * 60, Capacity: 1}
	door := model.Slot{ID: "zzz", GroupID: "g1", Label: "Door", DayOfWeek: time.Monday, Start: 18 * 60, End: 20 * 60, Capacity: 1}

	outcome, err := allocator.Allocate(allocator.AllocationConfig{
		GroupID:     "g1",
		Instances:   []allocator.SlotInstance{instance(kitchen, "2026-03-02"), instance(door, "2026-03-02")},
		Members:     []*allocator.MemberProfile{availableMondays("b"), availableMondays("a")},
		Constraints: criteria.Default(),
		Period:      allocator.PeriodMonth,
	})
	require.NoError(t, err)

	require.Len(t, outcome.Fills, 2)
	assert.Equal(t, "Door", outcome.Fills[0].Instance.Slot.Label)
	assert.Equal(t, []string{"a"}, outcome.Fills[0].MemberIDs)
	assert.Equal(t, "Kitchen", outcome.Fills[1].Instance.Slot.Label)
	assert.Equal(t, []string{"b"}, outcome.Fills[1].MemberIDs)
}
