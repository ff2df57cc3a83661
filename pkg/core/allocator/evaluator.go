package allocator

import (
	"sort"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// Eligibility is the evaluator's verdict for one member and one slot-instance
type Eligibility struct {
	MemberID string

	// Reason is Eligible or the highest priority reason the member was rejected
	Reason Reason

	// Cost is the member's assignment count minus the average count across
	// members; lower is preferred. Only meaningful when eligible.
	Cost float64

	// LastAssigned is the member's most recent assignment date in the group, or ""
	LastAssigned string
}

// IsEligible reports whether the member may fill the slot-instance
func (e Eligibility) IsEligible() bool {
	return e.Reason == Eligible
}

// Evaluator turns a state and slot-instance into per-member eligibility.
// It holds no mutable data so the same inputs always give the same output.
type Evaluator struct {
	constraints []Constraint
}

// NewEvaluator orders constraints by reason priority
func NewEvaluator(constraints []Constraint) *Evaluator {
	ordered := make([]Constraint, len(constraints))
	copy(ordered, constraints)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Reason() < ordered[j].Reason()
	})
	return &Evaluator{constraints: ordered}
}

// Constraints returns the constraints in the order they are checked
func (e *Evaluator) Constraints() []Constraint {
	return e.constraints
}

// Check returns Eligible or the first reason the member is rejected
func (e *Evaluator) Check(state *State, member *MemberProfile, instance *SlotInstance) Reason {
	for _, c := range e.constraints {
		if !c.IsEligible(state, member, instance) {
			return c.Reason()
		}
	}
	return Eligible
}

// Evaluate returns one verdict per member, in state member order
func (e *Evaluator) Evaluate(state *State, instance *SlotInstance) []Eligibility {
	average := averageCount(state)

	result := make([]Eligibility, 0, len(state.Members))
	for _, member := range state.Members {
		verdict := Eligibility{
			MemberID: member.MemberID,
			Reason:   e.Check(state, member, instance),
		}
		if verdict.IsEligible() {
			verdict.Cost = float64(state.Count(member.MemberID)) - average
			verdict.LastAssigned = state.LatestAssigned(member.MemberID)
		}
		result = append(result, verdict)
	}
	return result
}

// EvaluateTable evaluates every instance against the state as it is, without
// making any picks. Keys are SlotInstance.Key.
func (e *Evaluator) EvaluateTable(state *State, instances []SlotInstance) map[string][]Eligibility {
	table := make(map[string][]Eligibility, len(instances))
	for i := range instances {
		table[instances[i].Key()] = e.Evaluate(state, &instances[i])
	}
	return table
}

func averageCount(state *State) float64 {
	if len(state.Members) == 0 {
		return 0
	}
	total := 0
	for _, member := range state.Members {
		total += state.Count(member.MemberID)
	}
	return float64(total) / float64(len(state.Members))
}

// proposal builds the assignment a pick would create
func proposal(groupID, memberID string, instance *SlotInstance) model.Assignment {
	return model.Assignment{
		GroupID:  groupID,
		MemberID: memberID,
		SlotID:   instance.Slot.ID,
		Date:     instance.Date,
		Start:    instance.Slot.Start,
		End:      instance.Slot.End,
		Status:   model.AssignmentConfirmed,
	}
}
