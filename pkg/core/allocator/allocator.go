package allocator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// AllocationConfig contains everything a single allocation run needs
type AllocationConfig struct {
	GroupID string

	// Instances to fill; they are processed in chronological order
	Instances []SlotInstance

	// Members who may be picked, with their availability and limits
	Members []*MemberProfile

	// Existing assignments for those members: history in this group plus
	// anything they already hold in any group during the run
	Existing []model.Assignment

	// Constraints to apply; see package criteria for the standard set
	Constraints []Constraint

	// Period for the per-period cap
	Period Period
}

// InstanceFill reports how one slot-instance was filled
type InstanceFill struct {
	Instance SlotInstance

	// MemberIDs picked for the instance, in pick order
	MemberIDs []string

	// Exclusions counts members rejected per reason before any pick for this instance
	Exclusions map[Reason]int
}

// Filled returns the number of members picked
func (f InstanceFill) Filled() int {
	return len(f.MemberIDs)
}

// IsPartial reports whether an open instance did not reach capacity
func (f InstanceFill) IsPartial() bool {
	return !f.Instance.Closed && f.Filled() < f.Instance.Capacity
}

// Required returns the headcount the instance needs, held places included
func (f InstanceFill) Required() int {
	if f.Instance.Closed {
		return 0
	}
	return f.Instance.Capacity + f.Instance.Held
}

// FillRatio returns (picked + held) / required; closed instances count as full
func (f InstanceFill) FillRatio() float64 {
	required := f.Required()
	if required == 0 {
		return 1
	}
	return float64(f.Filled()+f.Instance.Held) / float64(required)
}

// AllocationOutcome represents the result of an allocation run
type AllocationOutcome struct {
	// Proposals are the assignments to commit, without IDs, in pick order
	Proposals []model.Assignment

	// Fills has one entry per instance in processing order
	Fills []InstanceFill

	// PartialFills are the open instances that did not reach capacity
	PartialFills []InstanceFill

	// FillRatio is picks plus held places over total required headcount
	FillRatio float64

	// EligibleMemberCount is the number of members eligible for at least one open instance
	EligibleMemberCount int

	// Exclusions sums InstanceFill.Exclusions over all instances
	Exclusions map[Reason]int

	// Reasoning summarises the run for the leader
	Reasoning string

	// ValidationErrors lists any problems found re-checking the proposals
	ValidationErrors []InstanceValidationError
}

// Allocate fills each slot-instance greedily with the lowest-cost eligible
// members, re-evaluating eligibility after every pick. It never picks an
// ineligible member; instances that cannot be filled are reported as partial.
func Allocate(config AllocationConfig) (*AllocationOutcome, error) {
	if !config.Period.IsValid() {
		return nil, fmt.Errorf("unknown period %q", config.Period)
	}
	for _, instance := range config.Instances {
		if err := instance.Slot.Validate(); err != nil {
			return nil, err
		}
		if _, err := model.ParseDate(instance.Date); err != nil {
			return nil, err
		}
	}

	instances := make([]SlotInstance, len(config.Instances))
	copy(instances, config.Instances)
	SortInstances(instances)

	evaluator := NewEvaluator(config.Constraints)
	state := NewState(config.GroupID, config.Period, config.Members, config.Existing)

	outcome := &AllocationOutcome{
		Proposals:        []model.Assignment{},
		Fills:            make([]InstanceFill, 0, len(instances)),
		PartialFills:     []InstanceFill{},
		Exclusions:       make(map[Reason]int),
		ValidationErrors: []InstanceValidationError{},
	}
	everEligible := make(map[string]bool)

	for i := range instances {
		instance := &instances[i]
		fill := InstanceFill{Instance: *instance, MemberIDs: []string{}, Exclusions: make(map[Reason]int)}

		if instance.Closed {
			outcome.Fills = append(outcome.Fills, fill)
			continue
		}

		verdicts := evaluator.Evaluate(state, instance)
		for _, v := range verdicts {
			if v.IsEligible() {
				everEligible[v.MemberID] = true
			} else {
				fill.Exclusions[v.Reason]++
				outcome.Exclusions[v.Reason]++
			}
		}

		for seat := 0; seat < instance.Capacity; seat++ {
			if seat > 0 {
				verdicts = evaluator.Evaluate(state, instance)
			}
			ranked := RankEligible(verdicts)
			if len(ranked) == 0 {
				break
			}

			pick := proposal(config.GroupID, ranked[0].MemberID, instance)
			state.Propose(pick)
			outcome.Proposals = append(outcome.Proposals, pick)
			fill.MemberIDs = append(fill.MemberIDs, pick.MemberID)
		}

		outcome.Fills = append(outcome.Fills, fill)
		if fill.IsPartial() {
			outcome.PartialFills = append(outcome.PartialFills, fill)
		}
	}

	outcome.EligibleMemberCount = len(everEligible)
	outcome.FillRatio = overallFillRatio(outcome.Fills)
	outcome.ValidationErrors = ValidateOutcome(state, evaluator, outcome.Fills)
	outcome.Reasoning = buildReasoning(outcome)

	return outcome, nil
}

func overallFillRatio(fills []InstanceFill) float64 {
	required, filled := 0, 0
	for _, f := range fills {
		if f.Instance.Closed {
			continue
		}
		required += f.Required()
		filled += f.Filled() + f.Instance.Held
	}
	if required == 0 {
		return 1
	}
	return float64(filled) / float64(required)
}

// buildReasoning writes the leader-facing summary of a run
func buildReasoning(outcome *AllocationOutcome) string {
	var b strings.Builder

	open, required, held := 0, 0, 0
	for _, f := range outcome.Fills {
		if !f.Instance.Closed {
			open++
			required += f.Required()
			held += f.Instance.Held
		}
	}
	fmt.Fprintf(&b, "Filled %d of %d places across %d slot-instances (%.0f%%).",
		len(outcome.Proposals)+held, required, open, outcome.FillRatio*100)
	if held > 0 {
		fmt.Fprintf(&b, " %d already assigned before this run.", held)
	}

	if closed := len(outcome.Fills) - open; closed > 0 {
		fmt.Fprintf(&b, " %d closed.", closed)
	}

	type reasonCount struct {
		reason Reason
		count  int
	}
	var counts []reasonCount
	for _, r := range Reasons {
		if n := outcome.Exclusions[r]; n > 0 {
			counts = append(counts, reasonCount{r, n})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	if len(counts) > 0 {
		fmt.Fprintf(&b, " Most common exclusion: %s.", counts[0].reason)
		parts := make([]string, len(counts))
		for i, c := range counts {
			parts[i] = fmt.Sprintf("%s %d", c.reason, c.count)
		}
		fmt.Fprintf(&b, " Exclusions: %s.", strings.Join(parts, ", "))
	}

	if len(outcome.PartialFills) > 0 {
		parts := make([]string, len(outcome.PartialFills))
		for i, f := range outcome.PartialFills {
			parts[i] = fmt.Sprintf("%s %s (%d/%d)", f.Instance.Slot.Label, f.Instance.Date, f.Filled()+f.Instance.Held, f.Required())
		}
		fmt.Fprintf(&b, " Under-filled: %s.", strings.Join(parts, ", "))
	}

	return b.String()
}
