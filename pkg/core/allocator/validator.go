package allocator

import (
	"fmt"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// InstanceValidationError represents a problem found in an allocation outcome
type InstanceValidationError struct {
	Date        string
	SlotLabel   string
	Check       string
	Description string
}

func (e InstanceValidationError) Error() string {
	return fmt.Sprintf("%s %s [%s]: %s", e.SlotLabel, e.Date, e.Check, e.Description)
}

// ValidateOutcome re-checks the proposals in state:
//   - no instance is filled beyond capacity
//   - no proposal overlaps another assignment of the same member
//   - every pick was eligible given the picks before it
//
// An empty slice indicates the outcome is sound.
func ValidateOutcome(state *State, evaluator *Evaluator, fills []InstanceFill) []InstanceValidationError {
	var errors []InstanceValidationError

	for _, f := range fills {
		if f.Filled() > f.Instance.Capacity || (f.Instance.Closed && f.Filled() > 0) {
			errors = append(errors, InstanceValidationError{
				Date:        f.Instance.Date,
				SlotLabel:   f.Instance.Slot.Label,
				Check:       "Capacity",
				Description: fmt.Sprintf("filled %d places but capacity is %d", f.Filled(), f.Instance.Capacity),
			})
		}
	}

	profiles := make(map[string]*MemberProfile, len(state.Members))
	for _, m := range state.Members {
		profiles[m.MemberID] = m
	}

	for i, p := range state.Proposed {
		instance := instanceFor(fills, p)
		label := ""
		if instance != nil {
			label = instance.Slot.Label
		}

		overlaps := 0
		for _, other := range state.Assignments(p.MemberID) {
			if p.Overlaps(other) {
				overlaps++
			}
		}
		// A proposal always overlaps itself
		if overlaps > 1 {
			errors = append(errors, InstanceValidationError{
				Date:        p.Date,
				SlotLabel:   label,
				Check:       "Uniqueness",
				Description: fmt.Sprintf("member %s has %d overlapping assignments at %s", p.MemberID, overlaps, p.TimeRange()),
			})
		}

		member, ok := profiles[p.MemberID]
		if !ok {
			errors = append(errors, InstanceValidationError{
				Date:        p.Date,
				SlotLabel:   label,
				Check:       "Eligibility",
				Description: fmt.Sprintf("member %s is not a candidate", p.MemberID),
			})
			continue
		}
		if instance == nil {
			continue
		}

		// The pick must be eligible against the state before it was made
		before := state.Clone(i)
		if reason := evaluator.Check(before, member, instance); reason != Eligible {
			errors = append(errors, InstanceValidationError{
				Date:        p.Date,
				SlotLabel:   label,
				Check:       "Eligibility",
				Description: fmt.Sprintf("member %s was ineligible: %s", p.MemberID, reason),
			})
		}
	}

	return errors
}

func instanceFor(fills []InstanceFill, a model.Assignment) *SlotInstance {
	for i := range fills {
		if fills[i].Instance.Slot.ID == a.SlotID && fills[i].Instance.Date == a.Date {
			return &fills[i].Instance
		}
	}
	return nil
}
