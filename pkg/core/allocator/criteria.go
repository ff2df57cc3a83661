package allocator

// Constraint is a hard eligibility rule. If any constraint rejects a member
// for a slot-instance the member cannot be assigned to it.
type Constraint interface {
	// Name returns a human-readable identifier for this constraint
	Name() string

	// Reason is reported when this constraint rejects a member.
	// Constraints are checked in Reason order and the first rejection wins.
	Reason() Reason

	// IsEligible reports whether the member may fill the instance given the current state
	IsEligible(state *State, member *MemberProfile, instance *SlotInstance) bool
}
