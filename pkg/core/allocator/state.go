package allocator

import (
	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// State is the view of existing and proposed assignments that constraints
// and ranking read from. It changes only when the engine picks a member.
type State struct {
	GroupID string
	Period  Period

	// Members in a fixed order; ties and reports follow this order
	Members []*MemberProfile

	// byMember holds committed assignments in any group followed by proposals
	byMember map[string][]model.Assignment

	// Proposed are the picks made so far in this run, in pick order
	Proposed []model.Assignment
}

// NewState indexes existing assignments by member
func NewState(groupID string, period Period, members []*MemberProfile, existing []model.Assignment) *State {
	s := &State{
		GroupID:  groupID,
		Period:   period,
		Members:  members,
		byMember: make(map[string][]model.Assignment),
	}
	for _, a := range existing {
		s.byMember[a.MemberID] = append(s.byMember[a.MemberID], a)
	}
	return s
}

// Propose records a pick so later evaluations see it
func (s *State) Propose(a model.Assignment) {
	s.Proposed = append(s.Proposed, a)
	s.byMember[a.MemberID] = append(s.byMember[a.MemberID], a)
}

// Clone returns a state with the same existing assignments and the first n proposals
func (s *State) Clone(n int) *State {
	c := &State{
		GroupID:  s.GroupID,
		Period:   s.Period,
		Members:  s.Members,
		byMember: make(map[string][]model.Assignment, len(s.byMember)),
	}
	proposed := make(map[string]int)
	for _, p := range s.Proposed {
		proposed[p.MemberID]++
	}
	for memberID, assignments := range s.byMember {
		existing := len(assignments) - proposed[memberID]
		c.byMember[memberID] = append([]model.Assignment(nil), assignments[:existing]...)
	}
	for _, p := range s.Proposed[:n] {
		c.Propose(p)
	}
	return c
}

// Assignments returns every known assignment for the member in any group
func (s *State) Assignments(memberID string) []model.Assignment {
	return s.byMember[memberID]
}

// GroupAssignments returns the member's assignments in the state's group
func (s *State) GroupAssignments(memberID string) []model.Assignment {
	var result []model.Assignment
	for _, a := range s.byMember[memberID] {
		if a.GroupID == s.GroupID {
			result = append(result, a)
		}
	}
	return result
}

// Count returns the member's assignment count in this group, proposals included
func (s *State) Count(memberID string) int {
	return len(s.GroupAssignments(memberID))
}

// LastAssigned returns the latest date on or before date the member is
// assigned in this group, or "" if there is none
func (s *State) LastAssigned(memberID, date string) string {
	last := ""
	for _, a := range s.GroupAssignments(memberID) {
		if a.Date <= date && a.Date > last {
			last = a.Date
		}
	}
	return last
}

// LatestAssigned returns the member's most recent assignment date in this group, or ""
func (s *State) LatestAssigned(memberID string) string {
	last := ""
	for _, a := range s.GroupAssignments(memberID) {
		if a.Date > last {
			last = a.Date
		}
	}
	return last
}
