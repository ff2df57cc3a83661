// Package memdb is an in-memory implementation of db.Database.
//
// It enforces the same rules as the Postgres schema: one assignment per
// member per overlapping date and time, and at most one pending swap request
// per assignment. Transactions are serialised and run against a private copy
// of the data which replaces the live copy only if the transaction succeeds,
// so a failure part way through leaves nothing behind.
package memdb

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

type state struct {
	members     map[string]model.Member
	memberships map[string]model.Membership
	slots       map[string]model.Slot
	marks       map[string]model.AvailabilityMark
	preferences map[string]model.Preference
	assignments map[string]model.Assignment
	swaps       map[string]model.SwapRequest
}

func newState() *state {
	return &state{
		members:     make(map[string]model.Member),
		memberships: make(map[string]model.Membership),
		slots:       make(map[string]model.Slot),
		marks:       make(map[string]model.AvailabilityMark),
		preferences: make(map[string]model.Preference),
		assignments: make(map[string]model.Assignment),
		swaps:       make(map[string]model.SwapRequest),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.marks {
		c.marks[k] = v
	}
	for k, v := range s.preferences {
		v.BlackoutDates = slices.Clone(v.BlackoutDates)
		c.preferences[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.swaps {
		if v.ResolvedAt != nil {
			resolved := *v.ResolvedAt
			v.ResolvedAt = &resolved
		}
		c.swaps[k] = v
	}
	return c
}

var _ db.Database = (*DB)(nil)

// DB provides database operations held in memory
type DB struct {
	mu      sync.Mutex
	current *state
}

// NewDB creates an empty in-memory database
func NewDB() *DB {
	return &DB{current: newState()}
}

func membershipKey(groupID, memberID string) string {
	return groupID + "|" + memberID
}

// WithTx runs fn against a private copy of the data and publishes the copy
// only when fn succeeds and every uniqueness rule still holds.
// fn must not call non-transactional methods on the same DB.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	staged := d.current.clone()
	if err := fn(ctx, &tx{s: staged}); err != nil {
		return err
	}

	if err := checkConstraints(staged); err != nil {
		return err
	}

	d.current = staged
	return nil
}

// checkConstraints mirrors the deferred constraints of the Postgres schema
func checkConstraints(s *state) error {
	byMember := make(map[string][]model.Assignment)
	for _, a := range s.assignments {
		byMember[a.MemberID] = append(byMember[a.MemberID], a)
	}
	for _, assignments := range byMember {
		sortAssignments(assignments)
		for i := 1; i < len(assignments); i++ {
			for j := i - 1; j >= 0 && assignments[j].Date == assignments[i].Date; j-- {
				if assignments[j].Overlaps(assignments[i]) {
					return &db.ConflictError{
						Constraint: "assignment_member_no_overlap",
						Detail:     "member " + assignments[i].MemberID + " already assigned on " + assignments[i].Date,
					}
				}
			}
		}
	}

	pendingRefs := make(map[string]string)
	for _, swap := range sortedSwaps(s.swaps) {
		if swap.Status != model.SwapPending {
			continue
		}
		for _, id := range []string{swap.RequesterAssignmentID, swap.TargetAssignmentID} {
			if other, exists := pendingRefs[id]; exists {
				return &db.ConflictError{
					Constraint: "swap_request_pending_assignment",
					Detail:     "assignment " + id + " referenced by pending requests " + other + " and " + swap.ID,
				}
			}
			pendingRefs[id] = swap.ID
		}
	}

	return nil
}

func sortAssignments(assignments []model.Assignment) {
	sort.Slice(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.MemberID != b.MemberID {
			return a.MemberID < b.MemberID
		}
		return a.ID < b.ID
	})
}

func sortedSwaps(swaps map[string]model.SwapRequest) []model.SwapRequest {
	result := make([]model.SwapRequest, 0, len(swaps))
	for _, s := range swaps {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func filterAssignments(s *state, filter db.AssignmentFilter) []model.Assignment {
	var result []model.Assignment
	for _, a := range s.assignments {
		if filter.GroupID != "" && a.GroupID != filter.GroupID {
			continue
		}
		if len(filter.MemberIDs) > 0 && !slices.Contains(filter.MemberIDs, a.MemberID) {
			continue
		}
		if filter.From != "" && a.Date < filter.From {
			continue
		}
		if filter.To != "" && a.Date > filter.To {
			continue
		}
		result = append(result, a)
	}
	sortAssignments(result)
	return result
}
