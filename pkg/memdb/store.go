package memdb

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// GetMember retrieves a member by ID
func (d *DB) GetMember(ctx context.Context, id string) (*model.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.current.members[id]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", id, db.ErrNotFound)
	}
	return &m, nil
}

// UpsertMember inserts or replaces a member
func (d *DB) UpsertMember(ctx context.Context, member *model.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.current.members[member.ID] = *member
	return nil
}

// GetMembership retrieves a member's role in a group
func (d *DB) GetMembership(ctx context.Context, groupID, memberID string) (*model.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.current.memberships[membershipKey(groupID, memberID)]
	if !ok {
		return nil, fmt.Errorf("membership %s/%s: %w", groupID, memberID, db.ErrNotFound)
	}
	return &m, nil
}

// UpsertMembership inserts or replaces a membership
func (d *DB) UpsertMembership(ctx context.Context, membership *model.Membership) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.current.members[membership.MemberID]; !ok {
		return fmt.Errorf("member %s: %w", membership.MemberID, db.ErrNotFound)
	}
	d.current.memberships[membershipKey(membership.GroupID, membership.MemberID)] = *membership
	return nil
}

// ListGroupMembers returns all members of a group ordered by member ID
func (d *DB) ListGroupMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []model.GroupMember
	for _, ms := range d.current.memberships {
		if ms.GroupID != groupID {
			continue
		}
		result = append(result, model.GroupMember{
			Member: d.current.members[ms.MemberID],
			Role:   ms.Role,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListSlots returns a group's slots ordered by weekday then start time
func (d *DB) ListSlots(ctx context.Context, groupID string) ([]model.Slot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []model.Slot
	for _, s := range d.current.slots {
		if s.GroupID == groupID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})
	return result, nil
}

// GetSlot retrieves a slot by ID
func (d *DB) GetSlot(ctx context.Context, id string) (*model.Slot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.current.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot %s: %w", id, db.ErrNotFound)
	}
	return &s, nil
}

// InsertSlot inserts a new slot
func (d *DB) InsertSlot(ctx context.Context, slot *model.Slot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.current.slots[slot.ID]; exists {
		return &db.ConflictError{Constraint: "slot_pkey", Detail: "slot " + slot.ID + " already exists"}
	}
	d.current.slots[slot.ID] = *slot
	return nil
}

// DeleteSlot removes a slot. Existing assignments keep their times.
func (d *DB) DeleteSlot(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.current.slots[id]; !ok {
		return fmt.Errorf("slot %s: %w", id, db.ErrNotFound)
	}
	delete(d.current.slots, id)
	return nil
}

// ListAvailabilityMarks returns dated marks between from and to plus all recurring marks
func (d *DB) ListAvailabilityMarks(ctx context.Context, groupID, from, to string) ([]model.AvailabilityMark, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []model.AvailabilityMark
	for _, m := range d.current.marks {
		if m.GroupID != groupID {
			continue
		}
		if !m.IsRecurring() && (m.Date < from || m.Date > to) {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key() < result[j].Key() })
	return result, nil
}

// UpsertAvailabilityMarks stores marks, replacing any existing mark with the same key
func (d *DB) UpsertAvailabilityMarks(ctx context.Context, marks []model.AvailabilityMark) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, m := range marks {
		d.current.marks[m.Key()] = m
	}
	return nil
}

// ListPreferences returns every stored preference for a group
func (d *DB) ListPreferences(ctx context.Context, groupID string) ([]model.Preference, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []model.Preference
	for _, p := range d.current.preferences {
		if p.GroupID == groupID {
			p.BlackoutDates = slices.Clone(p.BlackoutDates)
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MemberID < result[j].MemberID })
	return result, nil
}

// UpsertPreference inserts or replaces a member's preference
func (d *DB) UpsertPreference(ctx context.Context, pref *model.Preference) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := *pref
	p.BlackoutDates = slices.Clone(pref.BlackoutDates)
	d.current.preferences[membershipKey(p.GroupID, p.MemberID)] = p
	return nil
}

// GetAssignment retrieves an assignment by ID
func (d *DB) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.current.assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", id, db.ErrNotFound)
	}
	return &a, nil
}

// ListAssignments returns assignments matching the filter ordered by date and start time
func (d *DB) ListAssignments(ctx context.Context, filter db.AssignmentFilter) ([]model.Assignment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return filterAssignments(d.current, filter), nil
}

// GetSwapRequest retrieves a swap request by ID
func (d *DB) GetSwapRequest(ctx context.Context, id string) (*model.SwapRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.current.swaps[id]
	if !ok {
		return nil, fmt.Errorf("swap request %s: %w", id, db.ErrNotFound)
	}
	return &s, nil
}

// ListSwapRequests returns every swap request the member is party to, oldest first
func (d *DB) ListSwapRequests(ctx context.Context, memberID string) ([]model.SwapRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []model.SwapRequest
	for _, s := range sortedSwaps(d.current.swaps) {
		if s.RequesterMemberID == memberID || s.TargetMemberID == memberID {
			result = append(result, s)
		}
	}
	return result, nil
}
