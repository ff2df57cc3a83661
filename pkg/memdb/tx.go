package memdb

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// tx operates on a staged copy owned by a single WithTx call
type tx struct {
	s *state
}

// LockGroup is a no-op: WithTx already runs one transaction at a time
func (t *tx) LockGroup(ctx context.Context, groupID string) error {
	return nil
}

func (t *tx) GetAssignmentForUpdate(ctx context.Context, id string) (*model.Assignment, error) {
	a, ok := t.s.assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", id, db.ErrNotFound)
	}
	return &a, nil
}

func (t *tx) ListAssignments(ctx context.Context, filter db.AssignmentFilter) ([]model.Assignment, error) {
	return filterAssignments(t.s, filter), nil
}

func (t *tx) InsertAssignments(ctx context.Context, assignments []model.Assignment) error {
	for _, a := range assignments {
		if _, exists := t.s.assignments[a.ID]; exists {
			return &db.ConflictError{Constraint: "assignment_pkey", Detail: "assignment " + a.ID + " already exists"}
		}
		t.s.assignments[a.ID] = a
	}
	return nil
}

func (t *tx) UpdateAssignmentMember(ctx context.Context, id, memberID string) error {
	a, ok := t.s.assignments[id]
	if !ok {
		return fmt.Errorf("assignment %s: %w", id, db.ErrNotFound)
	}
	a.MemberID = memberID
	t.s.assignments[id] = a
	return nil
}

func (t *tx) DeleteAssignments(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.s.assignments, id)
	}
	return nil
}

func (t *tx) GetSwapRequestForUpdate(ctx context.Context, id string) (*model.SwapRequest, error) {
	s, ok := t.s.swaps[id]
	if !ok {
		return nil, fmt.Errorf("swap request %s: %w", id, db.ErrNotFound)
	}
	return &s, nil
}

func (t *tx) ListPendingSwapRequests(ctx context.Context, assignmentIDs []string) ([]model.SwapRequest, error) {
	var result []model.SwapRequest
	for _, s := range sortedSwaps(t.s.swaps) {
		if s.Status != model.SwapPending {
			continue
		}
		if slices.ContainsFunc(assignmentIDs, s.References) {
			result = append(result, s)
		}
	}
	return result, nil
}

func (t *tx) InsertSwapRequest(ctx context.Context, swap *model.SwapRequest) error {
	if _, exists := t.s.swaps[swap.ID]; exists {
		return &db.ConflictError{Constraint: "swap_request_pkey", Detail: "swap request " + swap.ID + " already exists"}
	}
	t.s.swaps[swap.ID] = *swap
	return nil
}

func (t *tx) ResolveSwapRequest(ctx context.Context, id string, status model.SwapStatus, resolvedAt time.Time) error {
	s, ok := t.s.swaps[id]
	if !ok {
		return fmt.Errorf("swap request %s: %w", id, db.ErrNotFound)
	}
	s.Status = status
	s.ResolvedAt = &resolvedAt
	t.s.swaps[id] = s
	return nil
}

func (t *tx) DeleteSwapRequests(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.s.swaps, id)
	}
	return nil
}

func (t *tx) DeleteMembership(ctx context.Context, groupID, memberID string) error {
	key := membershipKey(groupID, memberID)
	if _, ok := t.s.memberships[key]; !ok {
		return fmt.Errorf("membership %s/%s: %w", groupID, memberID, db.ErrNotFound)
	}
	delete(t.s.memberships, key)
	return nil
}
