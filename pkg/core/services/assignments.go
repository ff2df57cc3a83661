package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
	"github.com/jakechorley/volunteer-rota/pkg/notify"
)

// AssignmentStore defines the database operations needed to edit assignments by hand
type AssignmentStore interface {
	MembershipReader
	GetSlot(ctx context.Context, id string) (*model.Slot, error)
	GetAssignment(ctx context.Context, id string) (*model.Assignment, error)
	ListAssignments(ctx context.Context, filter db.AssignmentFilter) ([]model.Assignment, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error
}

// CreateAssignmentRequest assigns a member by hand, either to a slot on a
// date or to an explicit time range
type CreateAssignmentRequest struct {
	CallerID string `validate:"required"`
	GroupID  string `validate:"required"`
	MemberID string `validate:"required"`
	Date     string `validate:"required"`
	SlotID   string
	Start    model.Clock
	End      model.Clock
}

// CreateAssignment saves a leader's manual assignment. An overlapping
// assignment for the member in any group fails with ErrAssignmentConflict.
func CreateAssignment(
	ctx context.Context,
	store AssignmentStore,
	gateway notify.Gateway,
	logger *zap.Logger,
	req CreateAssignmentRequest,
	now time.Time,
) (*model.Assignment, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if _, err := model.ParseDate(req.Date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := requireLeader(ctx, store, req.GroupID, req.CallerID); err != nil {
		return nil, err
	}
	if _, err := store.GetMembership(ctx, req.GroupID, req.MemberID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s in group %s", ErrMemberNotFound, req.MemberID, req.GroupID)
		}
		return nil, fmt.Errorf("failed to fetch membership: %w", err)
	}

	assignment := model.Assignment{
		ID:        uuid.New().String(),
		GroupID:   req.GroupID,
		MemberID:  req.MemberID,
		SlotID:    req.SlotID,
		Date:      req.Date,
		Start:     req.Start,
		End:       req.End,
		Status:    model.AssignmentConfirmed,
		CreatedAt: now,
	}

	if req.SlotID != "" {
		slot, err := store.GetSlot(ctx, req.SlotID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && slot.GroupID != req.GroupID) {
			return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, req.SlotID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch slot: %w", err)
		}
		day, _ := model.ParseDate(req.Date)
		if day.Weekday() != slot.DayOfWeek {
			return nil, fmt.Errorf("%w: slot %q runs on %s, not %s", ErrInvalidRequest, slot.Label, slot.DayOfWeek, day.Weekday())
		}
		assignment.Start, assignment.End = slot.Start, slot.End
	}
	if !assignment.TimeRange().IsValid() {
		return nil, fmt.Errorf("%w: time range %s is invalid", ErrInvalidRequest, assignment.TimeRange())
	}

	logger.Debug("Creating assignment",
		zap.String("member_id", assignment.MemberID),
		zap.String("date", assignment.Date),
		zap.String("time", assignment.TimeRange().String()))

	err := store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		// Serialised with schedule commits, which count the group's places
		if err := tx.LockGroup(ctx, req.GroupID); err != nil {
			return fmt.Errorf("failed to lock group: %w", err)
		}
		existing, err := tx.ListAssignments(ctx, db.AssignmentFilter{MemberIDs: []string{req.MemberID}, From: req.Date, To: req.Date})
		if err != nil {
			return fmt.Errorf("failed to fetch member assignments: %w", err)
		}
		for _, a := range existing {
			if a.Overlaps(assignment) {
				return fmt.Errorf("%w: %s already holds %s", ErrAssignmentConflict, req.MemberID, a.ID)
			}
		}
		if err := tx.InsertAssignments(ctx, []model.Assignment{assignment}); err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
		return nil
	})
	if errors.Is(err, db.ErrConflict) {
		return nil, fmt.Errorf("%w: %v", ErrAssignmentConflict, err)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Assignment created", zap.String("id", assignment.ID), zap.String("member_id", assignment.MemberID))
	notifyAll(ctx, gateway, logger, assignmentEvent(notify.EventAssignmentCreated, assignment, now))
	return &assignment, nil
}

// DeleteAssignment removes an assignment. Pending swap requests that
// mention it are kept and fail with ErrAssignmentNoLongerValid on accept.
func DeleteAssignment(
	ctx context.Context,
	store AssignmentStore,
	gateway notify.Gateway,
	logger *zap.Logger,
	callerID, assignmentID string,
	now time.Time,
) error {
	assignment, err := store.GetAssignment(ctx, assignmentID)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAssignmentNotFound, assignmentID)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch assignment: %w", err)
	}
	if err := requireLeader(ctx, store, assignment.GroupID, callerID); err != nil {
		return err
	}

	err = store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return tx.DeleteAssignments(ctx, []string{assignmentID})
	})
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}

	logger.Info("Assignment deleted", zap.String("id", assignmentID))
	notifyAll(ctx, gateway, logger, assignmentEvent(notify.EventAssignmentDeleted, *assignment, now))
	return nil
}

// ListAssignments returns a group's assignments between two dates inclusive
func ListAssignments(ctx context.Context, store AssignmentStore, callerID, groupID, from, to string) ([]model.Assignment, error) {
	if err := validateDateRange(from, to); err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, store, groupID, callerID); err != nil {
		return nil, err
	}
	assignments, err := store.ListAssignments(ctx, db.AssignmentFilter{GroupID: groupID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	return assignments, nil
}
