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

// SwapStore defines the database operations needed to coordinate swaps
type SwapStore interface {
	GetSwapRequest(ctx context.Context, id string) (*model.SwapRequest, error)
	ListSwapRequests(ctx context.Context, memberID string) ([]model.SwapRequest, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error
}

type SwapDecision string

const (
	SwapAccept SwapDecision = "accept"
	SwapReject SwapDecision = "reject"
)

// CreateSwapRequest asks to exchange one of the caller's assignments for another member's
type CreateSwapRequest struct {
	CallerID              string `validate:"required"`
	RequesterAssignmentID string `validate:"required"`
	TargetAssignmentID    string `validate:"required,nefield=RequesterAssignmentID"`
	Reason                string `validate:"max=500"`
}

// SwapCoordinator runs the swap request lifecycle: a request is created
// pending and moves once to accepted or rejected, or is cancelled and removed.
// Every change happens in one store transaction; notifications follow commit.
type SwapCoordinator struct {
	store   SwapStore
	gateway notify.Gateway
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewSwapCoordinator creates a coordinator. Assignment dates are read in loc
// and now supplies the current time.
func NewSwapCoordinator(store SwapStore, gateway notify.Gateway, logger *zap.Logger, loc *time.Location, now func() time.Time) *SwapCoordinator {
	if now == nil {
		now = time.Now
	}
	return &SwapCoordinator{store: store, gateway: gateway, logger: logger, loc: loc, now: now}
}

// Create validates both assignments and saves a pending swap request
func (c *SwapCoordinator) Create(ctx context.Context, req CreateSwapRequest) (*model.SwapRequest, error) {
	if err := validateRequest(req); err != nil {
		if req.TargetAssignmentID != "" && req.TargetAssignmentID == req.RequesterAssignmentID {
			return nil, fmt.Errorf("%w: cannot swap an assignment with itself", ErrInvalidSwap)
		}
		return nil, err
	}

	c.logger.Debug("Creating swap request",
		zap.String("caller", req.CallerID),
		zap.String("requester_assignment", req.RequesterAssignmentID),
		zap.String("target_assignment", req.TargetAssignmentID))

	now := c.now()
	var swap *model.SwapRequest
	var target model.Assignment

	err := c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		requesterAssignment, targetAssignment, err := lockAssignmentPair(ctx, tx, req.RequesterAssignmentID, req.TargetAssignmentID, ErrAssignmentNotFound)
		if err != nil {
			return err
		}

		if requesterAssignment.MemberID != req.CallerID {
			return fmt.Errorf("%w: assignment %s is not held by %s", ErrForbidden, requesterAssignment.ID, req.CallerID)
		}
		if targetAssignment.MemberID == req.CallerID {
			return fmt.Errorf("%w: both assignments are held by %s", ErrInvalidSwap, req.CallerID)
		}
		if requesterAssignment.GroupID != targetAssignment.GroupID {
			return fmt.Errorf("%w: %s and %s", ErrCrossGroupMismatch, requesterAssignment.GroupID, targetAssignment.GroupID)
		}
		for _, a := range []*model.Assignment{requesterAssignment, targetAssignment} {
			future, err := isFuture(*a, now, c.loc)
			if err != nil {
				return err
			}
			if !future {
				return fmt.Errorf("%w: assignment %s on %s", ErrAssignmentInPast, a.ID, a.Date)
			}
		}

		pending, err := tx.ListPendingSwapRequests(ctx, []string{requesterAssignment.ID, targetAssignment.ID})
		if err != nil {
			return fmt.Errorf("failed to fetch pending swap requests: %w", err)
		}
		if len(pending) > 0 {
			return fmt.Errorf("%w: swap request %s", ErrAlreadyPendingSwap, pending[0].ID)
		}

		swap = &model.SwapRequest{
			ID:                    uuid.New().String(),
			GroupID:               requesterAssignment.GroupID,
			RequesterAssignmentID: requesterAssignment.ID,
			TargetAssignmentID:    targetAssignment.ID,
			RequesterMemberID:     requesterAssignment.MemberID,
			TargetMemberID:        targetAssignment.MemberID,
			Status:                model.SwapPending,
			Reason:                req.Reason,
			CreatedAt:             now,
		}
		if err := tx.InsertSwapRequest(ctx, swap); err != nil {
			return fmt.Errorf("failed to insert swap request: %w", err)
		}
		target = *targetAssignment
		return nil
	})
	if errors.Is(err, db.ErrConflict) {
		// A concurrent request claimed one of the assignments first, or the
		// store aborted us in favour of it
		return nil, fmt.Errorf("%w: %v", ErrAlreadyPendingSwap, err)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("Swap request created",
		zap.String("swap_id", swap.ID),
		zap.String("requester", swap.RequesterMemberID),
		zap.String("target", swap.TargetMemberID))

	c.notify(ctx, notify.EventSwapRequested, swap.TargetMemberID, swap.RequesterMemberID, swap, target, now)
	return swap, nil
}

// Respond accepts or rejects a pending request on behalf of its target member.
// Accepting exchanges the members of both assignments in the same transaction
// that resolves the request; if either assignment has gone or started the
// request stays pending and ErrAssignmentNoLongerValid is returned.
func (c *SwapCoordinator) Respond(ctx context.Context, callerID, swapID string, decision SwapDecision) (*model.SwapRequest, error) {
	if decision != SwapAccept && decision != SwapReject {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidRequest, decision)
	}

	c.logger.Debug("Responding to swap request",
		zap.String("caller", callerID),
		zap.String("swap_id", swapID),
		zap.String("decision", string(decision)))

	now := c.now()
	var swap *model.SwapRequest
	var subject model.Assignment

	err := c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		swap, err = c.lockPendingSwap(ctx, tx, swapID, func(s *model.SwapRequest) error {
			if s.TargetMemberID != callerID {
				return fmt.Errorf("%w: %s", ErrNotTargetMember, callerID)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if decision == SwapReject {
			swap.Status = model.SwapRejected
			if target, err := tx.GetAssignmentForUpdate(ctx, swap.TargetAssignmentID); err == nil {
				subject = *target
			}
		} else {
			if subject, err = c.exchange(ctx, tx, swap, now); err != nil {
				return err
			}
			swap.Status = model.SwapAccepted
		}

		if err := tx.ResolveSwapRequest(ctx, swap.ID, swap.Status, now); err != nil {
			return fmt.Errorf("failed to resolve swap request: %w", err)
		}
		swap.ResolvedAt = &now
		return nil
	})
	if errors.Is(err, db.ErrConflict) {
		// The exchange would give one member two overlapping assignments, or
		// a concurrent change to the same rows won
		return nil, fmt.Errorf("%w: %v", ErrAssignmentNoLongerValid, err)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("Swap request resolved",
		zap.String("swap_id", swap.ID),
		zap.String("status", string(swap.Status)))

	eventType := notify.EventSwapRejected
	if swap.Status == model.SwapAccepted {
		eventType = notify.EventSwapAccepted
	}
	c.notify(ctx, eventType, swap.RequesterMemberID, swap.TargetMemberID, swap, subject, now)
	return swap, nil
}

// Cancel withdraws a pending request on behalf of its requester. The request
// is deleted; assignments are untouched.
func (c *SwapCoordinator) Cancel(ctx context.Context, callerID, swapID string) error {
	c.logger.Debug("Cancelling swap request", zap.String("caller", callerID), zap.String("swap_id", swapID))

	now := c.now()
	var swap *model.SwapRequest

	err := c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		swap, err = c.lockPendingSwap(ctx, tx, swapID, func(s *model.SwapRequest) error {
			if s.RequesterMemberID != callerID {
				return fmt.Errorf("%w: %s", ErrNotRequester, callerID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := tx.DeleteSwapRequests(ctx, []string{swap.ID}); err != nil {
			return fmt.Errorf("failed to delete swap request: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("Swap request cancelled", zap.String("swap_id", swap.ID))

	swap.Status = model.SwapCancelled
	c.notify(ctx, notify.EventSwapCancelled, swap.TargetMemberID, swap.RequesterMemberID, swap, model.Assignment{ID: swap.TargetAssignmentID}, now)
	return nil
}

// List returns the swap requests a member made or received, oldest first
func (c *SwapCoordinator) List(ctx context.Context, memberID string) ([]model.SwapRequest, error) {
	swaps, err := c.store.ListSwapRequests(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch swap requests: %w", err)
	}
	return swaps, nil
}

// lockPendingSwap loads and locks a swap request, checks the caller with
// authorize, then checks it is still pending
func (c *SwapCoordinator) lockPendingSwap(ctx context.Context, tx db.Tx, swapID string, authorize func(*model.SwapRequest) error) (*model.SwapRequest, error) {
	swap, err := tx.GetSwapRequestForUpdate(ctx, swapID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSwapNotFound, swapID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch swap request: %w", err)
	}
	if err := authorize(swap); err != nil {
		return nil, err
	}
	if swap.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, swap.ID, swap.Status)
	}
	return swap, nil
}

// exchange swaps the members of both assignments after re-checking they
// still exist, are still held by the original members, and have not started.
// It returns the target assignment as it now stands, held by the requester.
func (c *SwapCoordinator) exchange(ctx context.Context, tx db.Tx, swap *model.SwapRequest, now time.Time) (model.Assignment, error) {
	requesterAssignment, targetAssignment, err := lockAssignmentPair(ctx, tx, swap.RequesterAssignmentID, swap.TargetAssignmentID, ErrAssignmentNoLongerValid)
	if err != nil {
		return model.Assignment{}, err
	}

	if requesterAssignment.MemberID != swap.RequesterMemberID || targetAssignment.MemberID != swap.TargetMemberID {
		return model.Assignment{}, fmt.Errorf("%w: assignments have changed hands since the request", ErrAssignmentNoLongerValid)
	}
	for _, a := range []*model.Assignment{requesterAssignment, targetAssignment} {
		future, err := isFuture(*a, now, c.loc)
		if err != nil {
			return model.Assignment{}, err
		}
		if !future {
			return model.Assignment{}, fmt.Errorf("%w: assignment %s on %s has started", ErrAssignmentNoLongerValid, a.ID, a.Date)
		}
	}

	if err := tx.UpdateAssignmentMember(ctx, requesterAssignment.ID, swap.TargetMemberID); err != nil {
		return model.Assignment{}, fmt.Errorf("failed to reassign %s: %w", requesterAssignment.ID, err)
	}
	if err := tx.UpdateAssignmentMember(ctx, targetAssignment.ID, swap.RequesterMemberID); err != nil {
		return model.Assignment{}, fmt.Errorf("failed to reassign %s: %w", targetAssignment.ID, err)
	}

	targetAssignment.MemberID = swap.RequesterMemberID
	return *targetAssignment, nil
}

// notify sends a swap event. The assignment describes the date and time the
// recipient should care about.
func (c *SwapCoordinator) notify(ctx context.Context, eventType notify.EventType, recipient, counterparty string, swap *model.SwapRequest, a model.Assignment, now time.Time) {
	payload := map[string]string{
		notify.KeySwapID:         swap.ID,
		notify.KeyGroupID:        swap.GroupID,
		notify.KeyCounterpartyID: counterparty,
		notify.KeyOutcome:        string(swap.Status),
	}
	if a.ID != "" {
		payload[notify.KeyAssignmentID] = a.ID
	}
	if a.Date != "" {
		payload[notify.KeyDate] = a.Date
		payload[notify.KeyTime] = a.TimeRange().String()
	}
	if swap.Reason != "" {
		payload[notify.KeyReason] = swap.Reason
	}

	notifyAll(ctx, c.gateway, c.logger, notify.Event{
		Type:              eventType,
		RecipientMemberID: recipient,
		Payload:           payload,
		OccurredAt:        now,
	})
}

// lockAssignment loads and locks an assignment, mapping not-found to notFoundErr
func lockAssignment(ctx context.Context, tx db.Tx, id string, notFoundErr error) (*model.Assignment, error) {
	a, err := tx.GetAssignmentForUpdate(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", notFoundErr, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignment %s: %w", id, err)
	}
	return a, nil
}

// lockAssignmentPair locks two assignments in ID order, whatever order they
// are asked for in, so transactions locking the same pair cannot deadlock.
// It returns them in the order asked.
func lockAssignmentPair(ctx context.Context, tx db.Tx, firstID, secondID string, notFoundErr error) (*model.Assignment, *model.Assignment, error) {
	lowID, highID := firstID, secondID
	if highID < lowID {
		lowID, highID = highID, lowID
	}

	low, err := lockAssignment(ctx, tx, lowID, notFoundErr)
	if err != nil {
		return nil, nil, err
	}
	high, err := lockAssignment(ctx, tx, highID, notFoundErr)
	if err != nil {
		return nil, nil, err
	}

	if lowID == firstID {
		return low, high, nil
	}
	return high, low, nil
}
