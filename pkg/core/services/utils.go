package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
	"github.com/jakechorley/volunteer-rota/pkg/notify"
)

var validate = validator.New()

// validateRequest checks struct tags on a request and wraps failures in ErrInvalidRequest
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// MembershipReader looks up a member's role in a group
type MembershipReader interface {
	GetMembership(ctx context.Context, groupID, memberID string) (*model.Membership, error)
}

// requireMember returns the caller's membership, or ErrForbidden if they are not in the group
func requireMember(ctx context.Context, store MembershipReader, groupID, callerID string) (*model.Membership, error) {
	membership, err := store.GetMembership(ctx, groupID, callerID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is not a member of group %s", ErrForbidden, callerID, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch membership: %w", err)
	}
	return membership, nil
}

// requireLeader returns ErrForbidden unless the caller leads the group
func requireLeader(ctx context.Context, store MembershipReader, groupID, callerID string) error {
	membership, err := requireMember(ctx, store, groupID, callerID)
	if err != nil {
		return err
	}
	if membership.Role != model.RoleLeader {
		return fmt.Errorf("%w: %s is not a leader of group %s", ErrForbidden, callerID, groupID)
	}
	return nil
}

// notifyAll delivers events one by one. Failures are logged and dropped:
// the state change they describe is already committed.
func notifyAll(ctx context.Context, gateway notify.Gateway, logger *zap.Logger, events ...notify.Event) {
	for _, event := range events {
		if err := gateway.Notify(ctx, event); err != nil {
			logger.Warn("Failed to deliver notification",
				zap.String("type", string(event.Type)),
				zap.String("recipient", event.RecipientMemberID),
				zap.Error(err))
		}
	}
}

// assignmentEvent builds an event describing an assignment
func assignmentEvent(eventType notify.EventType, a model.Assignment, now time.Time) notify.Event {
	return notify.Event{
		Type:              eventType,
		RecipientMemberID: a.MemberID,
		Payload: map[string]string{
			notify.KeyAssignmentID: a.ID,
			notify.KeyGroupID:      a.GroupID,
			notify.KeyDate:         a.Date,
			notify.KeyTime:         a.TimeRange().String(),
		},
		OccurredAt: now,
	}
}

// isFuture reports whether the assignment starts after now
func isFuture(a model.Assignment, now time.Time, loc *time.Location) (bool, error) {
	startsAt, err := a.StartsAt(loc)
	if err != nil {
		return false, err
	}
	return startsAt.After(now), nil
}

// validateDateRange checks both dates parse and from is not after to
func validateDateRange(from, to string) error {
	start, err := model.ParseDate(from)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidDateRange, to, from)
	}
	return nil
}

// dateSpan returns the earliest and latest dates of the assignments
func dateSpan(assignments []model.Assignment) (string, string) {
	if len(assignments) == 0 {
		return "", ""
	}
	from, to := assignments[0].Date, assignments[0].Date
	for _, a := range assignments[1:] {
		if a.Date < from {
			from = a.Date
		}
		if a.Date > to {
			to = a.Date
		}
	}
	return from, to
}

// getMemberIDs returns the sorted distinct member IDs of the assignments
func getMemberIDs(assignments []model.Assignment) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range assignments {
		if !seen[a.MemberID] {
			seen[a.MemberID] = true
			ids = append(ids, a.MemberID)
		}
	}
	sort.Strings(ids)
	return ids
}

// getAssignmentIDs returns the IDs of the assignments in order
func getAssignmentIDs(assignments []model.Assignment) []string {
	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.ID
	}
	return ids
}
