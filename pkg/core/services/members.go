package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
	"github.com/jakechorley/volunteer-rota/pkg/notify"
)

// MemberStore defines the database operations needed to manage group membership
type MemberStore interface {
	MembershipReader
	GetMember(ctx context.Context, id string) (*model.Member, error)
	UpsertMember(ctx context.Context, member *model.Member) error
	UpsertMembership(ctx context.Context, membership *model.Membership) error
	ListGroupMembers(ctx context.Context, groupID string) ([]model.GroupMember, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error
}

// AddMemberRequest adds a person to a group
type AddMemberRequest struct {
	CallerID    string     `validate:"required"`
	GroupID     string     `validate:"required"`
	MemberID    string     // generated when empty
	DisplayName string     `validate:"required"`
	Email       string     `validate:"omitempty,email"`
	Role        model.Role `validate:"required,oneof=leader member"`
}

// AddMember creates a member, or adds an existing one, with a role in a
// group. Only leaders may add members, except that the first member of a new
// group may add themselves as its leader. An existing member's name and email
// are only changed when they add themselves.
func AddMember(ctx context.Context, store MemberStore, logger *zap.Logger, req AddMemberRequest) (*model.GroupMember, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	existing, err := store.ListGroupMembers(ctx, req.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group members: %w", err)
	}
	if len(existing) == 0 {
		if req.Role != model.RoleLeader || (req.MemberID != "" && req.MemberID != req.CallerID) {
			return nil, fmt.Errorf("%w: the first member of a group must add themselves as leader", ErrForbidden)
		}
		req.MemberID = req.CallerID
		logger.Info("Creating new group", zap.String("group_id", req.GroupID), zap.String("leader", req.CallerID))
	} else if err := requireLeader(ctx, store, req.GroupID, req.CallerID); err != nil {
		return nil, err
	}

	member := model.Member{ID: req.MemberID, DisplayName: req.DisplayName, Email: req.Email}
	saveProfile := true
	if req.MemberID == "" {
		member.ID = uuid.New().String()
	} else if req.MemberID != req.CallerID {
		stored, err := store.GetMember(ctx, req.MemberID)
		switch {
		case err == nil:
			logger.Debug("Adding existing member, profile unchanged", zap.String("member_id", stored.ID))
			member = *stored
			saveProfile = false
		case !isNotFound(err):
			return nil, fmt.Errorf("failed to fetch member: %w", err)
		}
	}
	if saveProfile {
		if err := store.UpsertMember(ctx, &member); err != nil {
			return nil, fmt.Errorf("failed to save member: %w", err)
		}
	}
	if err := store.UpsertMembership(ctx, &model.Membership{GroupID: req.GroupID, MemberID: member.ID, Role: req.Role}); err != nil {
		return nil, fmt.Errorf("failed to save membership: %w", err)
	}

	logger.Info("Member added",
		zap.String("group_id", req.GroupID),
		zap.String("member_id", member.ID),
		zap.String("role", string(req.Role)))
	return &model.GroupMember{Member: member, Role: req.Role}, nil
}

// RemoveMember takes a member out of a group. Their assignments in the group
// are deleted, as are pending swap requests mentioning those assignments.
// Members may remove themselves; anyone else needs a leader.
func RemoveMember(
	ctx context.Context,
	store MemberStore,
	gateway notify.Gateway,
	logger *zap.Logger,
	callerID, groupID, memberID string,
	now time.Time,
) error {
	if callerID != memberID {
		if err := requireLeader(ctx, store, groupID, callerID); err != nil {
			return err
		}
	}
	if _, err := store.GetMembership(ctx, groupID, memberID); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s in group %s", ErrMemberNotFound, memberID, groupID)
		}
		return fmt.Errorf("failed to fetch membership: %w", err)
	}

	var removed []model.Assignment
	var withdrawn []model.SwapRequest

	err := store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		removed, err = tx.ListAssignments(ctx, db.AssignmentFilter{GroupID: groupID, MemberIDs: []string{memberID}})
		if err != nil {
			return fmt.Errorf("failed to fetch member assignments: %w", err)
		}

		ids := getAssignmentIDs(removed)
		if len(ids) > 0 {
			withdrawn, err = tx.ListPendingSwapRequests(ctx, ids)
			if err != nil {
				return fmt.Errorf("failed to fetch pending swap requests: %w", err)
			}
			if len(withdrawn) > 0 {
				swapIDs := make([]string, len(withdrawn))
				for i, s := range withdrawn {
					swapIDs[i] = s.ID
				}
				if err := tx.DeleteSwapRequests(ctx, swapIDs); err != nil {
					return fmt.Errorf("failed to delete swap requests: %w", err)
				}
			}
			if err := tx.DeleteAssignments(ctx, ids); err != nil {
				return fmt.Errorf("failed to delete assignments: %w", err)
			}
		}

		if err := tx.DeleteMembership(ctx, groupID, memberID); err != nil {
			return fmt.Errorf("failed to delete membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Member removed",
		zap.String("group_id", groupID),
		zap.String("member_id", memberID),
		zap.Int("assignments_deleted", len(removed)),
		zap.Int("swap_requests_deleted", len(withdrawn)))

	var events []notify.Event
	today := now.Format(model.DateLayout)
	for _, a := range removed {
		if a.Date >= today {
			events = append(events, assignmentEvent(notify.EventAssignmentDeleted, a, now))
		}
	}
	for _, s := range withdrawn {
		recipient, counterparty := s.TargetMemberID, s.RequesterMemberID
		if recipient == memberID {
			recipient, counterparty = s.RequesterMemberID, s.TargetMemberID
		}
		events = append(events, notify.Event{
			Type:              notify.EventSwapCancelled,
			RecipientMemberID: recipient,
			Payload: map[string]string{
				notify.KeySwapID:         s.ID,
				notify.KeyGroupID:        s.GroupID,
				notify.KeyCounterpartyID: counterparty,
				notify.KeyOutcome:        string(model.SwapCancelled),
			},
			OccurredAt: now,
		})
	}
	notifyAll(ctx, gateway, logger, events...)
	return nil
}

// ListMembers returns the group's members sorted by display name.
// Any member of the group may list it.
func ListMembers(ctx context.Context, store MemberStore, callerID, groupID string) ([]model.GroupMember, error) {
	if _, err := requireMember(ctx, store, groupID, callerID); err != nil {
		return nil, err
	}
	members, err := store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group members: %w", err)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].DisplayName != members[j].DisplayName {
			return members[i].DisplayName < members[j].DisplayName
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

// isNotFound reports whether err is a storage not-found error
func isNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
