package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// AvailabilityStore defines the database operations needed to record availability and preferences
type AvailabilityStore interface {
	MembershipReader
	ListAvailabilityMarks(ctx context.Context, groupID, from, to string) ([]model.AvailabilityMark, error)
	UpsertAvailabilityMarks(ctx context.Context, marks []model.AvailabilityMark) error
	ListPreferences(ctx context.Context, groupID string) ([]model.Preference, error)
	UpsertPreference(ctx context.Context, pref *model.Preference) error
}

// SetPreferenceRequest sets a member's scheduling limits. Zero values fall
// back to the configured defaults.
type SetPreferenceRequest struct {
	CallerID                  string   `validate:"required"`
	GroupID                   string   `validate:"required"`
	MemberID                  string   `validate:"required"`
	MaxAssignmentsPerPeriod   int      `validate:"min=0"`
	MinDaysBetweenAssignments int      `validate:"min=0"`
	BlackoutDates             []string `validate:"dive,datetime=2006-01-02"`
}

// authorizeFor lets members act for themselves and leaders act for anyone in the group
func authorizeFor(ctx context.Context, store MembershipReader, groupID, callerID, memberID string) error {
	if callerID == memberID {
		_, err := requireMember(ctx, store, groupID, callerID)
		return err
	}
	if err := requireLeader(ctx, store, groupID, callerID); err != nil {
		return err
	}
	if _, err := store.GetMembership(ctx, groupID, memberID); err != nil {
		return fmt.Errorf("%w: %s in group %s", ErrMemberNotFound, memberID, groupID)
	}
	return nil
}

// SetAvailability records availability marks for one member. A mark for a
// date or weekday time range already recorded is replaced.
func SetAvailability(
	ctx context.Context,
	store AvailabilityStore,
	logger *zap.Logger,
	callerID, groupID, memberID string,
	marks []model.AvailabilityMark,
	now time.Time,
) error {
	if len(marks) == 0 {
		return fmt.Errorf("%w: no availability marks given", ErrInvalidRequest)
	}
	if err := authorizeFor(ctx, store, groupID, callerID, memberID); err != nil {
		return err
	}

	normalized := make([]model.AvailabilityMark, len(marks))
	for i, mark := range marks {
		mark.GroupID = groupID
		mark.MemberID = memberID
		mark.UpdatedAt = now
		if mark.IsRecurring() {
			if mark.DayOfWeek < time.Sunday || mark.DayOfWeek > time.Saturday {
				return fmt.Errorf("%w: day of week %d out of range", ErrInvalidRequest, mark.DayOfWeek)
			}
			if !mark.TimeRange().IsValid() {
				return fmt.Errorf("%w: time range %s is invalid", ErrInvalidRequest, mark.TimeRange())
			}
		} else {
			if _, err := model.ParseDate(mark.Date); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			}
			mark.DayOfWeek, mark.Start, mark.End = 0, 0, 0
		}
		normalized[i] = mark
	}

	if err := store.UpsertAvailabilityMarks(ctx, normalized); err != nil {
		return fmt.Errorf("failed to save availability marks: %w", err)
	}

	logger.Info("Availability recorded",
		zap.String("group_id", groupID),
		zap.String("member_id", memberID),
		zap.Int("marks", len(normalized)))
	return nil
}

// SetPreference saves a member's limits and blackout dates
func SetPreference(ctx context.Context, store AvailabilityStore, logger *zap.Logger, req SetPreferenceRequest) (*model.Preference, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := authorizeFor(ctx, store, req.GroupID, req.CallerID, req.MemberID); err != nil {
		return nil, err
	}

	pref := &model.Preference{
		GroupID:                   req.GroupID,
		MemberID:                  req.MemberID,
		MaxAssignmentsPerPeriod:   req.MaxAssignmentsPerPeriod,
		MinDaysBetweenAssignments: req.MinDaysBetweenAssignments,
		BlackoutDates:             req.BlackoutDates,
	}
	if pref.BlackoutDates == nil {
		pref.BlackoutDates = []string{}
	}

	if err := store.UpsertPreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("failed to save preference: %w", err)
	}

	logger.Info("Preference saved",
		zap.String("group_id", pref.GroupID),
		zap.String("member_id", pref.MemberID),
		zap.Int("max_per_period", pref.MaxAssignmentsPerPeriod),
		zap.Int("min_days_between", pref.MinDaysBetweenAssignments),
		zap.Int("blackout_dates", len(pref.BlackoutDates)))
	return pref, nil
}
