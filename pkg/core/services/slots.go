package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// SlotStore defines the database operations needed to manage slots
type SlotStore interface {
	MembershipReader
	ListSlots(ctx context.Context, groupID string) ([]model.Slot, error)
	GetSlot(ctx context.Context, id string) (*model.Slot, error)
	InsertSlot(ctx context.Context, slot *model.Slot) error
	DeleteSlot(ctx context.Context, id string) error
}

// DefineSlot validates and saves a new recurring slot for a group
func DefineSlot(ctx context.Context, store SlotStore, logger *zap.Logger, callerID string, slot model.Slot) (*model.Slot, error) {
	if slot.GroupID == "" {
		return nil, fmt.Errorf("%w: group is required", ErrInvalidSlotDefinition)
	}
	if err := slot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlotDefinition, err)
	}
	if err := requireLeader(ctx, store, slot.GroupID, callerID); err != nil {
		return nil, err
	}

	slot.ID = uuid.New().String()
	logger.Debug("Defining slot",
		zap.String("id", slot.ID),
		zap.String("label", slot.Label),
		zap.String("day", slot.DayOfWeek.String()),
		zap.String("time", slot.TimeRange().String()),
		zap.Int("capacity", slot.Capacity))

	if err := store.InsertSlot(ctx, &slot); err != nil {
		return nil, fmt.Errorf("failed to insert slot: %w", err)
	}

	logger.Info("Slot defined", zap.String("id", slot.ID), zap.String("label", slot.Label))
	return &slot, nil
}

// ListSlots returns a group's slots ordered by day and start time
func ListSlots(ctx context.Context, store SlotStore, groupID string) ([]model.Slot, error) {
	slots, err := store.ListSlots(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch slots: %w", err)
	}
	return slots, nil
}

// DeleteSlot removes a slot. Assignments already made from it are kept.
func DeleteSlot(ctx context.Context, store SlotStore, logger *zap.Logger, callerID, slotID string) error {
	slot, err := store.GetSlot(ctx, slotID)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch slot: %w", err)
	}
	if err := requireLeader(ctx, store, slot.GroupID, callerID); err != nil {
		return err
	}
	if err := store.DeleteSlot(ctx, slotID); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	logger.Info("Slot deleted", zap.String("id", slotID), zap.String("label", slot.Label))
	return nil
}
