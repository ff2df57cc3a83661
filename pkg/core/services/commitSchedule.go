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

// CommitScheduleStore defines the database operations needed to commit a schedule
type CommitScheduleStore interface {
	MembershipReader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error
}

// CommitSchedule saves the proposals of a generated schedule in one
// transaction. Existing assignments are re-read first; if any member now
// holds an overlapping assignment, or any instance would exceed capacity,
// nothing is written and a *BatchConflictError lists the affected instances.
func CommitSchedule(
	ctx context.Context,
	store CommitScheduleStore,
	gateway notify.Gateway,
	logger *zap.Logger,
	callerID string,
	schedule *ScheduleResult,
	now time.Time,
) ([]model.Assignment, error) {
	if err := requireLeader(ctx, store, schedule.GroupID, callerID); err != nil {
		return nil, err
	}
	if len(schedule.Proposals) == 0 {
		logger.Info("Nothing to commit", zap.String("group_id", schedule.GroupID))
		return []model.Assignment{}, nil
	}

	logger.Debug("Committing schedule",
		zap.String("group_id", schedule.GroupID),
		zap.Int("proposals", len(schedule.Proposals)))

	assignments := make([]model.Assignment, len(schedule.Proposals))
	for i, p := range schedule.Proposals {
		p.ID = uuid.New().String()
		p.Status = model.AssignmentConfirmed
		p.CreatedAt = now
		assignments[i] = p
	}

	err := store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		// Commits for the same group run one at a time so the capacity
		// check below sees every earlier commit
		if err := tx.LockGroup(ctx, schedule.GroupID); err != nil {
			return fmt.Errorf("failed to lock group: %w", err)
		}

		from, to := dateSpan(assignments)
		existing, err := tx.ListAssignments(ctx, db.AssignmentFilter{From: from, To: to})
		if err != nil {
			return fmt.Errorf("failed to fetch existing assignments: %w", err)
		}

		if conflicts := findCommitConflicts(schedule, existing); len(conflicts) > 0 {
			return &BatchConflictError{Conflicts: conflicts}
		}

		if err := tx.InsertAssignments(ctx, assignments); err != nil {
			return fmt.Errorf("failed to insert assignments: %w", err)
		}
		return nil
	})

	var batchErr *BatchConflictError
	switch {
	case errors.As(err, &batchErr):
		logger.Info("Schedule commit aborted", zap.Int("conflicts", len(batchErr.Conflicts)))
		return nil, batchErr
	case errors.Is(err, db.ErrConflict):
		// Another writer committed between our check and our commit
		logger.Info("Schedule commit aborted at commit time", zap.Error(err))
		return nil, &BatchConflictError{Conflicts: []InstanceConflict{{
			Description: err.Error(),
		}}}
	case err != nil:
		return nil, fmt.Errorf("failed to commit schedule: %w", err)
	}

	logger.Info("Schedule committed",
		zap.String("group_id", schedule.GroupID),
		zap.Int("assignments", len(assignments)))

	events := make([]notify.Event, len(assignments))
	for i, a := range assignments {
		events[i] = assignmentEvent(notify.EventAssignmentCreated, a, now)
	}
	notifyAll(ctx, gateway, logger, events...)

	return assignments, nil
}

// findCommitConflicts compares a schedule against assignments that exist now
func findCommitConflicts(schedule *ScheduleResult, existing []model.Assignment) []InstanceConflict {
	var conflicts []InstanceConflict

	byMember := make(map[string][]model.Assignment)
	perInstance := make(map[string]int)
	for _, a := range existing {
		byMember[a.MemberID] = append(byMember[a.MemberID], a)
		if a.GroupID == schedule.GroupID && a.SlotID != "" {
			perInstance[a.SlotID+"@"+a.Date]++
		}
	}

	for _, f := range schedule.Fills {
		if f.Filled() == 0 {
			continue
		}
		instance := f.Instance
		held := perInstance[instance.Key()]
		capacity := instance.Capacity + instance.Held
		if held+f.Filled() > capacity {
			conflicts = append(conflicts, InstanceConflict{
				SlotID:      instance.Slot.ID,
				SlotLabel:   instance.Slot.Label,
				Date:        instance.Date,
				Description: fmt.Sprintf("%d of %d places now taken, cannot add %d", held, capacity, f.Filled()),
			})
		}

		for _, memberID := range f.MemberIDs {
			for _, a := range byMember[memberID] {
				if a.Date == instance.Date && a.TimeRange().Overlaps(instance.TimeRange()) {
					conflicts = append(conflicts, InstanceConflict{
						SlotID:      instance.Slot.ID,
						SlotLabel:   instance.Slot.Label,
						Date:        instance.Date,
						MemberID:    memberID,
						Description: fmt.Sprintf("member %s already holds assignment %s", memberID, a.ID),
					})
					break
				}
			}
		}
	}

	return conflicts
}
