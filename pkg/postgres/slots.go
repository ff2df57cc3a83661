package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// ListSlots returns a group's slots ordered by weekday then start time
func (d *DB) ListSlots(ctx context.Context, groupID string) ([]model.Slot, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, group_id, label, day_of_week, start_minute, end_minute, capacity
		FROM slot
		WHERE group_id = $1
		ORDER BY day_of_week, start_minute, id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}

	return slots, nil
}

// GetSlot retrieves a slot by ID
func (d *DB) GetSlot(ctx context.Context, id string) (*model.Slot, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, group_id, label, day_of_week, start_minute, end_minute, capacity
		FROM slot
		WHERE id = $1
	`, id)
	s, err := scanSlot(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", id, err)
	}
	return s, nil
}

// InsertSlot inserts a new slot
func (d *DB) InsertSlot(ctx context.Context, slot *model.Slot) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO slot (id, group_id, label, day_of_week, start_minute, end_minute, capacity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, slot.ID, slot.GroupID, slot.Label, int16(slot.DayOfWeek), int16(slot.Start), int16(slot.End), slot.Capacity)
	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", mapError(err))
	}
	return nil
}

// DeleteSlot removes a slot. Existing assignments keep their times.
func (d *DB) DeleteSlot(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM slot WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("slot %s: %w", id, db.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(row scanner) (*model.Slot, error) {
	var s model.Slot
	var day, start, end int16
	if err := row.Scan(&s.ID, &s.GroupID, &s.Label, &day, &start, &end, &s.Capacity); err != nil {
		return nil, fmt.Errorf("failed to scan slot: %w", mapError(err))
	}
	s.DayOfWeek = time.Weekday(day)
	s.Start = model.Clock(start)
	s.End = model.Clock(end)
	return &s, nil
}
