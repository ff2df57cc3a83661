package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// ListAvailabilityMarks returns dated marks between from and to plus all recurring marks
func (d *DB) ListAvailabilityMarks(ctx context.Context, groupID, from, to string) ([]model.AvailabilityMark, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT member_id, COALESCE(mark_date::text, ''), day_of_week, start_minute, end_minute, available, updated_at
		FROM availability_mark
		WHERE group_id = $1
		  AND (mark_date IS NULL OR mark_date BETWEEN $2::date AND $3::date)
		ORDER BY member_id, mark_date NULLS FIRST, day_of_week, start_minute
	`, groupID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability marks: %w", err)
	}
	defer rows.Close()

	var marks []model.AvailabilityMark
	for rows.Next() {
		m := model.AvailabilityMark{GroupID: groupID}
		var day, start, end int16
		if err := rows.Scan(&m.MemberID, &m.Date, &day, &start, &end, &m.Available, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan availability mark: %w", err)
		}
		m.DayOfWeek = time.Weekday(day)
		m.Start = model.Clock(start)
		m.End = model.Clock(end)
		marks = append(marks, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating availability marks: %w", err)
	}

	return marks, nil
}

// UpsertAvailabilityMarks stores marks in a batch, replacing any existing mark with the same key
func (d *DB) UpsertAvailabilityMarks(ctx context.Context, marks []model.AvailabilityMark) error {
	if len(marks) == 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range marks {
		var err error
		if m.IsRecurring() {
			_, err = tx.Exec(ctx, `
				INSERT INTO availability_mark (group_id, member_id, mark_date, day_of_week, start_minute, end_minute, available, updated_at)
				VALUES ($1, $2, NULL, $3, $4, $5, $6, NOW())
				ON CONFLICT (group_id, member_id, day_of_week, start_minute, end_minute) WHERE mark_date IS NULL
				DO UPDATE SET available = EXCLUDED.available, updated_at = EXCLUDED.updated_at
			`, m.GroupID, m.MemberID, int16(m.DayOfWeek), int16(m.Start), int16(m.End), m.Available)
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO availability_mark (group_id, member_id, mark_date, available, updated_at)
				VALUES ($1, $2, $3::date, $4, NOW())
				ON CONFLICT (group_id, member_id, mark_date) WHERE mark_date IS NOT NULL
				DO UPDATE SET available = EXCLUDED.available, updated_at = EXCLUDED.updated_at
			`, m.GroupID, m.MemberID, m.Date, m.Available)
		}
		if err != nil {
			return fmt.Errorf("failed to upsert availability mark: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListPreferences returns every stored preference for a group
func (d *DB) ListPreferences(ctx context.Context, groupID string) ([]model.Preference, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT member_id, max_assignments_per_period, min_days_between_assignments, blackout_dates::text[]
		FROM preference
		WHERE group_id = $1
		ORDER BY member_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []model.Preference
	for rows.Next() {
		p := model.Preference{GroupID: groupID}
		if err := rows.Scan(&p.MemberID, &p.MaxAssignmentsPerPeriod, &p.MinDaysBetweenAssignments, &p.BlackoutDates); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}

	return prefs, nil
}

// UpsertPreference inserts or replaces a member's preference
func (d *DB) UpsertPreference(ctx context.Context, pref *model.Preference) error {
	blackout := pref.BlackoutDates
	if blackout == nil {
		blackout = []string{}
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO preference (group_id, member_id, max_assignments_per_period, min_days_between_assignments, blackout_dates)
		VALUES ($1, $2, $3, $4, $5::text[]::date[])
		ON CONFLICT (group_id, member_id) DO UPDATE SET
			max_assignments_per_period = EXCLUDED.max_assignments_per_period,
			min_days_between_assignments = EXCLUDED.min_days_between_assignments,
			blackout_dates = EXCLUDED.blackout_dates
	`, pref.GroupID, pref.MemberID, pref.MaxAssignmentsPerPeriod, pref.MinDaysBetweenAssignments, blackout)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}
