package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

const assignmentColumns = `id, group_id, member_id, COALESCE(slot_id, ''), shift_date::text, start_minute, end_minute, status, created_at`

func scanAssignment(row scanner) (*model.Assignment, error) {
	var a model.Assignment
	var start, end int16
	if err := row.Scan(&a.ID, &a.GroupID, &a.MemberID, &a.SlotID, &a.Date, &start, &end, &a.Status, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan assignment: %w", mapError(err))
	}
	a.Start = model.Clock(start)
	a.End = model.Clock(end)
	return &a, nil
}

// listAssignments builds the filtered query; forUpdate locks the matching rows
func listAssignments(ctx context.Context, q querier, filter db.AssignmentFilter, forUpdate bool) ([]model.Assignment, error) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.GroupID != "" {
		add("group_id = $%d", filter.GroupID)
	}
	if len(filter.MemberIDs) > 0 {
		add("member_id = ANY($%d)", filter.MemberIDs)
	}
	if filter.From != "" {
		add("shift_date >= $%d::date", filter.From)
	}
	if filter.To != "" {
		add("shift_date <= $%d::date", filter.To)
	}

	query := "SELECT " + assignmentColumns + " FROM assignment"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY shift_date, start_minute, member_id, id"
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}

// GetAssignment retrieves an assignment by ID
func (d *DB) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignment WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment %s: %w", id, err)
	}
	return a, nil
}

// ListAssignments returns assignments matching the filter ordered by date and start time
func (d *DB) ListAssignments(ctx context.Context, filter db.AssignmentFilter) ([]model.Assignment, error) {
	return listAssignments(ctx, d.pool, filter, false)
}

func (t *tx) GetAssignmentForUpdate(ctx context.Context, id string) (*model.Assignment, error) {
	row := t.q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignment WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock assignment %s: %w", id, err)
	}
	return a, nil
}

func (t *tx) ListAssignments(ctx context.Context, filter db.AssignmentFilter) ([]model.Assignment, error) {
	return listAssignments(ctx, t.q, filter, true)
}

func (t *tx) InsertAssignments(ctx context.Context, assignments []model.Assignment) error {
	for _, a := range assignments {
		var slotID *string
		if a.SlotID != "" {
			slotID = &a.SlotID
		}

		_, err := t.q.Exec(ctx, `
			INSERT INTO assignment (id, group_id, member_id, slot_id, shift_date, start_minute, end_minute, status, created_at)
			VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)
		`, a.ID, a.GroupID, a.MemberID, slotID, a.Date, int16(a.Start), int16(a.End), string(a.Status), a.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert assignment: %w", mapError(err))
		}
	}
	return nil
}

func (t *tx) UpdateAssignmentMember(ctx context.Context, id, memberID string) error {
	tag, err := t.q.Exec(ctx, `UPDATE assignment SET member_id = $2 WHERE id = $1`, id, memberID)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assignment %s: %w", id, db.ErrNotFound)
	}
	return nil
}

func (t *tx) DeleteAssignments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM assignment WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	return nil
}
