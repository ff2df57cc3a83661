package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

const swapColumns = `id, group_id, requester_assignment_id, target_assignment_id, requester_member_id, target_member_id, status, reason, created_at, resolved_at`

func scanSwapRequest(row scanner) (*model.SwapRequest, error) {
	var s model.SwapRequest
	if err := row.Scan(&s.ID, &s.GroupID, &s.RequesterAssignmentID, &s.TargetAssignmentID,
		&s.RequesterMemberID, &s.TargetMemberID, &s.Status, &s.Reason, &s.CreatedAt, &s.ResolvedAt); err != nil {
		return nil, fmt.Errorf("failed to scan swap request: %w", mapError(err))
	}
	return &s, nil
}

func collectSwapRequests(ctx context.Context, q querier, query string, args ...any) ([]model.SwapRequest, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap requests: %w", err)
	}
	defer rows.Close()

	var swaps []model.SwapRequest
	for rows.Next() {
		s, err := scanSwapRequest(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating swap requests: %w", err)
	}

	return swaps, nil
}

// GetSwapRequest retrieves a swap request by ID
func (d *DB) GetSwapRequest(ctx context.Context, id string) (*model.SwapRequest, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_request WHERE id = $1`, id)
	s, err := scanSwapRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap request %s: %w", id, err)
	}
	return s, nil
}

// ListSwapRequests returns every swap request the member is party to, oldest first
func (d *DB) ListSwapRequests(ctx context.Context, memberID string) ([]model.SwapRequest, error) {
	return collectSwapRequests(ctx, d.pool, `
		SELECT `+swapColumns+`
		FROM swap_request
		WHERE requester_member_id = $1 OR target_member_id = $1
		ORDER BY created_at, id
	`, memberID)
}

func (t *tx) GetSwapRequestForUpdate(ctx context.Context, id string) (*model.SwapRequest, error) {
	row := t.q.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_request WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSwapRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to lock swap request %s: %w", id, err)
	}
	return s, nil
}

func (t *tx) ListPendingSwapRequests(ctx context.Context, assignmentIDs []string) ([]model.SwapRequest, error) {
	return collectSwapRequests(ctx, t.q, `
		SELECT `+swapColumns+`
		FROM swap_request
		WHERE status = 'pending'
		  AND (requester_assignment_id = ANY($1) OR target_assignment_id = ANY($1))
		ORDER BY created_at, id
		FOR UPDATE
	`, assignmentIDs)
}

// InsertSwapRequest stores the request and, while it is pending, claims both
// assignments in swap_request_pending_assignment. A second claim on either
// assignment fails with a conflict.
func (t *tx) InsertSwapRequest(ctx context.Context, swap *model.SwapRequest) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO swap_request (id, group_id, requester_assignment_id, target_assignment_id,
			requester_member_id, target_member_id, status, reason, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, swap.ID, swap.GroupID, swap.RequesterAssignmentID, swap.TargetAssignmentID,
		swap.RequesterMemberID, swap.TargetMemberID, string(swap.Status), swap.Reason, swap.CreatedAt, swap.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert swap request: %w", mapError(err))
	}

	if swap.Status != model.SwapPending {
		return nil
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO swap_request_pending_assignment (assignment_id, swap_request_id)
		VALUES ($1, $3), ($2, $3)
	`, swap.RequesterAssignmentID, swap.TargetAssignmentID, swap.ID)
	if err != nil {
		return fmt.Errorf("failed to claim assignments for swap request: %w", mapError(err))
	}
	return nil
}

func (t *tx) ResolveSwapRequest(ctx context.Context, id string, status model.SwapStatus, resolvedAt time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE swap_request SET status = $2, resolved_at = $3 WHERE id = $1
	`, id, string(status), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve swap request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("swap request %s: %w", id, db.ErrNotFound)
	}

	if status != model.SwapPending {
		if _, err := t.q.Exec(ctx, `DELETE FROM swap_request_pending_assignment WHERE swap_request_id = $1`, id); err != nil {
			return fmt.Errorf("failed to release assignments for swap request: %w", err)
		}
	}
	return nil
}

func (t *tx) DeleteSwapRequests(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM swap_request WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete swap requests: %w", err)
	}
	return nil
}
