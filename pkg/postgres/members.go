package postgres

import (
	"context"
	"fmt"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// GetMember retrieves a member by ID
func (d *DB) GetMember(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	err := d.pool.QueryRow(ctx, `
		SELECT id, display_name, email FROM member WHERE id = $1
	`, id).Scan(&m.ID, &m.DisplayName, &m.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get member %s: %w", id, mapError(err))
	}
	return &m, nil
}

// UpsertMember inserts a member or updates their details
func (d *DB) UpsertMember(ctx context.Context, member *model.Member) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO member (id, display_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, email = EXCLUDED.email
	`, member.ID, member.DisplayName, member.Email)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", mapError(err))
	}
	return nil
}

// GetMembership retrieves a member's role in a group
func (d *DB) GetMembership(ctx context.Context, groupID, memberID string) (*model.Membership, error) {
	m := model.Membership{GroupID: groupID, MemberID: memberID}
	err := d.pool.QueryRow(ctx, `
		SELECT role FROM membership WHERE group_id = $1 AND member_id = $2
	`, groupID, memberID).Scan(&m.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to get membership %s/%s: %w", groupID, memberID, mapError(err))
	}
	return &m, nil
}

// UpsertMembership adds a member to a group or changes their role
func (d *DB) UpsertMembership(ctx context.Context, membership *model.Membership) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO membership (group_id, member_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, member_id) DO UPDATE SET role = EXCLUDED.role
	`, membership.GroupID, membership.MemberID, membership.Role)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("member %s: %w", membership.MemberID, db.ErrNotFound)
		}
		return fmt.Errorf("failed to upsert membership: %w", mapError(err))
	}
	return nil
}

// ListGroupMembers returns all members of a group ordered by member ID
func (d *DB) ListGroupMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT m.id, m.display_name, m.email, ms.role
		FROM membership ms
		JOIN member m ON m.id = ms.member_id
		WHERE ms.group_id = $1
		ORDER BY m.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var members []model.GroupMember
	for rows.Next() {
		var gm model.GroupMember
		if err := rows.Scan(&gm.ID, &gm.DisplayName, &gm.Email, &gm.Role); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, gm)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group members: %w", err)
	}

	return members, nil
}

func (t *tx) DeleteMembership(ctx context.Context, groupID, memberID string) error {
	tag, err := t.q.Exec(ctx, `
		DELETE FROM membership WHERE group_id = $1 AND member_id = $2
	`, groupID, memberID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership %s/%s: %w", groupID, memberID, db.ErrNotFound)
	}
	return nil
}
