package postgres

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gafferhq/brain/internal/domain/group"
)

const groupInviteCodeUniqueConstraint = "leaderboard_groups_invite_code_key"

type GroupRepository struct {
	db *sqlx.DB
}

func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

type groupRow struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	InviteCode string    `db:"invite_code"`
	CreatedBy  string    `db:"created_by"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r groupRow) toDomain() group.Group {
	return group.Group{
		ID:         r.ID,
		Name:       r.Name,
		InviteCode: r.InviteCode,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
	}
}

func (r *GroupRepository) CreateGroup(ctx context.Context, g group.Group, now time.Time) (group.Group, error) {
	var row groupRow
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertQuery = `
INSERT INTO leaderboard_groups (id, name, invite_code, created_by, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, invite_code, created_by, created_at`

		if err := tx.GetContext(ctx, &row, insertQuery,
			uuid.NewString(), g.Name, g.InviteCode, g.CreatedBy, now,
		); err != nil {
			if isUniqueViolation(err, groupInviteCodeUniqueConstraint) {
				return group.ErrInviteCodeTaken
			}
			return crerr.Wrap(err, "insert group")
		}

		const memberQuery = `
INSERT INTO leaderboard_group_members (group_id, user_id, role, joined_at)
VALUES ($1, $2, 'admin', $3)`
		if _, err := tx.ExecContext(ctx, memberQuery, row.ID, g.CreatedBy, now); err != nil {
			return crerr.Wrap(err, "insert group admin")
		}

		return nil
	})
	if err != nil {
		return group.Group{}, err
	}

	return row.toDomain(), nil
}

func (r *GroupRepository) GetByID(ctx context.Context, groupID string) (group.Group, bool, error) {
	const query = `SELECT id, name, invite_code, created_by, created_at FROM leaderboard_groups WHERE id = $1`

	var row groupRow
	if err := r.db.GetContext(ctx, &row, query, groupID); err != nil {
		if isNotFound(err) {
			return group.Group{}, false, nil
		}
		return group.Group{}, false, crerr.Wrap(err, "get group")
	}

	return row.toDomain(), true, nil
}

func (r *GroupRepository) GetByInviteCode(ctx context.Context, code string) (group.Group, bool, error) {
	const query = `SELECT id, name, invite_code, created_by, created_at FROM leaderboard_groups WHERE UPPER(invite_code) = $1`

	var row groupRow
	if err := r.db.GetContext(ctx, &row, query, group.NormalizeInviteCode(code)); err != nil {
		if isNotFound(err) {
			return group.Group{}, false, nil
		}
		return group.Group{}, false, crerr.Wrap(err, "get group by invite code")
	}

	return row.toDomain(), true, nil
}

// AddMember is idempotent: an existing membership reports added=false.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string, role group.Role, now time.Time) (bool, error) {
	const query = `
INSERT INTO leaderboard_group_members (group_id, user_id, role, joined_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (group_id, user_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, groupID, userID, string(role), now)
	if err != nil {
		return false, crerr.Wrap(err, "add group member")
	}

	added, err := res.RowsAffected()
	if err != nil {
		return false, crerr.Wrap(err, "count added members")
	}

	return added > 0, nil
}

func (r *GroupRepository) Membership(ctx context.Context, groupID, userID string) (group.Member, bool, error) {
	const query = `
SELECT group_id, user_id, role, joined_at
FROM leaderboard_group_members
WHERE group_id = $1 AND user_id = $2`

	var row struct {
		GroupID  string    `db:"group_id"`
		UserID   string    `db:"user_id"`
		Role     string    `db:"role"`
		JoinedAt time.Time `db:"joined_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, groupID, userID); err != nil {
		if isNotFound(err) {
			return group.Member{}, false, nil
		}
		return group.Member{}, false, crerr.Wrap(err, "get group membership")
	}

	return group.Member{
		GroupID:  row.GroupID,
		UserID:   row.UserID,
		Role:     group.Role(row.Role),
		JoinedAt: row.JoinedAt,
	}, true, nil
}

func (r *GroupRepository) ListByUser(ctx context.Context, userID string) ([]group.Group, error) {
	const query = `
SELECT g.id, g.name, g.invite_code, g.created_by, g.created_at
FROM leaderboard_groups g
JOIN leaderboard_group_members m ON m.group_id = g.id
WHERE m.user_id = $1
ORDER BY g.created_at`

	var rows []groupRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, crerr.Wrap(err, "list groups by user")
	}

	groups := make([]group.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.toDomain())
	}

	return groups, nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	const query = `DELETE FROM leaderboard_group_members WHERE group_id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, groupID, userID)
	if err != nil {
		return crerr.Wrap(err, "remove group member")
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return crerr.Wrap(err, "count removed members")
	}
	if removed == 0 {
		return group.ErrNotMember
	}

	return nil
}

func (r *GroupRepository) MemberUserIDs(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT user_id FROM leaderboard_group_members WHERE group_id = $1 ORDER BY joined_at`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, crerr.Wrap(err, "list group member ids")
	}

	return ids, nil
}
