package postgres

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gafferhq/brain/internal/domain/squad"
)

const (
	squadTagUniqueConstraint = "coaching_squads_tag_key"
	oneActiveMembershipIndex = "squad_members_one_active_idx"
)

type SquadRepository struct {
	db *sqlx.DB
}

func NewSquadRepository(db *sqlx.DB) *SquadRepository {
	return &SquadRepository{db: db}
}

type squadRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Tag           *string   `db:"tag"`
	Description   string    `db:"description"`
	LeaderUserID  string    `db:"leader_user_id"`
	Privacy       string    `db:"privacy"`
	TotalPoints   int       `db:"total_points"`
	UnspentPoints int       `db:"unspent_points"`
	Level         int       `db:"level"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r squadRow) toDomain() squad.Squad {
	tag := ""
	if r.Tag != nil {
		tag = *r.Tag
	}
	return squad.Squad{
		ID:            r.ID,
		Name:          r.Name,
		Tag:           tag,
		Description:   r.Description,
		LeaderUserID:  r.LeaderUserID,
		Privacy:       squad.Privacy(r.Privacy),
		TotalPoints:   r.TotalPoints,
		UnspentPoints: r.UnspentPoints,
		Level:         r.Level,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type memberRow struct {
	SquadID           string    `db:"squad_id"`
	UserID            string    `db:"user_id"`
	Role              string    `db:"role"`
	PointsContributed int       `db:"points_contributed"`
	Status            string    `db:"status"`
	JoinedAt          time.Time `db:"joined_at"`
}

func (r memberRow) toDomain() squad.Member {
	return squad.Member{
		SquadID:           r.SquadID,
		UserID:            r.UserID,
		Role:              squad.Role(r.Role),
		PointsContributed: r.PointsContributed,
		Status:            squad.MemberStatus(r.Status),
		JoinedAt:          r.JoinedAt,
	}
}

type joinRequestRow struct {
	ID         string     `db:"id"`
	SquadID    string     `db:"squad_id"`
	UserID     string     `db:"user_id"`
	Status     string     `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at"`
	ResolvedBy *string    `db:"resolved_by"`
}

func (r joinRequestRow) toDomain() squad.JoinRequest {
	return squad.JoinRequest{
		ID:         r.ID,
		SquadID:    r.SquadID,
		UserID:     r.UserID,
		Status:     squad.RequestStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		ResolvedAt: r.ResolvedAt,
		ResolvedBy: r.ResolvedBy,
	}
}

const squadColumns = `
id, name, tag, description, leader_user_id, privacy, total_points, unspent_points, level, created_at, updated_at`

func (r *SquadRepository) CreateSquad(ctx context.Context, s squad.NewSquad, now time.Time) (squad.Squad, error) {
	var row squadRow
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var tagArg *string
		if s.Tag != "" {
			tagArg = &s.Tag
		}

		const insertQuery = `
INSERT INTO coaching_squads (id, name, tag, description, leader_user_id, privacy, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING ` + squadColumns

		if err := tx.GetContext(ctx, &row, insertQuery,
			uuid.NewString(), s.Name, tagArg, s.Description, s.LeaderUserID, string(s.Privacy), now,
		); err != nil {
			if isUniqueViolation(err, squadTagUniqueConstraint) {
				return squad.ErrTagTaken
			}
			return crerr.Wrap(err, "insert squad")
		}

		if err := insertActiveMember(ctx, tx, row.ID, s.LeaderUserID, squad.RoleLeader, now); err != nil {
			return err
		}

		const facilityQuery = `
INSERT INTO squad_facilities (squad_id, facility_type, level)
VALUES ($1, $2, 0)`
		for _, ft := range squad.AllFacilities {
			if _, err := tx.ExecContext(ctx, facilityQuery, row.ID, string(ft)); err != nil {
				return crerr.Wrapf(err, "seed facility %s", ft)
			}
		}

		return nil
	})
	if err != nil {
		return squad.Squad{}, err
	}

	return row.toDomain(), nil
}

func insertActiveMember(ctx context.Context, tx *sqlx.Tx, squadID, userID string, role squad.Role, now time.Time) error {
	const query = `
INSERT INTO squad_members (squad_id, user_id, role, status, joined_at)
VALUES ($1, $2, $3, 'active', $4)
ON CONFLICT (squad_id, user_id) DO UPDATE SET
    status = 'active',
    role = EXCLUDED.role,
    joined_at = EXCLUDED.joined_at`

	if _, err := tx.ExecContext(ctx, query, squadID, userID, string(role), now); err != nil {
		if isUniqueViolation(err, oneActiveMembershipIndex) {
			return squad.ErrAlreadyInSquad
		}
		return crerr.Wrap(err, "insert active member")
	}

	return nil
}

func (r *SquadRepository) GetSquad(ctx context.Context, squadID string) (squad.Squad, bool, error) {
	const query = `SELECT ` + squadColumns + ` FROM coaching_squads WHERE id = $1`

	var row squadRow
	if err := r.db.GetContext(ctx, &row, query, squadID); err != nil {
		if isNotFound(err) {
			return squad.Squad{}, false, nil
		}
		return squad.Squad{}, false, crerr.Wrap(err, "get squad")
	}

	return row.toDomain(), true, nil
}

func (r *SquadRepository) Profile(ctx context.Context, squadID string) (squad.Profile, bool, error) {
	s, found, err := r.GetSquad(ctx, squadID)
	if err != nil || !found {
		return squad.Profile{}, found, err
	}

	const membersQuery = `
SELECT squad_id, user_id, role, points_contributed, status, joined_at
FROM squad_members
WHERE squad_id = $1 AND status = 'active'
ORDER BY joined_at`

	var memberRows []memberRow
	if err := r.db.SelectContext(ctx, &memberRows, membersQuery, squadID); err != nil {
		return squad.Profile{}, false, crerr.Wrap(err, "list squad members")
	}

	const facilitiesQuery = `
SELECT squad_id, facility_type, level
FROM squad_facilities
WHERE squad_id = $1
ORDER BY facility_type`

	var facilityRows []struct {
		SquadID      string `db:"squad_id"`
		FacilityType string `db:"facility_type"`
		Level        int    `db:"level"`
	}
	if err := r.db.SelectContext(ctx, &facilityRows, facilitiesQuery, squadID); err != nil {
		return squad.Profile{}, false, crerr.Wrap(err, "list squad facilities")
	}

	const eventsQuery = `
SELECT id, squad_id, user_id, points, reason, created_at
FROM squad_point_events
WHERE squad_id = $1
ORDER BY created_at DESC
LIMIT 20`

	var eventRows []struct {
		ID        string    `db:"id"`
		SquadID   string    `db:"squad_id"`
		UserID    string    `db:"user_id"`
		Points    int       `db:"points"`
		Reason    string    `db:"reason"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &eventRows, eventsQuery, squadID); err != nil {
		return squad.Profile{}, false, crerr.Wrap(err, "list squad point events")
	}

	profile := squad.Profile{Squad: s}
	for _, m := range memberRows {
		profile.Members = append(profile.Members, m.toDomain())
	}
	for _, f := range facilityRows {
		profile.Facilities = append(profile.Facilities, squad.Facility{
			SquadID: f.SquadID,
			Type:    squad.FacilityType(f.FacilityType),
			Level:   f.Level,
		})
	}
	for _, e := range eventRows {
		profile.RecentEvents = append(profile.RecentEvents, squad.PointEvent{
			ID:        e.ID,
			SquadID:   e.SquadID,
			UserID:    e.UserID,
			Points:    e.Points,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}

	return profile, true, nil
}

func (r *SquadRepository) ActiveMembership(ctx context.Context, userID string) (squad.Member, bool, error) {
	const query = `
SELECT squad_id, user_id, role, points_contributed, status, joined_at
FROM squad_members
WHERE user_id = $1 AND status = 'active'`

	var row memberRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if isNotFound(err) {
			return squad.Member{}, false, nil
		}
		return squad.Member{}, false, crerr.Wrap(err, "get active membership")
	}

	return row.toDomain(), true, nil
}

func (r *SquadRepository) JoinOpen(ctx context.Context, squadID, userID string, now time.Time) (squad.Member, error) {
	var member squad.Member
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		row, err := lockSquad(ctx, tx, squadID)
		if err != nil {
			return err
		}
		if squad.Privacy(row.Privacy) != squad.PrivacyOpen {
			return squad.ErrSquadNotOpen
		}

		if err := insertActiveMember(ctx, tx, squadID, userID, squad.RoleMember, now); err != nil {
			return err
		}

		if err := touchSquad(ctx, tx, squadID, now); err != nil {
			return err
		}

		member = squad.Member{
			SquadID:  squadID,
			UserID:   userID,
			Role:     squad.RoleMember,
			Status:   squad.MemberActive,
			JoinedAt: now,
		}
		return nil
	})
	if err != nil {
		return squad.Member{}, err
	}

	return member, nil
}

func lockSquad(ctx context.Context, tx *sqlx.Tx, squadID string) (squadRow, error) {
	const query = `SELECT ` + squadColumns + ` FROM coaching_squads WHERE id = $1 FOR UPDATE`

	var row squadRow
	if err := tx.GetContext(ctx, &row, query, squadID); err != nil {
		if isNotFound(err) {
			return squadRow{}, squad.ErrSquadNotFound
		}
		return squadRow{}, crerr.Wrap(err, "lock squad")
	}

	return row, nil
}

func touchSquad(ctx context.Context, tx *sqlx.Tx, squadID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE coaching_squads SET updated_at = $2 WHERE id = $1`, squadID, now); err != nil {
		return crerr.Wrap(err, "touch squad")
	}
	return nil
}

// CreateJoinRequest inserts a pending request, or returns the existing
// pending one instead of duplicating it.
func (r *SquadRepository) CreateJoinRequest(ctx context.Context, squadID, userID string, now time.Time) (squad.JoinRequest, error) {
	var request squad.JoinRequest
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const existingQuery = `
SELECT id, squad_id, user_id, status, created_at, resolved_at, resolved_by
FROM squad_join_requests
WHERE squad_id = $1 AND user_id = $2 AND status = 'pending'`

		var existing joinRequestRow
		err := tx.GetContext(ctx, &existing, existingQuery, squadID, userID)
		if err == nil {
			request = existing.toDomain()
			return nil
		}
		if !isNotFound(err) {
			return crerr.Wrap(err, "find pending join request")
		}

		const insertQuery = `
INSERT INTO squad_join_requests (id, squad_id, user_id, status, created_at)
VALUES ($1, $2, $3, 'pending', $4)
RETURNING id, squad_id, user_id, status, created_at, resolved_at, resolved_by`

		var row joinRequestRow
		if err := tx.GetContext(ctx, &row, insertQuery, uuid.NewString(), squadID, userID, now); err != nil {
			return crerr.Wrap(err, "insert join request")
		}

		request = row.toDomain()
		return nil
	})
	if err != nil {
		return squad.JoinRequest{}, err
	}

	return request, nil
}

func (r *SquadRepository) GetJoinRequest(ctx context.Context, requestID string) (squad.JoinRequest, bool, error) {
	const query = `
SELECT id, squad_id, user_id, status, created_at, resolved_at, resolved_by
FROM squad_join_requests
WHERE id = $1`

	var row joinRequestRow
	if err := r.db.GetContext(ctx, &row, query, requestID); err != nil {
		if isNotFound(err) {
			return squad.JoinRequest{}, false, nil
		}
		return squad.JoinRequest{}, false, crerr.Wrap(err, "get join request")
	}

	return row.toDomain(), true, nil
}

func (r *SquadRepository) PendingRequests(ctx context.Context, squadID string) ([]squad.JoinRequest, error) {
	const query = `
SELECT id, squad_id, user_id, status, created_at, resolved_at, resolved_by
FROM squad_join_requests
WHERE squad_id = $1 AND status = 'pending'
ORDER BY created_at`

	var rows []joinRequestRow
	if err := r.db.SelectContext(ctx, &rows, query, squadID); err != nil {
		return nil, crerr.Wrap(err, "list pending join requests")
	}

	requests := make([]squad.JoinRequest, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, row.toDomain())
	}

	return requests, nil
}

// ResolveJoinRequest locks the request, verifies the resolver's role,
// and on approval rechecks the applicant is still free. An applicant
// who joined elsewhere while pending gets an automatic rejection.
func (r *SquadRepository) ResolveJoinRequest(ctx context.Context, requestID, resolverID string, approve bool, now time.Time) (squad.ResolveOutcome, error) {
	var outcome squad.ResolveOutcome
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const lockQuery = `
SELECT id, squad_id, user_id, status, created_at, resolved_at, resolved_by
FROM squad_join_requests
WHERE id = $1
FOR UPDATE`

		var row joinRequestRow
		if err := tx.GetContext(ctx, &row, lockQuery, requestID); err != nil {
			if isNotFound(err) {
				return squad.ErrRequestNotFound
			}
			return crerr.Wrap(err, "lock join request")
		}
		if squad.RequestStatus(row.Status) != squad.RequestPending {
			return squad.ErrRequestResolved
		}

		resolverRole, err := memberRole(ctx, tx, row.SquadID, resolverID)
		if err != nil {
			return err
		}
		if !resolverRole.CanManageRequests() {
			return squad.ErrRoleRequired
		}

		status := squad.RequestRejected
		if approve {
			var existingSquad string
			err := tx.GetContext(ctx, &existingSquad,
				`SELECT squad_id FROM squad_members WHERE user_id = $1 AND status = 'active'`, row.UserID)
			switch {
			case err == nil:
				// Applicant joined another squad while pending.
				outcome.AutoRejected = true
			case isNotFound(err):
				if _, err := lockSquad(ctx, tx, row.SquadID); err != nil {
					return err
				}
				if err := insertActiveMember(ctx, tx, row.SquadID, row.UserID, squad.RoleMember, now); err != nil {
					return err
				}
				if err := touchSquad(ctx, tx, row.SquadID, now); err != nil {
					return err
				}
				status = squad.RequestApproved
			default:
				return crerr.Wrap(err, "recheck applicant membership")
			}
		}

		const resolveQuery = `
UPDATE squad_join_requests
SET status = $2, resolved_at = $3, resolved_by = $4
WHERE id = $1
RETURNING id, squad_id, user_id, status, created_at, resolved_at, resolved_by`

		if err := tx.GetContext(ctx, &row, resolveQuery, requestID, string(status), now, resolverID); err != nil {
			return crerr.Wrap(err, "resolve join request")
		}

		outcome.Request = row.toDomain()
		return nil
	})
	if err != nil {
		return squad.ResolveOutcome{}, err
	}

	return outcome, nil
}

func memberRole(ctx context.Context, tx *sqlx.Tx, squadID, userID string) (squad.Role, error) {
	var role string
	err := tx.GetContext(ctx, &role,
		`SELECT role FROM squad_members WHERE squad_id = $1 AND user_id = $2 AND status = 'active'`,
		squadID, userID)
	if err != nil {
		if isNotFound(err) {
			return "", squad.ErrNotMember
		}
		return "", crerr.Wrap(err, "get member role")
	}

	return squad.Role(role), nil
}

// Leave deactivates the caller's membership. A leader may only leave an
// occupied squad after promoting a successor.
func (r *SquadRepository) Leave(ctx context.Context, userID string, now time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const lockQuery = `
SELECT squad_id, user_id, role, points_contributed, status, joined_at
FROM squad_members
WHERE user_id = $1 AND status = 'active'
FOR UPDATE`

		var row memberRow
		if err := tx.GetContext(ctx, &row, lockQuery, userID); err != nil {
			if isNotFound(err) {
				return squad.ErrNotMember
			}
			return crerr.Wrap(err, "lock membership")
		}

		if squad.Role(row.Role) == squad.RoleLeader {
			var counts struct {
				Others   int `db:"others"`
				Officers int `db:"officers"`
			}
			const countQuery = `
SELECT COUNT(*) FILTER (WHERE user_id <> $2) AS others,
       COUNT(*) FILTER (WHERE user_id <> $2 AND role IN ('leader', 'co_leader')) AS officers
FROM squad_members
WHERE squad_id = $1 AND status = 'active'`
			if err := tx.GetContext(ctx, &counts, countQuery, row.SquadID, userID); err != nil {
				return crerr.Wrap(err, "count remaining members")
			}
			if counts.Others > 0 && counts.Officers == 0 {
				return squad.ErrPromoteFirst
			}
		}

		const leaveQuery = `
UPDATE squad_members
SET status = 'inactive'
WHERE squad_id = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, leaveQuery, row.SquadID, userID); err != nil {
			return crerr.Wrap(err, "deactivate membership")
		}

		return touchSquad(ctx, tx, row.SquadID, now)
	})
}

// UpgradeFacility locks squad then facility, charges
// base_cost * (level+1) against unspent points, and recomputes the
// squad level from the facility sum.
func (r *SquadRepository) UpgradeFacility(ctx context.Context, squadID, userID string, ft squad.FacilityType, now time.Time) (squad.UpgradeOutcome, error) {
	var outcome squad.UpgradeOutcome
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		row, err := lockSquad(ctx, tx, squadID)
		if err != nil {
			return err
		}

		role, err := memberRole(ctx, tx, squadID, userID)
		if err != nil {
			return err
		}
		if !role.CanManageRequests() {
			return squad.ErrRoleRequired
		}

		var level int
		const facilityLockQuery = `
SELECT level FROM squad_facilities
WHERE squad_id = $1 AND facility_type = $2
FOR UPDATE`
		if err := tx.GetContext(ctx, &level, facilityLockQuery, squadID, string(ft)); err != nil {
			return crerr.Wrap(err, "lock facility")
		}

		cost := squad.UpgradeCost(ft, level)
		if row.UnspentPoints < cost {
			return squad.ErrInsufficientPoints
		}

		newLevel := level + 1
		const bumpQuery = `
UPDATE squad_facilities
SET level = $3
WHERE squad_id = $1 AND facility_type = $2`
		if _, err := tx.ExecContext(ctx, bumpQuery, squadID, string(ft), newLevel); err != nil {
			return crerr.Wrap(err, "bump facility level")
		}

		var facilitySum int
		if err := tx.GetContext(ctx, &facilitySum,
			`SELECT COALESCE(SUM(level), 0) FROM squad_facilities WHERE squad_id = $1`, squadID); err != nil {
			return crerr.Wrap(err, "sum facility levels")
		}
		squadLevel := 1 + facilitySum/4

		const chargeQuery = `
UPDATE coaching_squads
SET unspent_points = unspent_points - $2, level = $3, updated_at = $4
WHERE id = $1
RETURNING unspent_points`
		var unspent int
		if err := tx.GetContext(ctx, &unspent, chargeQuery, squadID, cost, squadLevel, now); err != nil {
			return crerr.Wrap(err, "charge upgrade cost")
		}

		const spendQuery = `
INSERT INTO squad_spend_transactions (id, squad_id, user_id, facility_type, cost, new_level, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, spendQuery,
			uuid.NewString(), squadID, userID, string(ft), cost, newLevel, now,
		); err != nil {
			return crerr.Wrap(err, "append spend transaction")
		}

		outcome = squad.UpgradeOutcome{
			FacilityType:  ft,
			NewLevel:      newLevel,
			Cost:          cost,
			UnspentPoints: unspent,
			SquadLevel:    squadLevel,
		}
		return nil
	})
	if err != nil {
		return squad.UpgradeOutcome{}, err
	}

	return outcome, nil
}

// SetMemberRole is leader-only.
func (r *SquadRepository) SetMemberRole(ctx context.Context, squadID, leaderID, targetUserID string, role squad.Role) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := lockSquad(ctx, tx, squadID); err != nil {
			return err
		}

		callerRole, err := memberRole(ctx, tx, squadID, leaderID)
		if err != nil {
			return err
		}
		if callerRole != squad.RoleLeader {
			return squad.ErrLeaderOnly
		}

		const query = `
UPDATE squad_members
SET role = $3
WHERE squad_id = $1 AND user_id = $2 AND status = 'active'`
		res, err := tx.ExecContext(ctx, query, squadID, targetUserID, string(role))
		if err != nil {
			return crerr.Wrap(err, "set member role")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return crerr.Wrap(err, "count role updates")
		}
		if affected == 0 {
			return squad.ErrNotMember
		}

		return nil
	})
}

func (r *SquadRepository) Leaderboard(ctx context.Context, limit int) ([]squad.Squad, error) {
	const query = `
SELECT ` + squadColumns + `
FROM coaching_squads
ORDER BY total_points DESC, level DESC, updated_at ASC
LIMIT $1`

	var rows []squadRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, crerr.Wrap(err, "squad leaderboard")
	}

	squads := make([]squad.Squad, 0, len(rows))
	for _, row := range rows {
		squads = append(squads, row.toDomain())
	}

	return squads, nil
}

func (r *SquadRepository) Search(ctx context.Context, query string, limit int) ([]squad.Squad, error) {
	const searchQuery = `
SELECT ` + squadColumns + `
FROM coaching_squads
WHERE name ILIKE '%' || $1 || '%' OR tag ILIKE '%' || $1 || '%'
ORDER BY total_points DESC, name ASC
LIMIT $2`

	var rows []squadRow
	if err := r.db.SelectContext(ctx, &rows, searchQuery, query, limit); err != nil {
		return nil, crerr.Wrap(err, "search squads")
	}

	squads := make([]squad.Squad, 0, len(rows))
	for _, row := range rows {
		squads = append(squads, row.toDomain())
	}

	return squads, nil
}
