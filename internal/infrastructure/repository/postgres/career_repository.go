package postgres

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gafferhq/brain/internal/domain/career"
)

const completionPlayerUniqueConstraint = "career_completions_player_id_key"

type CareerRepository struct {
	db *sqlx.DB
}

func NewCareerRepository(db *sqlx.DB) *CareerRepository {
	return &CareerRepository{db: db}
}

type playerRow struct {
	ID                string     `db:"id"`
	UserID            string     `db:"user_id"`
	DisplayName       string     `db:"display_name"`
	OverallRating     int        `db:"overall_rating"`
	CurrentLeague     string     `db:"current_league"`
	CareerStatus      string     `db:"career_status"`
	CareerStartedAt   time.Time  `db:"career_started_at"`
	CareerCompletedAt *time.Time `db:"career_completed_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func (r playerRow) toDomain() career.Player {
	return career.Player{
		ID:                r.ID,
		UserID:            r.UserID,
		DisplayName:       r.DisplayName,
		OverallRating:     r.OverallRating,
		CurrentLeague:     career.League(r.CurrentLeague),
		CareerStatus:      career.CareerStatus(r.CareerStatus),
		CareerStartedAt:   r.CareerStartedAt,
		CareerCompletedAt: r.CareerCompletedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const playerColumns = `
id, user_id, display_name, overall_rating, current_league, career_status,
career_started_at, career_completed_at, created_at, updated_at`

// CreatePlayer is idempotent: a replayed registration keeps the
// existing row and only refreshes the display name when one is sent.
// The coach's zeroed stats row is upserted in the same transaction.
func (r *CareerRepository) CreatePlayer(ctx context.Context, p career.NewPlayer) (career.Player, error) {
	var row playerRow
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertQuery = `
INSERT INTO players (id, user_id, display_name, overall_rating, current_league, career_status, career_started_at)
VALUES ($1, $2, $3, $4, $5, 'active', $6)
ON CONFLICT (id) DO UPDATE SET
    display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE players.display_name END,
    updated_at = NOW()
RETURNING ` + playerColumns

		if err := tx.GetContext(ctx, &row, insertQuery,
			p.PlayerID, p.UserID, p.DisplayName, p.OverallRating, string(p.CurrentLeague), p.StartedAt,
		); err != nil {
			return crerr.Wrap(err, "upsert player")
		}

		const statsQuery = `
INSERT INTO coach_stats (user_id, display_name, completions_count, total_days_sum)
VALUES ($1, $2, 0, 0)
ON CONFLICT (user_id) DO NOTHING`

		if _, err := tx.ExecContext(ctx, statsQuery, p.UserID, p.DisplayName); err != nil {
			return crerr.Wrap(err, "upsert zeroed coach stats")
		}

		return nil
	})
	if err != nil {
		return career.Player{}, err
	}

	return row.toDomain(), nil
}

func (r *CareerRepository) GetPlayer(ctx context.Context, playerID string) (career.Player, bool, error) {
	const query = `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	var row playerRow
	if err := r.db.GetContext(ctx, &row, query, playerID); err != nil {
		if isNotFound(err) {
			return career.Player{}, false, nil
		}
		return career.Player{}, false, crerr.Wrap(err, "get player")
	}

	return row.toDomain(), true, nil
}

// UpdateProgress mutates rating/league only while the career is active.
// A push for a completed player is a silent no-op: second return false.
func (r *CareerRepository) UpdateProgress(ctx context.Context, playerID string, upd career.ProgressUpdate) (career.Player, bool, error) {
	const query = `
UPDATE players
SET overall_rating = COALESCE($2, overall_rating),
    current_league = COALESCE($3, current_league),
    updated_at = NOW()
WHERE id = $1
  AND career_status = 'active'
RETURNING ` + playerColumns

	var leagueArg *string
	if upd.CurrentLeague != nil {
		s := string(*upd.CurrentLeague)
		leagueArg = &s
	}

	var row playerRow
	if err := r.db.GetContext(ctx, &row, query, playerID, upd.OverallRating, leagueArg); err != nil {
		if isNotFound(err) {
			return career.Player{}, false, nil
		}
		return career.Player{}, false, crerr.Wrap(err, "update player progress")
	}

	return row.toDomain(), true, nil
}

func (r *CareerRepository) ListActive(ctx context.Context) ([]career.Player, error) {
	const query = `SELECT ` + playerColumns + ` FROM players WHERE career_status = 'active' ORDER BY id`

	var rows []playerRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, crerr.Wrap(err, "list active players")
	}

	players := make([]career.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, row.toDomain())
	}

	return players, nil
}

// PromoteBatch moves every listed player still active in the source
// league to the target league in one statement.
func (r *CareerRepository) PromoteBatch(ctx context.Context, playerIDs []string, from, to career.League) (int, error) {
	if len(playerIDs) == 0 {
		return 0, nil
	}

	const query = `
UPDATE players
SET current_league = $1, updated_at = NOW()
WHERE id = ANY($2)
  AND current_league = $3
  AND career_status = 'active'`

	res, err := r.db.ExecContext(ctx, query, string(to), playerIDArray(playerIDs), string(from))
	if err != nil {
		return 0, crerr.Wrapf(err, "promote batch to %s", to)
	}

	moved, err := res.RowsAffected()
	if err != nil {
		return 0, crerr.Wrap(err, "count promoted rows")
	}

	return int(moved), nil
}

// CompleteCareer runs the full completion pipeline in one transaction:
// lock the player row, freeze it, insert the completion, fold the coach
// stats, and award the squad point if the coach holds an active
// membership. Races collapse onto the row lock first and the completion
// unique constraint second; both resolve to already_completed.
func (r *CareerRepository) CompleteCareer(ctx context.Context, playerID string, now time.Time) (career.CompletionOutcome, error) {
	var outcome career.CompletionOutcome
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const lockQuery = `SELECT ` + playerColumns + ` FROM players WHERE id = $1 FOR UPDATE`

		var row playerRow
		if err := tx.GetContext(ctx, &row, lockQuery, playerID); err != nil {
			if isNotFound(err) {
				return career.ErrPlayerNotFound
			}
			return crerr.Wrap(err, "lock player for completion")
		}

		outcome.PlayerID = row.ID
		outcome.UserID = row.UserID

		if row.CareerStatus == string(career.StatusCompleted) {
			outcome.AlreadyCompleted = true
			return nil
		}

		days := career.DaysToPremier(row.CareerStartedAt, now)
		outcome.DaysToPremier = days

		const freezeQuery = `
UPDATE players
SET career_status = 'completed', career_completed_at = $2, updated_at = NOW()
WHERE id = $1`
		if _, err := tx.ExecContext(ctx, freezeQuery, playerID, now); err != nil {
			return crerr.Wrap(err, "freeze completed player")
		}

		const completionQuery = `
INSERT INTO career_completions (id, player_id, user_id, days_to_premier, completed_at)
VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.ExecContext(ctx, completionQuery,
			uuid.NewString(), playerID, row.UserID, days, now,
		); err != nil {
			if isUniqueViolation(err, completionPlayerUniqueConstraint) {
				outcome.AlreadyCompleted = true
				return errAbortAlreadyCompleted
			}
			return crerr.Wrap(err, "insert career completion")
		}

		const statsQuery = `
INSERT INTO coach_stats (user_id, display_name, completions_count, best_days_to_premier, avg_days_to_premier, total_days_sum)
VALUES ($1, $2, 1, $3, $3, $3)
ON CONFLICT (user_id) DO UPDATE SET
    completions_count = coach_stats.completions_count + 1,
    total_days_sum = coach_stats.total_days_sum + EXCLUDED.total_days_sum,
    avg_days_to_premier = ROUND((coach_stats.total_days_sum + EXCLUDED.total_days_sum)::numeric / (coach_stats.completions_count + 1)),
    best_days_to_premier = LEAST(COALESCE(coach_stats.best_days_to_premier, EXCLUDED.best_days_to_premier), EXCLUDED.best_days_to_premier),
    updated_at = NOW()`
		if _, err := tx.ExecContext(ctx, statsQuery, row.UserID, row.DisplayName, days); err != nil {
			return crerr.Wrap(err, "fold coach stats")
		}

		awarded, squadID, err := awardSquadPoint(ctx, tx, row.UserID, now)
		if err != nil {
			return err
		}
		outcome.SquadPointAwarded = awarded
		outcome.SquadID = squadID

		return nil
	})
	if crerr.Is(err, errAbortAlreadyCompleted) {
		// The losing writer's transaction rolled back; the winner's
		// completion stands and this caller reports it idempotently.
		return outcome, nil
	}
	if err != nil {
		return career.CompletionOutcome{}, err
	}

	return outcome, nil
}

// errAbortAlreadyCompleted forces a rollback of the losing completion
// while letting the caller report success.
var errAbortAlreadyCompleted = crerr.New("completion lost the race")

func awardSquadPoint(ctx context.Context, tx *sqlx.Tx, userID string, now time.Time) (bool, string, error) {
	const memberQuery = `
SELECT squad_id FROM squad_members
WHERE user_id = $1 AND status = 'active'`

	var squadID string
	if err := tx.GetContext(ctx, &squadID, memberQuery, userID); err != nil {
		if isNotFound(err) {
			return false, "", nil
		}
		return false, "", crerr.Wrap(err, "find active squad membership")
	}

	const squadQuery = `
UPDATE coaching_squads
SET total_points = total_points + 1,
    unspent_points = unspent_points + 1,
    updated_at = $2
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, squadQuery, squadID, now); err != nil {
		return false, "", crerr.Wrap(err, "credit squad points")
	}

	const contributionQuery = `
UPDATE squad_members
SET points_contributed = points_contributed + 1
WHERE squad_id = $1 AND user_id = $2`
	if _, err := tx.ExecContext(ctx, contributionQuery, squadID, userID); err != nil {
		return false, "", crerr.Wrap(err, "credit member contribution")
	}

	const eventQuery = `
INSERT INTO squad_point_events (id, squad_id, user_id, points, reason, created_at)
VALUES ($1, $2, $3, 1, $4, $5)`
	if _, err := tx.ExecContext(ctx, eventQuery,
		uuid.NewString(), squadID, userID, "premier_completion", now,
	); err != nil {
		return false, "", crerr.Wrap(err, "append squad point event")
	}

	return true, squadID, nil
}

func (r *CareerRepository) CoachStats(ctx context.Context, userID string) (career.CoachStats, bool, error) {
	const query = `
SELECT user_id, display_name, completions_count, best_days_to_premier, avg_days_to_premier, total_days_sum
FROM coach_stats
WHERE user_id = $1`

	var row struct {
		UserID            string `db:"user_id"`
		DisplayName       string `db:"display_name"`
		CompletionsCount  int    `db:"completions_count"`
		BestDaysToPremier *int   `db:"best_days_to_premier"`
		AvgDaysToPremier  *int   `db:"avg_days_to_premier"`
		TotalDaysSum      int    `db:"total_days_sum"`
	}
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if isNotFound(err) {
			return career.CoachStats{}, false, nil
		}
		return career.CoachStats{}, false, crerr.Wrap(err, "get coach stats")
	}

	return career.CoachStats{
		UserID:            row.UserID,
		DisplayName:       row.DisplayName,
		CompletionsCount:  row.CompletionsCount,
		BestDaysToPremier: row.BestDaysToPremier,
		AvgDaysToPremier:  row.AvgDaysToPremier,
		TotalDaysSum:      row.TotalDaysSum,
	}, true, nil
}
