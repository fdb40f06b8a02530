package postgres

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gafferhq/brain/internal/domain/season"
)

type SeasonRepository struct {
	db *sqlx.DB
}

func NewSeasonRepository(db *sqlx.DB) *SeasonRepository {
	return &SeasonRepository{db: db}
}

type seasonRow struct {
	ID                string    `db:"id"`
	Tier              string    `db:"efl_tier"`
	CurrentMatchday   int       `db:"current_matchday"`
	TotalMatchdays    int       `db:"total_matchdays"`
	FixturesGenerated bool      `db:"fixtures_generated"`
	Status            string    `db:"status"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r seasonRow) toDomain() season.Season {
	return season.Season{
		ID:                r.ID,
		Tier:              season.Tier(r.Tier),
		CurrentMatchday:   r.CurrentMatchday,
		TotalMatchdays:    r.TotalMatchdays,
		FixturesGenerated: r.FixturesGenerated,
		Status:            season.SeasonStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type fixtureRow struct {
	ID         string     `db:"id"`
	SeasonID   string     `db:"season_id"`
	Tier       string     `db:"efl_tier"`
	Matchday   int        `db:"matchday"`
	HomeClubID string     `db:"home_club_id"`
	AwayClubID string     `db:"away_club_id"`
	HomeGoals  *int       `db:"home_goals"`
	AwayGoals  *int       `db:"away_goals"`
	Status     string     `db:"status"`
	PlayedAt   *time.Time `db:"played_at"`
}

func (r fixtureRow) toDomain() season.Fixture {
	return season.Fixture{
		ID:         r.ID,
		SeasonID:   r.SeasonID,
		Tier:       season.Tier(r.Tier),
		Matchday:   r.Matchday,
		HomeClubID: r.HomeClubID,
		AwayClubID: r.AwayClubID,
		HomeGoals:  r.HomeGoals,
		AwayGoals:  r.AwayGoals,
		Status:     r.Status,
		PlayedAt:   r.PlayedAt,
	}
}

const seasonColumns = `
id, efl_tier, current_matchday, total_matchdays, fixtures_generated, status, created_at, updated_at`

const fixtureColumns = `
id, season_id, efl_tier, matchday, home_club_id, away_club_id, home_goals, away_goals, status, played_at`

func (r *SeasonRepository) ActiveSeason(ctx context.Context, tier season.Tier) (season.Season, bool, error) {
	const query = `SELECT ` + seasonColumns + ` FROM seasons WHERE efl_tier = $1 AND status = 'active'`

	var row seasonRow
	if err := r.db.GetContext(ctx, &row, query, string(tier)); err != nil {
		if isNotFound(err) {
			return season.Season{}, false, nil
		}
		return season.Season{}, false, crerr.Wrap(err, "get active season")
	}

	return row.toDomain(), true, nil
}

func (r *SeasonRepository) CreateSeason(ctx context.Context, tier season.Tier, now time.Time) (season.Season, error) {
	const query = `
INSERT INTO seasons (id, efl_tier, current_matchday, total_matchdays, fixtures_generated, status, created_at, updated_at)
VALUES ($1, $2, 1, $3, FALSE, 'active', $4, $4)
RETURNING ` + seasonColumns

	var row seasonRow
	if err := r.db.GetContext(ctx, &row, query, uuid.NewString(), string(tier), season.TotalMatchdays, now); err != nil {
		return season.Season{}, crerr.Wrap(err, "create season")
	}

	return row.toDomain(), nil
}

func (r *SeasonRepository) CompleteSeason(ctx context.Context, seasonID string, now time.Time) error {
	const query = `
UPDATE seasons
SET status = 'completed', updated_at = $2
WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, seasonID, now); err != nil {
		return crerr.Wrap(err, "complete season")
	}

	return nil
}

func (r *SeasonRepository) DeactivateAll(ctx context.Context, now time.Time) error {
	const query = `
UPDATE seasons
SET status = 'completed', updated_at = $1
WHERE status = 'active'`

	if _, err := r.db.ExecContext(ctx, query, now); err != nil {
		return crerr.Wrap(err, "deactivate seasons")
	}

	return nil
}

func (r *SeasonRepository) ListActiveSeasons(ctx context.Context) ([]season.Season, error) {
	const query = `SELECT ` + seasonColumns + ` FROM seasons WHERE status = 'active' ORDER BY efl_tier`

	var rows []seasonRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, crerr.Wrap(err, "list active seasons")
	}

	seasons := make([]season.Season, 0, len(rows))
	for _, row := range rows {
		seasons = append(seasons, row.toDomain())
	}

	return seasons, nil
}

func (r *SeasonRepository) EnsureProgress(ctx context.Context, seasonID string) (season.Progress, error) {
	const query = `
INSERT INTO season_progress (season_id, current_matchday)
VALUES ($1, 1)
ON CONFLICT (season_id) DO UPDATE SET season_id = EXCLUDED.season_id
RETURNING season_id, current_matchday, updated_at`

	var row struct {
		SeasonID        string    `db:"season_id"`
		CurrentMatchday int       `db:"current_matchday"`
		UpdatedAt       time.Time `db:"updated_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, seasonID); err != nil {
		return season.Progress{}, crerr.Wrap(err, "ensure season progress")
	}

	return season.Progress{
		SeasonID:        row.SeasonID,
		CurrentMatchday: row.CurrentMatchday,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// AdvanceMatchday moves both the authoritative cursor and the season
// mirror. Called only after fixtures and standings are confirmed.
func (r *SeasonRepository) AdvanceMatchday(ctx context.Context, seasonID string, next int, now time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE season_progress SET current_matchday = $2, updated_at = $3 WHERE season_id = $1`,
			seasonID, next, now,
		); err != nil {
			return crerr.Wrap(err, "advance progress cursor")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE seasons SET current_matchday = $2, updated_at = $3 WHERE id = $1`,
			seasonID, next, now,
		); err != nil {
			return crerr.Wrap(err, "advance season matchday")
		}
		return nil
	})
}

func (r *SeasonRepository) MarkFixturesGenerated(ctx context.Context, seasonID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE seasons SET fixtures_generated = TRUE, updated_at = NOW() WHERE id = $1`, seasonID,
	); err != nil {
		return crerr.Wrap(err, "mark fixtures generated")
	}
	return nil
}

func (r *SeasonRepository) ListClubs(ctx context.Context, tier season.Tier) ([]season.Club, error) {
	const query = `SELECT id, name, efl_tier FROM clubs WHERE efl_tier = $1 ORDER BY id`

	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"name"`
		Tier string `db:"efl_tier"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, string(tier)); err != nil {
		return nil, crerr.Wrap(err, "list clubs")
	}

	clubs := make([]season.Club, 0, len(rows))
	for _, row := range rows {
		clubs = append(clubs, season.Club{ID: row.ID, Name: row.Name, Tier: season.Tier(row.Tier)})
	}

	return clubs, nil
}

func (r *SeasonRepository) FixturesByMatchday(ctx context.Context, seasonID string, matchday int) ([]season.Fixture, error) {
	const query = `
SELECT ` + fixtureColumns + `
FROM fixtures
WHERE season_id = $1 AND matchday = $2
ORDER BY home_club_id`

	var rows []fixtureRow
	if err := r.db.SelectContext(ctx, &rows, query, seasonID, matchday); err != nil {
		return nil, crerr.Wrap(err, "list fixtures by matchday")
	}

	fixtures := make([]season.Fixture, 0, len(rows))
	for _, row := range rows {
		fixtures = append(fixtures, row.toDomain())
	}

	return fixtures, nil
}

func (r *SeasonRepository) ListFixtures(ctx context.Context, seasonID string, matchday *int, playedOnly bool) ([]season.Fixture, error) {
	query := `SELECT ` + fixtureColumns + ` FROM fixtures WHERE season_id = $1`
	args := []any{seasonID}

	if matchday != nil {
		query += ` AND matchday = $2`
		args = append(args, *matchday)
	}
	if playedOnly {
		query += ` AND played_at IS NOT NULL`
	}
	query += ` ORDER BY matchday, home_club_id`

	var rows []fixtureRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, crerr.Wrap(err, "list fixtures")
	}

	fixtures := make([]season.Fixture, 0, len(rows))
	for _, row := range rows {
		fixtures = append(fixtures, row.toDomain())
	}

	return fixtures, nil
}

func (r *SeasonRepository) InsertFixture(ctx context.Context, f season.Fixture) error {
	const query = `
INSERT INTO fixtures (id, season_id, efl_tier, matchday, home_club_id, away_club_id, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (season_id, matchday, home_club_id) DO NOTHING`

	fixtureID := f.ID
	if fixtureID == "" {
		fixtureID = uuid.NewString()
	}

	if _, err := r.db.ExecContext(ctx, query,
		fixtureID, f.SeasonID, string(f.Tier), f.Matchday, f.HomeClubID, f.AwayClubID, season.FixtureStatusUpcoming,
	); err != nil {
		return crerr.Wrap(err, "insert fixture")
	}

	return nil
}

func (r *SeasonRepository) RecordResult(ctx context.Context, res season.Result) error {
	const query = `
UPDATE fixtures
SET home_goals = $2, away_goals = $3, status = $4, played_at = $5
WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query,
		res.FixtureID, res.HomeGoals, res.AwayGoals, season.FixtureStatusPlayed, res.PlayedAt,
	); err != nil {
		return crerr.Wrap(err, "record fixture result")
	}

	return nil
}

func (r *SeasonRepository) TeamSeasons(ctx context.Context, seasonID string) ([]season.TeamSeason, error) {
	const query = `
SELECT ts.season_id, ts.club_id, c.name AS club_name, ts.played, ts.won, ts.drawn, ts.lost,
       ts.goals_for, ts.goals_against, ts.goal_difference, ts.points
FROM team_seasons ts
JOIN clubs c ON c.id = ts.club_id
WHERE ts.season_id = $1`

	var rows []struct {
		SeasonID       string `db:"season_id"`
		ClubID         string `db:"club_id"`
		ClubName       string `db:"club_name"`
		Played         int    `db:"played"`
		Won            int    `db:"won"`
		Drawn          int    `db:"drawn"`
		Lost           int    `db:"lost"`
		GoalsFor       int    `db:"goals_for"`
		GoalsAgainst   int    `db:"goals_against"`
		GoalDifference int    `db:"goal_difference"`
		Points         int    `db:"points"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, seasonID); err != nil {
		return nil, crerr.Wrap(err, "list team seasons")
	}

	out := make([]season.TeamSeason, 0, len(rows))
	for _, row := range rows {
		out = append(out, season.TeamSeason{
			SeasonID:       row.SeasonID,
			ClubID:         row.ClubID,
			ClubName:       row.ClubName,
			Played:         row.Played,
			Won:            row.Won,
			Drawn:          row.Drawn,
			Lost:           row.Lost,
			GoalsFor:       row.GoalsFor,
			GoalsAgainst:   row.GoalsAgainst,
			GoalDifference: row.GoalDifference,
			Points:         row.Points,
		})
	}

	return out, nil
}

func (r *SeasonRepository) UpsertTeamSeason(ctx context.Context, row season.TeamSeason) error {
	const query = `
INSERT INTO team_seasons (season_id, club_id, played, won, drawn, lost, goals_for, goals_against, goal_difference, points)
VALUES (:season_id, :club_id, :played, :won, :drawn, :lost, :goals_for, :goals_against, :goal_difference, :points)
ON CONFLICT (season_id, club_id) DO UPDATE SET
    played = EXCLUDED.played,
    won = EXCLUDED.won,
    drawn = EXCLUDED.drawn,
    lost = EXCLUDED.lost,
    goals_for = EXCLUDED.goals_for,
    goals_against = EXCLUDED.goals_against,
    goal_difference = EXCLUDED.goal_difference,
    points = EXCLUDED.points,
    updated_at = NOW()`

	args := map[string]any{
		"season_id":       row.SeasonID,
		"club_id":         row.ClubID,
		"played":          row.Played,
		"won":             row.Won,
		"drawn":           row.Drawn,
		"lost":            row.Lost,
		"goals_for":       row.GoalsFor,
		"goals_against":   row.GoalsAgainst,
		"goal_difference": row.GoalDifference,
		"points":          row.Points,
	}
	if _, err := r.db.NamedExecContext(ctx, query, args); err != nil {
		return crerr.Wrap(err, "upsert team season")
	}

	return nil
}
