package postgres

import (
	"context"

	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/gafferhq/brain/internal/domain/leaderboard"
)

type LeaderboardRepository struct {
	db *sqlx.DB
}

func NewLeaderboardRepository(db *sqlx.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// Shared comparator: most completions first, then fastest best run,
// then fastest average; nulls always last.
const rankOrder = `
completions_count DESC,
best_days_to_premier ASC NULLS LAST,
avg_days_to_premier ASC NULLS LAST,
user_id ASC`

type entryRow struct {
	Rank              int    `db:"rank"`
	UserID            string `db:"user_id"`
	DisplayName       string `db:"display_name"`
	CompletionsCount  int    `db:"completions_count"`
	BestDaysToPremier *int   `db:"best_days_to_premier"`
	AvgDaysToPremier  *int   `db:"avg_days_to_premier"`
}

func (r entryRow) toDomain() leaderboard.Entry {
	return leaderboard.Entry{
		Rank:              r.Rank,
		UserID:            r.UserID,
		DisplayName:       r.DisplayName,
		CompletionsCount:  r.CompletionsCount,
		BestDaysToPremier: r.BestDaysToPremier,
		AvgDaysToPremier:  r.AvgDaysToPremier,
	}
}

// GlobalWithCaller ranks every coach once and keeps rows inside the
// window plus the caller's own. The caller's zeroed stats row is
// upserted first so the synthetic my_entry case only covers coaches
// created mid-request by someone else.
func (r *LeaderboardRepository) GlobalWithCaller(ctx context.Context, userID string, limit int) (leaderboard.Board, error) {
	const upsertQuery = `
INSERT INTO coach_stats (user_id, display_name, completions_count, total_days_sum)
VALUES ($1, '', 0, 0)
ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, upsertQuery, userID); err != nil {
		return leaderboard.Board{}, crerr.Wrap(err, "ensure caller stats row")
	}

	const query = `
WITH ranked AS (
    SELECT user_id, display_name, completions_count, best_days_to_premier, avg_days_to_premier,
           RANK() OVER (ORDER BY ` + rankOrder + `) AS rank,
           COUNT(*) OVER () AS total
    FROM coach_stats
)
SELECT rank, user_id, display_name, completions_count, best_days_to_premier, avg_days_to_premier, total
FROM ranked
WHERE rank <= $2 OR user_id = $1
ORDER BY rank`

	var rows []struct {
		entryRow
		Total int `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return leaderboard.Board{}, crerr.Wrap(err, "rank global leaderboard")
	}

	board := leaderboard.Board{}
	for _, row := range rows {
		board.TotalCoaches = row.Total
		entry := row.entryRow.toDomain()
		if entry.UserID == userID {
			board.MyEntry = entry
		}
		if entry.Rank <= limit {
			board.Entries = append(board.Entries, entry)
		}
	}

	if board.MyEntry.UserID == "" {
		// Upsert raced with nothing to rank; synthesize the zero row.
		board.MyEntry = leaderboard.Entry{
			Rank:   board.TotalCoaches + 1,
			UserID: userID,
		}
	}

	return board, nil
}

func (r *LeaderboardRepository) RankUsers(ctx context.Context, userIDs []string) ([]leaderboard.Entry, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	const query = `
SELECT RANK() OVER (ORDER BY ` + rankOrder + `) AS rank,
       user_id, display_name, completions_count, best_days_to_premier, avg_days_to_premier
FROM coach_stats
WHERE user_id = ANY($1)
ORDER BY rank`

	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, query, playerIDArray(userIDs)); err != nil {
		return nil, crerr.Wrap(err, "rank group members")
	}

	entries := make([]leaderboard.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toDomain())
	}

	return entries, nil
}
