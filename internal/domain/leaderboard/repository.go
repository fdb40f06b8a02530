package leaderboard

import "context"

// Repository ranks coaches. GlobalWithCaller upserts a zeroed stats row
// for the caller first so their presence on the board is durable, then
// ranks everything in one windowed query.
type Repository interface {
	GlobalWithCaller(ctx context.Context, userID string, limit int) (Board, error)
	RankUsers(ctx context.Context, userIDs []string) ([]Entry, error)
}
