package career

import (
	"context"
	"time"
)

// NewPlayer is the registration payload pushed by the game server.
type NewPlayer struct {
	PlayerID      string
	UserID        string
	DisplayName   string
	OverallRating int
	CurrentLeague League
	StartedAt     time.Time
}

// ProgressUpdate carries optional rating/league changes; nil means leave
// the field untouched.
type ProgressUpdate struct {
	OverallRating *int
	CurrentLeague *League
}

// CompletionOutcome reports one run of the completion pipeline.
// AlreadyCompleted is not an error: concurrent completers race on the
// player row lock and the completion unique constraint, and the loser
// observes the winner's result.
type CompletionOutcome struct {
	AlreadyCompleted bool
	PlayerID         string
	UserID           string
	DaysToPremier    int
	SquadID          string
	SquadPointAwarded bool
}

// Repository persists players, completions and coach stats. Completion
// is a single atomic unit: player freeze, completion insert, stats
// upsert and squad point award commit or roll back together.
type Repository interface {
	CreatePlayer(ctx context.Context, p NewPlayer) (Player, error)
	GetPlayer(ctx context.Context, playerID string) (Player, bool, error)
	UpdateProgress(ctx context.Context, playerID string, upd ProgressUpdate) (Player, bool, error)
	ListActive(ctx context.Context) ([]Player, error)
	PromoteBatch(ctx context.Context, playerIDs []string, from, to League) (int, error)
	CompleteCareer(ctx context.Context, playerID string, now time.Time) (CompletionOutcome, error)
	CoachStats(ctx context.Context, userID string) (CoachStats, bool, error)
}
