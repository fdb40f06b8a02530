package season

import (
	"context"
	"time"
)

// Result is one simulated final score waiting to be persisted.
type Result struct {
	FixtureID string
	HomeGoals int
	AwayGoals int
	PlayedAt  time.Time
}

// Repository persists seasons, the per-season matchday cursor, fixtures
// and standings. Matchday advance is intentionally not lock-guarded at
// this layer; the simulator's verification pass owns correctness there.
type Repository interface {
	ActiveSeason(ctx context.Context, tier Tier) (Season, bool, error)
	CreateSeason(ctx context.Context, tier Tier, now time.Time) (Season, error)
	CompleteSeason(ctx context.Context, seasonID string, now time.Time) error
	DeactivateAll(ctx context.Context, now time.Time) error
	ListActiveSeasons(ctx context.Context) ([]Season, error)

	EnsureProgress(ctx context.Context, seasonID string) (Progress, error)
	AdvanceMatchday(ctx context.Context, seasonID string, next int, now time.Time) error
	MarkFixturesGenerated(ctx context.Context, seasonID string) error

	ListClubs(ctx context.Context, tier Tier) ([]Club, error)
	FixturesByMatchday(ctx context.Context, seasonID string, matchday int) ([]Fixture, error)
	ListFixtures(ctx context.Context, seasonID string, matchday *int, playedOnly bool) ([]Fixture, error)
	InsertFixture(ctx context.Context, f Fixture) error
	RecordResult(ctx context.Context, res Result) error

	TeamSeasons(ctx context.Context, seasonID string) ([]TeamSeason, error)
	UpsertTeamSeason(ctx context.Context, row TeamSeason) error
}
