package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gafferhq/brain/internal/domain/career"
	"github.com/gafferhq/brain/internal/infrastructure/repository/memory"
)

func newCareerService(t *testing.T) (*CareerService, *memory.CareerRepository) {
	t.Helper()

	repo := memory.NewCareerRepository()
	svc := NewCareerService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return svc, repo
}

func TestRegisterPlayerDefaults(t *testing.T) {
	svc, _ := newCareerService(t)

	player, err := svc.RegisterPlayer(context.Background(), RegisterPlayerInput{
		PlayerID: "p1",
		UserID:   "u1",
	})
	if err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}

	if player.OverallRating != career.DefaultRating {
		t.Fatalf("rating = %d, want %d", player.OverallRating, career.DefaultRating)
	}
	if player.CurrentLeague != career.LeagueTwo {
		t.Fatalf("league = %s, want %s", player.CurrentLeague, career.LeagueTwo)
	}
	if player.CareerStatus != career.StatusActive {
		t.Fatalf("status = %s, want %s", player.CareerStatus, career.StatusActive)
	}
}

func TestRegisterPlayerRejectsUnknownLeague(t *testing.T) {
	svc, _ := newCareerService(t)

	bad := "premier"
	_, err := svc.RegisterPlayer(context.Background(), RegisterPlayerInput{
		PlayerID:      "p1",
		UserID:        "u1",
		CurrentLeague: &bad,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGetPlayerOwnerOnly(t *testing.T) {
	svc, _ := newCareerService(t)
	ctx := context.Background()

	if _, err := svc.RegisterPlayer(ctx, RegisterPlayerInput{PlayerID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}

	if _, err := svc.GetPlayer(ctx, "u1", "p1"); err != nil {
		t.Fatalf("owner GetPlayer: %v", err)
	}
	if _, err := svc.GetPlayer(ctx, "u2", "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign GetPlayer err = %v, want ErrNotFound", err)
	}
}

func TestPushProgressUpdatesRatingAndLeague(t *testing.T) {
	svc, _ := newCareerService(t)
	ctx := context.Background()

	if _, err := svc.RegisterPlayer(ctx, RegisterPlayerInput{PlayerID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}

	rating := 75
	league := "league_one"
	player, err := svc.PushProgress(ctx, ProgressInput{
		PlayerID:      "p1",
		UserID:        "u1",
		OverallRating: &rating,
		CurrentLeague: &league,
	})
	if err != nil {
		t.Fatalf("PushProgress: %v", err)
	}

	if player.OverallRating != 75 {
		t.Fatalf("rating = %d, want 75", player.OverallRating)
	}
	if player.CurrentLeague != career.LeagueOne {
		t.Fatalf("league = %s, want %s", player.CurrentLeague, career.LeagueOne)
	}
}

func TestPushProgressNoopsOnCompletedCareer(t *testing.T) {
	svc, _ := newCareerService(t)
	ctx := context.Background()

	if _, err := svc.RegisterPlayer(ctx, RegisterPlayerInput{PlayerID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}
	if _, err := svc.CompleteCareer(ctx, "u1", "p1"); err != nil {
		t.Fatalf("CompleteCareer: %v", err)
	}

	// Late pushes from the game server land after the freeze; they are
	// dropped without an error and the player stays untouched.
	rating := 90
	player, err := svc.PushProgress(ctx, ProgressInput{PlayerID: "p1", UserID: "u1", OverallRating: &rating})
	if err != nil {
		t.Fatalf("PushProgress after completion: %v", err)
	}
	if player.CareerStatus != career.StatusCompleted {
		t.Fatalf("status = %s, want completed", player.CareerStatus)
	}
	if player.OverallRating != career.DefaultRating {
		t.Fatalf("rating = %d, frozen player was modified", player.OverallRating)
	}
}

func TestPlayerWithStatsCarriesAggregates(t *testing.T) {
	svc, _ := newCareerService(t)
	ctx := context.Background()

	if _, err := svc.RegisterPlayer(ctx, RegisterPlayerInput{PlayerID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}

	_, stats, err := svc.PlayerWithStats(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("PlayerWithStats: %v", err)
	}
	if stats == nil || stats.CompletionsCount != 0 {
		t.Fatalf("stats before completion = %+v, want zeroed row", stats)
	}

	if _, err := svc.CompleteCareer(ctx, "u1", "p1"); err != nil {
		t.Fatalf("CompleteCareer: %v", err)
	}

	player, stats, err := svc.PlayerWithStats(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("PlayerWithStats after completion: %v", err)
	}
	if player.CareerStatus != career.StatusCompleted {
		t.Fatalf("status = %s, want completed", player.CareerStatus)
	}
	if stats == nil || stats.CompletionsCount != 1 {
		t.Fatalf("stats after completion = %+v, want one completion", stats)
	}
	if stats.BestDaysToPremier == nil {
		t.Fatal("best days should be set after a completion")
	}
}

func TestCompleteCareerIsIdempotent(t *testing.T) {
	svc, repo := newCareerService(t)
	ctx := context.Background()

	started := time.Now().UTC().Add(-10 * 24 * time.Hour)
	svc.now = func() time.Time { return started }
	if _, err := svc.RegisterPlayer(ctx, RegisterPlayerInput{PlayerID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("RegisterPlayer: %v", err)
	}

	svc.now = func() time.Time { return started.Add(10 * 24 * time.Hour) }
	first, err := svc.CompleteCareer(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("first CompleteCareer: %v", err)
	}
	if first.AlreadyCompleted {
		t.Fatal("first completion reported AlreadyCompleted")
	}
	if first.DaysToPremier != 10 {
		t.Fatalf("days = %d, want 10", first.DaysToPremier)
	}

	second, err := svc.CompleteCareer(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("second CompleteCareer: %v", err)
	}
	if !second.AlreadyCompleted {
		t.Fatal("second completion should report AlreadyCompleted")
	}

	stats, ok, err := repo.CoachStats(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("CoachStats: ok=%v err=%v", ok, err)
	}
	if stats.CompletionsCount != 1 {
		t.Fatalf("completions = %d, want 1", stats.CompletionsCount)
	}
	if stats.BestDaysToPremier == nil || *stats.BestDaysToPremier != 10 {
		t.Fatalf("best = %v, want 10", stats.BestDaysToPremier)
	}
	if stats.AvgDaysToPremier == nil || *stats.AvgDaysToPremier != 10 {
		t.Fatalf("avg = %v, want 10", stats.AvgDaysToPremier)
	}
}
