package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gafferhq/brain/internal/domain/career"
	"github.com/gafferhq/brain/internal/domain/sweep"
	"github.com/gafferhq/brain/internal/infrastructure/repository/memory"
)

// sweepDay is a UTC instant whose day number is divisible by four.
func sweepDay(t *testing.T) time.Time {
	t.Helper()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for !sweep.Scheduled(sweep.UTCDay(base)) {
		base = base.Add(24 * time.Hour)
	}

	return base
}

func newSweepFixture(t *testing.T) (*SweepService, *memory.CareerRepository, *memory.SweepRepository) {
	t.Helper()

	careerRepo := memory.NewCareerRepository()
	sweepRepo := memory.NewSweepRepository()
	svc := NewSweepService(sweepRepo, careerRepo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return svc, careerRepo, sweepRepo
}

func seedPlayer(t *testing.T, repo *memory.CareerRepository, playerID, userID string, rating int, league career.League) {
	t.Helper()

	_, err := repo.CreatePlayer(context.Background(), career.NewPlayer{
		PlayerID:      playerID,
		UserID:        userID,
		DisplayName:   userID,
		OverallRating: rating,
		CurrentLeague: league,
		StartedAt:     time.Now().UTC().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed player %s: %v", playerID, err)
	}
}

func TestSweepPromotesAndCompletes(t *testing.T) {
	svc, careerRepo, _ := newSweepFixture(t)
	svc.now = func() time.Time { return sweepDay(t) }
	ctx := context.Background()

	seedPlayer(t, careerRepo, "a", "coach-a", 72, career.LeagueTwo)
	seedPlayer(t, careerRepo, "b", "coach-b", 88, career.Championship)
	seedPlayer(t, careerRepo, "c", "coach-c", 65, career.LeagueTwo)

	summary, err := svc.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.Executed {
		t.Fatalf("sweep not executed, reason=%s", summary.Reason)
	}
	if summary.TotalActive != 3 {
		t.Fatalf("total_active = %d, want 3", summary.TotalActive)
	}
	if summary.Promoted != 1 || summary.Completed != 1 || summary.Skipped != 1 {
		t.Fatalf("promoted/completed/skipped = %d/%d/%d, want 1/1/1",
			summary.Promoted, summary.Completed, summary.Skipped)
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", summary.Errors)
	}

	a, _, err := careerRepo.GetPlayer(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if a.CurrentLeague != career.LeagueOne {
		t.Fatalf("player a league = %s, want %s", a.CurrentLeague, career.LeagueOne)
	}

	b, _, err := careerRepo.GetPlayer(ctx, "b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if b.CareerStatus != career.StatusCompleted {
		t.Fatalf("player b status = %s, want completed", b.CareerStatus)
	}
	if summary.Completions[0].DaysToPremier < 1 {
		t.Fatalf("days_to_premier = %d, want >= 1", summary.Completions[0].DaysToPremier)
	}

	stats, ok, err := careerRepo.CoachStats(ctx, "coach-b")
	if err != nil || !ok {
		t.Fatalf("coach stats: ok=%v err=%v", ok, err)
	}
	if stats.CompletionsCount != 1 {
		t.Fatalf("completions_count = %d, want 1", stats.CompletionsCount)
	}
	if *stats.BestDaysToPremier != *stats.AvgDaysToPremier {
		t.Fatalf("best %d != avg %d after first completion", *stats.BestDaysToPremier, *stats.AvgDaysToPremier)
	}
}

func TestSweepSkipsUnscheduledDay(t *testing.T) {
	svc, careerRepo, _ := newSweepFixture(t)
	svc.now = func() time.Time { return sweepDay(t).Add(24 * time.Hour) }

	seedPlayer(t, careerRepo, "a", "coach-a", 99, career.LeagueTwo)

	summary, err := svc.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Executed {
		t.Fatal("sweep executed on an unscheduled day")
	}
	if summary.Reason != sweep.ReasonNotScheduled {
		t.Fatalf("reason = %s, want %s", summary.Reason, sweep.ReasonNotScheduled)
	}
}

func TestSweepForceOverridesSchedule(t *testing.T) {
	svc, careerRepo, _ := newSweepFixture(t)
	svc.now = func() time.Time { return sweepDay(t).Add(24 * time.Hour) }

	seedPlayer(t, careerRepo, "a", "coach-a", 99, career.LeagueTwo)

	summary, err := svc.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Executed {
		t.Fatalf("forced sweep not executed, reason=%s", summary.Reason)
	}
	if summary.Promoted != 1 {
		t.Fatalf("promoted = %d, want 1", summary.Promoted)
	}
}

func TestSweepRunsOncePerDay(t *testing.T) {
	svc, _, _ := newSweepFixture(t)
	svc.now = func() time.Time { return sweepDay(t) }
	ctx := context.Background()

	first, err := svc.Run(ctx, false)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if !first.Executed {
		t.Fatalf("first sweep not executed, reason=%s", first.Reason)
	}

	second, err := svc.Run(ctx, false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Executed {
		t.Fatal("second sweep executed on the same day")
	}
	if second.Reason != sweep.ReasonAlreadyRanToday {
		t.Fatalf("reason = %s, want %s", second.Reason, sweep.ReasonAlreadyRanToday)
	}
}

func TestSweepPromotesOnlyQualifyingLeague(t *testing.T) {
	svc, careerRepo, _ := newSweepFixture(t)
	svc.now = func() time.Time { return sweepDay(t) }

	// 72 clears league two's 70 but not league one's 78.
	seedPlayer(t, careerRepo, "low", "coach-1", 72, career.LeagueTwo)
	seedPlayer(t, careerRepo, "mid", "coach-2", 72, career.LeagueOne)

	summary, err := svc.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Promoted != 1 {
		t.Fatalf("promoted = %d, want 1", summary.Promoted)
	}
	if summary.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", summary.Skipped)
	}
	if summary.Promotions[0].PlayerID != "low" {
		t.Fatalf("promoted %s, want low", summary.Promotions[0].PlayerID)
	}
}

func TestSweepAwardsSquadPointOnCompletion(t *testing.T) {
	svc, careerRepo, _ := newSweepFixture(t)
	svc.now = func() time.Time { return sweepDay(t) }
	ctx := context.Background()

	squadRepo := memory.NewSquadRepository()
	careerRepo.LinkSquads(squadRepo)

	created, err := squadRepo.CreateSquad(ctx, squadFixture("coach-b"), time.Now().UTC())
	if err != nil {
		t.Fatalf("create squad: %v", err)
	}

	seedPlayer(t, careerRepo, "b", "coach-b", 90, career.Championship)

	summary, err := svc.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 1 {
		t.Fatalf("completed = %d, want 1", summary.Completed)
	}
	if !summary.Completions[0].SquadPointAwarded {
		t.Fatal("squad point not awarded")
	}

	after, _, err := squadRepo.GetSquad(ctx, created.ID)
	if err != nil {
		t.Fatalf("get squad: %v", err)
	}
	if after.TotalPoints != 1 || after.UnspentPoints != 1 {
		t.Fatalf("squad points = %d/%d, want 1/1", after.TotalPoints, after.UnspentPoints)
	}
}
