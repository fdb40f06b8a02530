package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gafferhq/brain/internal/domain/squad"
	"github.com/gafferhq/brain/internal/infrastructure/repository/memory"
	"github.com/gafferhq/brain/internal/platform/cache"
)

func squadFixture(leader string) squad.NewSquad {
	return squad.NewSquad{
		Name:         "Test Squad",
		LeaderUserID: leader,
		Privacy:      squad.PrivacyOpen,
	}
}

func newSquadService(t *testing.T) (*SquadService, *memory.SquadRepository) {
	t.Helper()

	repo := memory.NewSquadRepository()
	svc := NewSquadService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return svc, repo
}

func TestCreateSquadSanitizesTag(t *testing.T) {
	svc, _ := newSquadService(t)

	created, err := svc.Create(context.Background(), "leader-1", CreateSquadInput{
		Name: "The Gaffers",
		Tag:  " gaf ",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if created.Tag != "GAF" {
		t.Fatalf("tag = %q, want GAF", created.Tag)
	}
	if created.Privacy != squad.PrivacyOpen {
		t.Fatalf("privacy = %s, want open", created.Privacy)
	}
	if created.Level != 1 {
		t.Fatalf("level = %d, want 1", created.Level)
	}
}

func TestCreateSquadRejectsBadTag(t *testing.T) {
	svc, _ := newSquadService(t)

	_, err := svc.Create(context.Background(), "leader-1", CreateSquadInput{
		Name: "The Gaffers",
		Tag:  "TOOLONGTAG",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateSquadOnePerUser(t *testing.T) {
	svc, _ := newSquadService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "First"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Second"})
	if !errors.Is(err, squad.ErrAlreadyInSquad) {
		t.Fatalf("err = %v, want ErrAlreadyInSquad", err)
	}
}

func TestRequestJoinOpenSquadJoinsDirectly(t *testing.T) {
	svc, _ := newSquadService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Open Squad"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := svc.RequestJoin(ctx, created.ID, "member-1")
	if err != nil {
		t.Fatalf("RequestJoin: %v", err)
	}
	if result.Queued {
		t.Fatal("open squad join was queued")
	}
	if result.Member.Role != squad.RoleMember {
		t.Fatalf("role = %s, want member", result.Member.Role)
	}
}

func TestRequestJoinRejectsClosedSquad(t *testing.T) {
	svc, _ := newSquadService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Closed Squad", Privacy: "closed"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.RequestJoin(ctx, created.ID, "member-1")
	if !errors.Is(err, squad.ErrSquadClosed) {
		t.Fatalf("err = %v, want ErrSquadClosed", err)
	}

	requests, err := svc.PendingRequests(ctx, created.ID, "leader-1")
	if err != nil {
		t.Fatalf("PendingRequests: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("closed squad holds %d pending requests, want 0", len(requests))
	}
}

func TestRequestJoinQueuesAndResolves(t *testing.T) {
	svc, _ := newSquadService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Request Squad", Privacy: "request"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := svc.RequestJoin(ctx, created.ID, "member-1")
	if err != nil {
		t.Fatalf("RequestJoin: %v", err)
	}
	if !result.Queued {
		t.Fatal("request squad join was not queued")
	}

	// Repeat returns the same pending request instead of duplicating.
	again, err := svc.RequestJoin(ctx, created.ID, "member-1")
	if err != nil {
		t.Fatalf("repeat RequestJoin: %v", err)
	}
	if again.Request.ID != result.Request.ID {
		t.Fatalf("duplicate pending request %s != %s", again.Request.ID, result.Request.ID)
	}

	outcome, err := svc.ResolveRequest(ctx, result.Request.ID, "leader-1", "approve")
	if err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}
	if outcome.Request.Status != squad.RequestApproved {
		t.Fatalf("status = %s, want approved", outcome.Request.Status)
	}

	if _, err := svc.ResolveRequest(ctx, result.Request.ID, "leader-1", "approve"); !errors.Is(err, squad.ErrRequestResolved) {
		t.Fatalf("re-resolve err = %v, want ErrRequestResolved", err)
	}
}

func TestResolveRequestAutoRejectsTakenApplicant(t *testing.T) {
	svc, _ := newSquadService(t)
	ctx := context.Background()

	requestSquad, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Request Squad", Privacy: "request"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	openSquad, err := svc.Create(ctx, "leader-2", CreateSquadInput{Name: "Open Squad"})
	if err != nil {
		t.Fatalf("Create open: %v", err)
	}

	queued, err := svc.RequestJoin(ctx, requestSquad.ID, "member-1")
	if err != nil {
		t.Fatalf("RequestJoin: %v", err)
	}

	// Applicant joins elsewhere while the request is pending.
	if _, err := svc.Join(ctx, openSquad.ID, "member-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	outcome, err := svc.ResolveRequest(ctx, queued.Request.ID, "leader-1", "approve")
	if err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}
	if !outcome.AutoRejected {
		t.Fatal("approval of a taken applicant was not auto-rejected")
	}
	if outcome.Request.Status != squad.RequestRejected {
		t.Fatalf("status = %s, want rejected", outcome.Request.Status)
	}
}

func TestLeaderMustPromoteBeforeLeaving(t *testing.T) {
	svc, _ := newSquadService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Squad"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Join(ctx, created.ID, "member-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := svc.Leave(ctx, "leader-1"); !errors.Is(err, squad.ErrPromoteFirst) {
		t.Fatalf("leave err = %v, want ErrPromoteFirst", err)
	}

	if err := svc.SetMemberRole(ctx, created.ID, "leader-1", "member-1", "co_leader"); err != nil {
		t.Fatalf("SetMemberRole: %v", err)
	}
	if err := svc.Leave(ctx, "leader-1"); err != nil {
		t.Fatalf("leave after promotion: %v", err)
	}
}

func TestUpgradeFacilityCostsAndLevels(t *testing.T) {
	svc, repo := newSquadService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Squad"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.UpgradeFacility(ctx, created.ID, "leader-1", "spa")
	if !errors.Is(err, squad.ErrInsufficientPoints) {
		t.Fatalf("broke upgrade err = %v, want ErrInsufficientPoints", err)
	}

	repo.GrantPoints(created.ID, 10)

	outcome, err := svc.UpgradeFacility(ctx, created.ID, "leader-1", "spa")
	if err != nil {
		t.Fatalf("UpgradeFacility: %v", err)
	}
	if outcome.Cost != 8 {
		t.Fatalf("cost = %d, want 8", outcome.Cost)
	}
	if outcome.NewLevel != 1 {
		t.Fatalf("new level = %d, want 1", outcome.NewLevel)
	}
	if outcome.UnspentPoints != 2 {
		t.Fatalf("unspent = %d, want 2", outcome.UnspentPoints)
	}
	if outcome.SquadLevel != 1 {
		t.Fatalf("squad level = %d, want 1", outcome.SquadLevel)
	}

	spends := repo.SpendsFor(created.ID)
	if len(spends) != 1 || spends[0].FacilityType != squad.FacilitySpa {
		t.Fatalf("spend transactions = %+v, want one spa upgrade", spends)
	}
}

func TestUpgradeFacilityRejectsPlainMember(t *testing.T) {
	svc, repo := newSquadService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Squad"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Join(ctx, created.ID, "member-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	repo.GrantPoints(created.ID, 100)

	_, err = svc.UpgradeFacility(ctx, created.ID, "member-1", "spa")
	if !errors.Is(err, squad.ErrRoleRequired) {
		t.Fatalf("err = %v, want ErrRoleRequired", err)
	}
}

func TestSquadLeaderboardUsesCache(t *testing.T) {
	repo := memory.NewSquadRepository()
	store := cache.NewStore(time.Minute)
	svc := NewSquadService(repo, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	first, err := svc.Create(ctx, "leader-1", CreateSquadInput{Name: "Alpha"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	repo.GrantPoints(first.ID, 5)

	board, err := svc.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].ID != first.ID {
		t.Fatalf("board = %+v, want squad %s", board, first.ID)
	}

	// A mutation through the service invalidates the cached board.
	if _, err := svc.Create(ctx, "leader-2", CreateSquadInput{Name: "Beta"}); err != nil {
		t.Fatalf("Create second: %v", err)
	}
	board, err = svc.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("second Leaderboard: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("board size = %d, want 2", len(board))
	}
}
