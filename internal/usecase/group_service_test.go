package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gafferhq/brain/internal/domain/career"
	"github.com/gafferhq/brain/internal/domain/group"
	"github.com/gafferhq/brain/internal/infrastructure/repository/memory"
)

// fixedCodeGenerator returns queued codes in order, simulating invite
// code collisions.
type fixedCodeGenerator struct {
	codes []string
	calls int
}

func (g *fixedCodeGenerator) NewID() (string, error) {
	return "fixed-id", nil
}

func (g *fixedCodeGenerator) NewCode(length int) (string, error) {
	if g.calls >= len(g.codes) {
		return "", fmt.Errorf("no more codes")
	}
	code := g.codes[g.calls]
	g.calls++
	if len(code) != length {
		return "", fmt.Errorf("queued code %q has wrong length", code)
	}
	return code, nil
}

func newGroupService(t *testing.T, gen *fixedCodeGenerator) (*GroupService, *memory.GroupRepository, *memory.CareerRepository) {
	t.Helper()

	groupRepo := memory.NewGroupRepository()
	careerRepo := memory.NewCareerRepository()
	boardRepo := memory.NewLeaderboardRepository(careerRepo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var svc *GroupService
	if gen != nil {
		svc = NewGroupService(groupRepo, boardRepo, gen, logger)
	} else {
		svc = NewGroupService(groupRepo, boardRepo, nil, logger)
	}

	return svc, groupRepo, careerRepo
}

func TestCreateGroupGeneratesInviteCode(t *testing.T) {
	svc, _, _ := newGroupService(t, nil)

	created, err := svc.Create(context.Background(), "u1", "Sunday Five")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created.InviteCode) != group.InviteCodeLength {
		t.Fatalf("invite code %q length = %d, want %d", created.InviteCode, len(created.InviteCode), group.InviteCodeLength)
	}

	m, ok, err := svc.groupRepo.Membership(context.Background(), created.ID, "u1")
	if err != nil || !ok {
		t.Fatalf("creator membership: ok=%v err=%v", ok, err)
	}
	if m.Role != group.RoleAdmin {
		t.Fatalf("creator role = %s, want admin", m.Role)
	}
}

func TestCreateGroupRetriesOnInviteCodeCollision(t *testing.T) {
	gen := &fixedCodeGenerator{codes: []string{"AAAAAA", "AAAAAA", "BBBBBB"}}
	svc, _, _ := newGroupService(t, gen)
	ctx := context.Background()

	first, err := svc.Create(ctx, "u1", "First")
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if first.InviteCode != "AAAAAA" {
		t.Fatalf("first code = %s, want AAAAAA", first.InviteCode)
	}

	second, err := svc.Create(ctx, "u2", "Second")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.InviteCode != "BBBBBB" {
		t.Fatalf("second code = %s, want BBBBBB", second.InviteCode)
	}
	if gen.calls != 3 {
		t.Fatalf("generator calls = %d, want 3", gen.calls)
	}
}

func TestJoinGroupIsIdempotentAndCaseInsensitive(t *testing.T) {
	svc, _, _ := newGroupService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "u1", "Group")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	joined, err := svc.Join(ctx, "u2", "  "+lower(created.InviteCode)+" ")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.AlreadyMember {
		t.Fatal("fresh join reported already_member")
	}

	again, err := svc.Join(ctx, "u2", created.InviteCode)
	if err != nil {
		t.Fatalf("repeat Join: %v", err)
	}
	if !again.AlreadyMember {
		t.Fatal("repeat join should report already_member")
	}
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + 32
		}
	}
	return string(out)
}

func TestJoinGroupUnknownCode(t *testing.T) {
	svc, _, _ := newGroupService(t, nil)

	_, err := svc.Join(context.Background(), "u1", "NOPE99")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGroupLeaderboardMembersOnly(t *testing.T) {
	svc, _, careerRepo := newGroupService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "u1", "Group")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Join(ctx, "u2", created.InviteCode); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// u2 has a completion; u1 has none and ranks below.
	seedCompletion(t, careerRepo, "p1", "u2")

	board, err := svc.Leaderboard(ctx, created.ID, "u1")
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(board.Entries))
	}
	if board.Entries[0].UserID != "u2" {
		t.Fatalf("top entry = %s, want u2", board.Entries[0].UserID)
	}

	if _, err := svc.Leaderboard(ctx, created.ID, "outsider"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider err = %v, want ErrForbidden", err)
	}
}

func seedCompletion(t *testing.T, repo *memory.CareerRepository, playerID, userID string) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.CreatePlayer(ctx, career.NewPlayer{
		PlayerID:      playerID,
		UserID:        userID,
		OverallRating: 90,
		CurrentLeague: career.Championship,
		StartedAt:     time.Now().UTC().Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed player: %v", err)
	}
	if _, err := repo.CompleteCareer(ctx, playerID, time.Now().UTC()); err != nil {
		t.Fatalf("seed completion: %v", err)
	}
}

func TestLeaveGroup(t *testing.T) {
	svc, _, _ := newGroupService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, "u1", "Group")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Join(ctx, "u2", created.InviteCode); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := svc.Leave(ctx, created.ID, "u2"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if err := svc.Leave(ctx, created.ID, "u2"); !errors.Is(err, group.ErrNotMember) {
		t.Fatalf("second leave err = %v, want ErrNotMember", err)
	}
}
