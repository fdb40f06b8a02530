package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/gafferhq/brain/internal/domain/leaderboard"
)

type leaderboardRepoMock struct {
	mock.Mock
}

func (m *leaderboardRepoMock) GlobalWithCaller(ctx context.Context, userID string, limit int) (leaderboard.Board, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).(leaderboard.Board), args.Error(1)
}

func (m *leaderboardRepoMock) RankUsers(ctx context.Context, userIDs []string) ([]leaderboard.Entry, error) {
	args := m.Called(ctx, userIDs)
	entries, _ := args.Get(0).([]leaderboard.Entry)
	return entries, args.Error(1)
}

func TestGlobalPassesCallerAndLimit(t *testing.T) {
	t.Parallel()

	repo := &leaderboardRepoMock{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewLeaderboardService(repo, nil, logger)

	want := leaderboard.Board{
		Entries:      []leaderboard.Entry{{Rank: 1, UserID: "u1", CompletionsCount: 3}},
		MyEntry:      leaderboard.Entry{Rank: 1, UserID: "u1", CompletionsCount: 3},
		TotalCoaches: 1,
	}
	repo.
		On("GlobalWithCaller", mock.Anything, "u1", globalBoardLimit).
		Return(want, nil).
		Once()

	got, err := svc.Global(context.Background(), "u1")
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if got.MyEntry.UserID != "u1" || got.TotalCoaches != 1 {
		t.Fatalf("unexpected board: %+v", got)
	}
	repo.AssertExpectations(t)
}

func TestGlobalPropagatesRepositoryFailure(t *testing.T) {
	t.Parallel()

	repo := &leaderboardRepoMock{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewLeaderboardService(repo, nil, logger)

	repoErr := errors.New("pq: connection reset")
	repo.
		On("GlobalWithCaller", mock.Anything, "u1", globalBoardLimit).
		Return(leaderboard.Board{}, repoErr).
		Once()

	_, err := svc.Global(context.Background(), "u1")
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
	repo.AssertExpectations(t)
}
