package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gafferhq/brain/internal/domain/leaderboard"
	"github.com/gafferhq/brain/internal/platform/cache"
)

const globalBoardLimit = 100

type LeaderboardService struct {
	leaderboardRepo leaderboard.Repository
	cache           *cache.Store
	logger          *slog.Logger
}

func NewLeaderboardService(leaderboardRepo leaderboard.Repository, store *cache.Store, logger *slog.Logger) *LeaderboardService {
	if logger == nil {
		logger = slog.Default()
	}

	return &LeaderboardService{
		leaderboardRepo: leaderboardRepo,
		cache:           store,
		logger:          logger,
	}
}

// Global returns the top 100 plus the caller's row. The board is cached
// per caller because the my_entry portion differs between users.
func (s *LeaderboardService) Global(ctx context.Context, userID string) (leaderboard.Board, error) {
	ctx, span := startUsecaseSpan(ctx, "LeaderboardService.Global")
	defer span.End()

	if s.cache == nil {
		return s.load(ctx, userID)
	}

	key := "leaderboard:global:" + userID
	value, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return leaderboard.Board{}, err
	}

	return value.(leaderboard.Board), nil
}

func (s *LeaderboardService) load(ctx context.Context, userID string) (leaderboard.Board, error) {
	board, err := s.leaderboardRepo.GlobalWithCaller(ctx, userID, globalBoardLimit)
	if err != nil {
		return leaderboard.Board{}, fmt.Errorf("global leaderboard: %w", err)
	}

	return board, nil
}
