package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gafferhq/brain/internal/domain/career"
)

// RegisterPlayerInput is the payload of the game-server registration
// call. Rating and league fall back to career defaults when omitted.
type RegisterPlayerInput struct {
	PlayerID      string
	UserID        string
	DisplayName   string
	OverallRating *int
	CurrentLeague *string
}

// ProgressInput is the HMAC-authenticated rating/league push.
type ProgressInput struct {
	PlayerID      string
	UserID        string
	OverallRating *int
	CurrentLeague *string
}

type CareerService struct {
	careerRepo career.Repository
	logger     *slog.Logger
	now        func() time.Time
}

func NewCareerService(careerRepo career.Repository, logger *slog.Logger) *CareerService {
	if logger == nil {
		logger = slog.Default()
	}

	return &CareerService{
		careerRepo: careerRepo,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *CareerService) RegisterPlayer(ctx context.Context, input RegisterPlayerInput) (career.Player, error) {
	ctx, span := startUsecaseSpan(ctx, "CareerService.RegisterPlayer")
	defer span.End()

	input.PlayerID = strings.TrimSpace(input.PlayerID)
	input.UserID = strings.TrimSpace(input.UserID)
	if input.PlayerID == "" {
		return career.Player{}, fmt.Errorf("%w: player_id is required", ErrInvalidInput)
	}
	if input.UserID == "" {
		return career.Player{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	rating := career.DefaultRating
	if input.OverallRating != nil {
		rating = *input.OverallRating
	}
	if rating < 0 || rating > 99 {
		return career.Player{}, fmt.Errorf("%w: overall_rating must be between 0 and 99", ErrInvalidInput)
	}

	league := career.LeagueTwo
	if input.CurrentLeague != nil {
		league = career.League(strings.ToLower(strings.TrimSpace(*input.CurrentLeague)))
		if !career.ValidLeague(league) {
			return career.Player{}, fmt.Errorf("%w: unknown league %q", ErrInvalidInput, *input.CurrentLeague)
		}
	}

	player, err := s.careerRepo.CreatePlayer(ctx, career.NewPlayer{
		PlayerID:      input.PlayerID,
		UserID:        input.UserID,
		DisplayName:   strings.TrimSpace(input.DisplayName),
		OverallRating: rating,
		CurrentLeague: league,
		StartedAt:     s.now().UTC(),
	})
	if err != nil {
		return career.Player{}, fmt.Errorf("create player: %w", err)
	}

	s.logger.InfoContext(ctx, "player registered",
		slog.String("player_id", player.ID),
		slog.String("user_id", player.UserID),
		slog.String("league", string(player.CurrentLeague)),
	)

	return player, nil
}

// GetPlayer is owner-only: callers can read their own players and
// nobody else's. A foreign player reads as not found.
func (s *CareerService) GetPlayer(ctx context.Context, callerUserID, playerID string) (career.Player, error) {
	ctx, span := startUsecaseSpan(ctx, "CareerService.GetPlayer")
	defer span.End()

	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return career.Player{}, fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}

	player, exists, err := s.careerRepo.GetPlayer(ctx, playerID)
	if err != nil {
		return career.Player{}, fmt.Errorf("get player: %w", err)
	}
	if !exists || player.UserID != callerUserID {
		return career.Player{}, fmt.Errorf("%w: player=%s", ErrNotFound, playerID)
	}

	return player, nil
}

// PlayerWithStats pairs the owner read with the coach's aggregate
// stats. Stats are nil when the coach has no row yet.
func (s *CareerService) PlayerWithStats(ctx context.Context, callerUserID, playerID string) (career.Player, *career.CoachStats, error) {
	ctx, span := startUsecaseSpan(ctx, "CareerService.PlayerWithStats")
	defer span.End()

	player, err := s.GetPlayer(ctx, callerUserID, playerID)
	if err != nil {
		return career.Player{}, nil, err
	}

	stats, exists, err := s.careerRepo.CoachStats(ctx, player.UserID)
	if err != nil {
		return career.Player{}, nil, fmt.Errorf("get coach stats: %w", err)
	}
	if !exists {
		return player, nil, nil
	}

	return player, &stats, nil
}

func (s *CareerService) PushProgress(ctx context.Context, input ProgressInput) (career.Player, error) {
	ctx, span := startUsecaseSpan(ctx, "CareerService.PushProgress")
	defer span.End()

	input.PlayerID = strings.TrimSpace(input.PlayerID)
	input.UserID = strings.TrimSpace(input.UserID)
	if input.PlayerID == "" {
		return career.Player{}, fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}
	if input.UserID == "" {
		return career.Player{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if input.OverallRating == nil && input.CurrentLeague == nil {
		return career.Player{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}

	upd := career.ProgressUpdate{OverallRating: input.OverallRating}
	if input.OverallRating != nil && (*input.OverallRating < 0 || *input.OverallRating > 99) {
		return career.Player{}, fmt.Errorf("%w: overall_rating must be between 0 and 99", ErrInvalidInput)
	}
	if input.CurrentLeague != nil {
		league := career.League(strings.ToLower(strings.TrimSpace(*input.CurrentLeague)))
		if !career.ValidLeague(league) {
			return career.Player{}, fmt.Errorf("%w: unknown league %q", ErrInvalidInput, *input.CurrentLeague)
		}
		upd.CurrentLeague = &league
	}

	player, exists, err := s.careerRepo.GetPlayer(ctx, input.PlayerID)
	if err != nil {
		return career.Player{}, fmt.Errorf("get player: %w", err)
	}
	if !exists || player.UserID != input.UserID {
		return career.Player{}, fmt.Errorf("%w: player=%s", ErrNotFound, input.PlayerID)
	}
	if player.CareerStatus == career.StatusCompleted {
		// Pushes race the sweep; a post-completion push is dropped
		// silently and the frozen player is returned untouched.
		return player, nil
	}

	updated, ok, err := s.careerRepo.UpdateProgress(ctx, input.PlayerID, upd)
	if err != nil {
		return career.Player{}, fmt.Errorf("update progress: %w", err)
	}
	if !ok {
		// Completed between the read and the write; frozen either way.
		frozen, _, err := s.careerRepo.GetPlayer(ctx, input.PlayerID)
		if err != nil {
			return career.Player{}, fmt.Errorf("get frozen player: %w", err)
		}
		return frozen, nil
	}

	return updated, nil
}

// CompleteCareer is the owner-triggered manual completion. Repeats are
// idempotent successes carrying AlreadyCompleted.
func (s *CareerService) CompleteCareer(ctx context.Context, callerUserID, playerID string) (career.CompletionOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "CareerService.CompleteCareer")
	defer span.End()

	player, err := s.GetPlayer(ctx, callerUserID, playerID)
	if err != nil {
		return career.CompletionOutcome{}, err
	}

	outcome, err := s.careerRepo.CompleteCareer(ctx, player.ID, s.now().UTC())
	if err != nil {
		return career.CompletionOutcome{}, fmt.Errorf("complete career: %w", err)
	}

	if !outcome.AlreadyCompleted {
		s.logger.InfoContext(ctx, "career completed",
			slog.String("player_id", outcome.PlayerID),
			slog.String("user_id", outcome.UserID),
			slog.Int("days_to_premier", outcome.DaysToPremier),
			slog.Bool("squad_point_awarded", outcome.SquadPointAwarded),
		)
	}

	return outcome, nil
}
