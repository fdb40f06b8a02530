package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gafferhq/brain/internal/domain/career"
	"github.com/gafferhq/brain/internal/usecase"
)

type createPlayerRequest struct {
	PlayerID      string  `json:"player_id" validate:"required"`
	DisplayName   string  `json:"display_name" validate:"omitempty,max=60"`
	OverallRating *int    `json:"overall_rating" validate:"omitempty,min=0,max=99"`
	CurrentLeague *string `json:"current_league"`
}

type pushProgressRequest struct {
	UserID        string  `json:"user_id" validate:"required"`
	OverallRating *int    `json:"overall_rating" validate:"omitempty,min=0,max=99"`
	CurrentLeague *string `json:"current_league"`
}

type playerDTO struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	DisplayName       string     `json:"display_name"`
	OverallRating     int        `json:"overall_rating"`
	CurrentLeague     string     `json:"current_league"`
	CareerStatus      string     `json:"career_status"`
	CareerStartedAt   time.Time  `json:"career_started_at"`
	CareerCompletedAt *time.Time `json:"career_completed_at,omitempty"`
}

type coachStatsDTO struct {
	CompletionsCount  int  `json:"completions_count"`
	BestDaysToPremier *int `json:"best_days_to_premier"`
	AvgDaysToPremier  *int `json:"avg_days_to_premier"`
}

func coachStatsToDTO(s *career.CoachStats) *coachStatsDTO {
	if s == nil {
		return nil
	}
	return &coachStatsDTO{
		CompletionsCount:  s.CompletionsCount,
		BestDaysToPremier: s.BestDaysToPremier,
		AvgDaysToPremier:  s.AvgDaysToPremier,
	}
}

func playerToDTO(p career.Player) playerDTO {
	return playerDTO{
		ID:                p.ID,
		UserID:            p.UserID,
		DisplayName:       p.DisplayName,
		OverallRating:     p.OverallRating,
		CurrentLeague:     string(p.CurrentLeague),
		CareerStatus:      string(p.CareerStatus),
		CareerStartedAt:   p.CareerStartedAt,
		CareerCompletedAt: p.CareerCompletedAt,
	}
}

func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreatePlayer")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req createPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	player, err := h.careerService.RegisterPlayer(ctx, usecase.RegisterPlayerInput{
		PlayerID:      req.PlayerID,
		UserID:        principal.UserID,
		DisplayName:   req.DisplayName,
		OverallRating: req.OverallRating,
		CurrentLeague: req.CurrentLeague,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create player failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"player": playerToDTO(player)})
}

func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetPlayer")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	player, stats, err := h.careerService.PlayerWithStats(ctx, principal.UserID, r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"player": playerToDTO(player),
		"stats":  coachStatsToDTO(stats),
	})
}

func (h *Handler) PushPlayerProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PushPlayerProgress")
	defer span.End()

	var req pushProgressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	player, err := h.careerService.PushProgress(ctx, usecase.ProgressInput{
		PlayerID:      r.PathValue("id"),
		UserID:        req.UserID,
		OverallRating: req.OverallRating,
		CurrentLeague: req.CurrentLeague,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "progress push failed", "player_id", r.PathValue("id"), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"player": playerToDTO(player)})
}

func (h *Handler) CompletePlayer(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CompletePlayer")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	outcome, err := h.careerService.CompleteCareer(ctx, principal.UserID, r.PathValue("id"))
	if err != nil {
		h.logger.WarnContext(ctx, "complete career failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	payload := map[string]any{
		"player_id":           outcome.PlayerID,
		"already_completed":   outcome.AlreadyCompleted,
		"squad_point_awarded": outcome.SquadPointAwarded,
	}
	if !outcome.AlreadyCompleted {
		payload["days_to_premier"] = outcome.DaysToPremier
	}
	if outcome.SquadID != "" {
		payload["squad_id"] = outcome.SquadID
	}

	writeOK(ctx, w, http.StatusOK, payload)
}
