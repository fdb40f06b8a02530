package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gafferhq/brain/internal/domain/leaderboard"
	"github.com/gafferhq/brain/internal/usecase"
)

type leaderboardEntryDTO struct {
	Rank              int    `json:"rank"`
	UserID            string `json:"user_id"`
	DisplayName       string `json:"display_name"`
	CompletionsCount  int    `json:"completions_count"`
	BestDaysToPremier *int   `json:"best_days_to_premier"`
	AvgDaysToPremier  *int   `json:"avg_days_to_premier"`
}

func entryToDTO(e leaderboard.Entry) leaderboardEntryDTO {
	return leaderboardEntryDTO{
		Rank:              e.Rank,
		UserID:            e.UserID,
		DisplayName:       e.DisplayName,
		CompletionsCount:  e.CompletionsCount,
		BestDaysToPremier: e.BestDaysToPremier,
		AvgDaysToPremier:  e.AvgDaysToPremier,
	}
}

func entriesToDTO(entries []leaderboard.Entry) []leaderboardEntryDTO {
	out := make([]leaderboardEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToDTO(e))
	}
	return out
}

func (h *Handler) GlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GlobalLeaderboard")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	board, err := h.leaderboardService.Global(ctx, principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"entries":       entriesToDTO(board.Entries),
		"my_entry":      entryToDTO(board.MyEntry),
		"total_coaches": board.TotalCoaches,
	})
}
