package httpapi

import (
	"net/http"
	"time"

	"github.com/gafferhq/brain/internal/domain/season"
)

type fixtureDTO struct {
	ID         string     `json:"id"`
	Matchday   int        `json:"matchday"`
	HomeClubID string     `json:"home_club_id"`
	AwayClubID string     `json:"away_club_id"`
	HomeGoals  *int       `json:"home_goals"`
	AwayGoals  *int       `json:"away_goals"`
	Status     string     `json:"status"`
	PlayedAt   *time.Time `json:"played_at,omitempty"`
}

func fixturesToDTO(fixtures []season.Fixture) []fixtureDTO {
	out := make([]fixtureDTO, 0, len(fixtures))
	for _, f := range fixtures {
		out = append(out, fixtureDTO{
			ID:         f.ID,
			Matchday:   f.Matchday,
			HomeClubID: f.HomeClubID,
			AwayClubID: f.AwayClubID,
			HomeGoals:  f.HomeGoals,
			AwayGoals:  f.AwayGoals,
			Status:     f.Status,
			PlayedAt:   f.PlayedAt,
		})
	}
	return out
}

type tableRowDTO struct {
	Position       int    `json:"position"`
	ClubID         string `json:"club_id"`
	ClubName       string `json:"club_name"`
	Played         int    `json:"played"`
	Won            int    `json:"won"`
	Drawn          int    `json:"drawn"`
	Lost           int    `json:"lost"`
	GoalsFor       int    `json:"goals_for"`
	GoalsAgainst   int    `json:"goals_against"`
	GoalDifference int    `json:"goal_difference"`
	Points         int    `json:"points"`
}

func (h *Handler) SimulateDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SimulateDay")
	defer span.End()

	report, err := h.matchdayService.SimulateDay(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "simulate day failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if !report.AllOK {
		status = http.StatusMultiStatus
	}
	writeOK(ctx, w, status, map[string]any{
		"all_ok":  report.AllOK,
		"results": report.Results,
	})
}

func (h *Handler) ResetSyncSeasons(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ResetSyncSeasons")
	defer span.End()

	report, err := h.matchdayService.ResetSync(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "season reset failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"seasons": report.Seasons})
}

func (h *Handler) SeasonsStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SeasonsStatus")
	defer span.End()

	seasons, err := h.matchdayService.SeasonsStatus(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"seasons": seasons})
}

func (h *Handler) ListLeagues(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListLeagues")
	defer span.End()

	leagues, err := h.matchdayService.ListLeagues(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"leagues": leagues})
}

func (h *Handler) LeagueTable(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LeagueTable")
	defer span.End()

	rows, err := h.matchdayService.Table(ctx, r.PathValue("leagueId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	table := make([]tableRowDTO, 0, len(rows))
	for i, row := range rows {
		table = append(table, tableRowDTO{
			Position:       i + 1,
			ClubID:         row.ClubID,
			ClubName:       row.ClubName,
			Played:         row.Played,
			Won:            row.Won,
			Drawn:          row.Drawn,
			Lost:           row.Lost,
			GoalsFor:       row.GoalsFor,
			GoalsAgainst:   row.GoalsAgainst,
			GoalDifference: row.GoalDifference,
			Points:         row.Points,
		})
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"table": table})
}

func (h *Handler) LeagueFixtures(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LeagueFixtures")
	defer span.End()

	matchday, err := queryInt(r, "matchday")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	fixtures, err := h.matchdayService.Fixtures(ctx, r.PathValue("leagueId"), matchday)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"fixtures": fixturesToDTO(fixtures)})
}

func (h *Handler) LeagueResults(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LeagueResults")
	defer span.End()

	matchday, err := queryInt(r, "matchday")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	results, err := h.matchdayService.Results(ctx, r.PathValue("leagueId"), matchday)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"results": fixturesToDTO(results)})
}
