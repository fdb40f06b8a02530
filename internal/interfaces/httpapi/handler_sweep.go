package httpapi

import (
	"net/http"
	"time"

	"github.com/gafferhq/brain/internal/domain/sweep"
)

type runSweepRequest struct {
	Force bool `json:"force"`
}

type sweepStateDTO struct {
	LastSweepUTCDay *int64     `json:"last_sweep_utc_day"`
	LastSweepAt     *time.Time `json:"last_sweep_at"`
	RunCount        int        `json:"run_count"`
	TodayUTCDay     int64      `json:"today_utc_day"`
	ScheduledToday  bool       `json:"scheduled_today"`
}

func (h *Handler) SweepStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SweepStatus")
	defer span.End()

	state, err := h.sweepService.Status(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	today := sweep.UTCDay(time.Now().UTC())
	writeOK(ctx, w, http.StatusOK, map[string]any{
		"sweep": sweepStateDTO{
			LastSweepUTCDay: state.LastSweepUTCDay,
			LastSweepAt:     state.LastSweepAt,
			RunCount:        state.RunCount,
			TodayUTCDay:     today,
			ScheduledToday:  sweep.Scheduled(today),
		},
	})
}

func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunSweep")
	defer span.End()

	var req runSweepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	summary, err := h.sweepService.Run(ctx, req.Force)
	if err != nil {
		h.logger.ErrorContext(ctx, "sweep run failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"summary": summary})
}
