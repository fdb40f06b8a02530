package httpapi

import "net/http"

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storage := "ok"
	if h.health.PingDB != nil {
		if err := h.health.PingDB(ctx); err != nil {
			h.logger.WarnContext(ctx, "storage probe failed", "error", err)
			storage = "unreachable"
		}
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"service": h.health.Service,
		"version": h.health.Version,
		"modules": h.health.Modules,
		"auth":    h.health.Auth,
		"storage": storage,
	})
}
