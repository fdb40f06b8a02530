package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gafferhq/brain/internal/domain/squad"
	"github.com/gafferhq/brain/internal/usecase"
)

type createSquadRequest struct {
	Name        string `json:"name" validate:"required,max=60"`
	Tag         string `json:"tag" validate:"omitempty,max=16"`
	Description string `json:"description" validate:"omitempty,max=280"`
	Privacy     string `json:"privacy" validate:"omitempty,oneof=open request closed"`
}

type resolveRequestRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

type upgradeFacilityRequest struct {
	FacilityType string `json:"facility_type" validate:"required,oneof=training_equipment spa analysis_room medical_center"`
}

type setRoleRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=co_leader member"`
}

type squadDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Tag           string    `json:"tag,omitempty"`
	Description   string    `json:"description,omitempty"`
	LeaderUserID  string    `json:"leader_user_id"`
	Privacy       string    `json:"privacy"`
	TotalPoints   int       `json:"total_points"`
	UnspentPoints int       `json:"unspent_points"`
	Level         int       `json:"level"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func squadToDTO(s squad.Squad) squadDTO {
	return squadDTO{
		ID:            s.ID,
		Name:          s.Name,
		Tag:           s.Tag,
		Description:   s.Description,
		LeaderUserID:  s.LeaderUserID,
		Privacy:       string(s.Privacy),
		TotalPoints:   s.TotalPoints,
		UnspentPoints: s.UnspentPoints,
		Level:         s.Level,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func squadsToDTO(squads []squad.Squad) []squadDTO {
	out := make([]squadDTO, 0, len(squads))
	for _, s := range squads {
		out = append(out, squadToDTO(s))
	}
	return out
}

type squadMemberDTO struct {
	UserID            string    `json:"user_id"`
	Role              string    `json:"role"`
	PointsContributed int       `json:"points_contributed"`
	JoinedAt          time.Time `json:"joined_at"`
}

type squadProfileDTO struct {
	Squad      squadDTO             `json:"squad"`
	Members    []squadMemberDTO     `json:"members"`
	Facilities map[string]int       `json:"facilities"`
	Events     []squadPointEventDTO `json:"recent_events"`
}

type squadPointEventDTO struct {
	UserID    string    `json:"user_id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func profileToDTO(p squad.Profile) squadProfileDTO {
	dto := squadProfileDTO{
		Squad:      squadToDTO(p.Squad),
		Members:    make([]squadMemberDTO, 0, len(p.Members)),
		Facilities: make(map[string]int, len(p.Facilities)),
		Events:     make([]squadPointEventDTO, 0, len(p.RecentEvents)),
	}
	for _, m := range p.Members {
		dto.Members = append(dto.Members, squadMemberDTO{
			UserID:            m.UserID,
			Role:              string(m.Role),
			PointsContributed: m.PointsContributed,
			JoinedAt:          m.JoinedAt,
		})
	}
	for _, f := range p.Facilities {
		dto.Facilities[string(f.Type)] = f.Level
	}
	for _, e := range p.RecentEvents {
		dto.Events = append(dto.Events, squadPointEventDTO{
			UserID:    e.UserID,
			Points:    e.Points,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	return dto
}

type joinRequestDTO struct {
	ID         string     `json:"id"`
	SquadID    string     `json:"squad_id"`
	UserID     string     `json:"user_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy *string    `json:"resolved_by,omitempty"`
}

func joinRequestToDTO(req squad.JoinRequest) joinRequestDTO {
	return joinRequestDTO{
		ID:         req.ID,
		SquadID:    req.SquadID,
		UserID:     req.UserID,
		Status:     string(req.Status),
		CreatedAt:  req.CreatedAt,
		ResolvedAt: req.ResolvedAt,
		ResolvedBy: req.ResolvedBy,
	}
}

func (h *Handler) CreateSquad(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateSquad")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req createSquadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	created, err := h.squadService.Create(ctx, principal.UserID, usecase.CreateSquadInput{
		Name:        req.Name,
		Tag:         req.Tag,
		Description: req.Description,
		Privacy:     req.Privacy,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create squad failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"squad": squadToDTO(created)})
}

func (h *Handler) JoinSquad(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.JoinSquad")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	member, err := h.squadService.Join(ctx, r.PathValue("id"), principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"squad_id": member.SquadID,
		"role":     string(member.Role),
	})
}

func (h *Handler) RequestJoinSquad(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RequestJoinSquad")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	result, err := h.squadService.RequestJoin(ctx, r.PathValue("id"), principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	if result.Queued {
		writeOK(ctx, w, http.StatusOK, map[string]any{
			"queued":  true,
			"request": joinRequestToDTO(result.Request),
		})
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"queued":   false,
		"squad_id": result.Member.SquadID,
		"role":     string(result.Member.Role),
	})
}

func (h *Handler) ResolveSquadRequest(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ResolveSquadRequest")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req resolveRequestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	outcome, err := h.squadService.ResolveRequest(ctx, r.PathValue("id"), principal.UserID, req.Action)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	payload := map[string]any{
		"request":       joinRequestToDTO(outcome.Request),
		"auto_rejected": outcome.AutoRejected,
	}
	if outcome.AutoRejected {
		payload["message"] = "applicant already belongs to a squad"
	}

	writeOK(ctx, w, http.StatusOK, payload)
}

func (h *Handler) LeaveSquad(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LeaveSquad")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	if err := h.squadService.Leave(ctx, principal.UserID); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"left": true})
}

func (h *Handler) UpgradeSquadFacility(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UpgradeSquadFacility")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req upgradeFacilityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	outcome, err := h.squadService.UpgradeFacility(ctx, r.PathValue("id"), principal.UserID, req.FacilityType)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"facility_type":  string(outcome.FacilityType),
		"new_level":      outcome.NewLevel,
		"cost":           outcome.Cost,
		"unspent_points": outcome.UnspentPoints,
		"squad_level":    outcome.SquadLevel,
	})
}

func (h *Handler) SetSquadMemberRole(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SetSquadMemberRole")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req setRoleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.squadService.SetMemberRole(ctx, r.PathValue("id"), principal.UserID, req.UserID, req.Role); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"user_id": req.UserID,
		"role":    req.Role,
	})
}

func (h *Handler) MySquad(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.MySquad")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	profile, exists, err := h.squadService.Mine(ctx, principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if !exists {
		writeOK(ctx, w, http.StatusOK, map[string]any{"squad": nil})
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"profile": profileToDTO(profile)})
}

func (h *Handler) SquadProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SquadProfile")
	defer span.End()

	profile, err := h.squadService.Profile(ctx, r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"profile": profileToDTO(profile)})
}

func (h *Handler) SquadRequests(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SquadRequests")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	requests, err := h.squadService.PendingRequests(ctx, r.PathValue("id"), principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	dtos := make([]joinRequestDTO, 0, len(requests))
	for _, req := range requests {
		dtos = append(dtos, joinRequestToDTO(req))
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"requests": dtos})
}

func (h *Handler) SquadLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SquadLeaderboard")
	defer span.End()

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: limit must be an integer", usecase.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	squads, err := h.squadService.Leaderboard(ctx, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"squads": squadsToDTO(squads)})
}

func (h *Handler) SearchSquads(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SearchSquads")
	defer span.End()

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: limit must be an integer", usecase.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	squads, err := h.squadService.Search(ctx, r.URL.Query().Get("query"), limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"squads": squadsToDTO(squads)})
}
