package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gafferhq/brain/internal/domain/group"
	"github.com/gafferhq/brain/internal/usecase"
)

type createGroupRequest struct {
	Name string `json:"name" validate:"required,max=60"`
}

type joinGroupRequest struct {
	InviteCode string `json:"invite_code" validate:"required"`
}

type groupDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func groupToDTO(g group.Group) groupDTO {
	return groupDTO{
		ID:         g.ID,
		Name:       g.Name,
		InviteCode: g.InviteCode,
		CreatedBy:  g.CreatedBy,
		CreatedAt:  g.CreatedAt,
	}
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateGroup")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req createGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	created, err := h.groupService.Create(ctx, principal.UserID, req.Name)
	if err != nil {
		h.logger.WarnContext(ctx, "create group failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"group": groupToDTO(created)})
}

func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.JoinGroup")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req joinGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.groupService.Join(ctx, principal.UserID, req.InviteCode)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"group":          groupToDTO(result.Group),
		"already_member": result.AlreadyMember,
	})
}

func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.MyGroups")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	groups, err := h.groupService.Mine(ctx, principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	dtos := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		dtos = append(dtos, groupToDTO(g))
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"groups": dtos})
}

func (h *Handler) GroupLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GroupLeaderboard")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	board, err := h.groupService.Leaderboard(ctx, r.PathValue("id"), principal.UserID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{
		"group":   groupToDTO(board.Group),
		"entries": entriesToDTO(board.Entries),
	})
}

func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LeaveGroup")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	if err := h.groupService.Leave(ctx, r.PathValue("id"), principal.UserID); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOK(ctx, w, http.StatusOK, map[string]any{"left": true})
}
