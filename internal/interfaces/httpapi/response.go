package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"

	"github.com/gafferhq/brain/internal/domain/career"
	"github.com/gafferhq/brain/internal/domain/group"
	"github.com/gafferhq/brain/internal/domain/squad"
	"github.com/gafferhq/brain/internal/usecase"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	ctx, span := startSpan(ctx, "httpapi.writeJSON")
	defer span.End()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

// writeOK wraps the payload fields under an ok:true envelope. The
// payload must marshal to a JSON object.
func writeOK(ctx context.Context, w http.ResponseWriter, status int, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["ok"] = true
	writeJSON(ctx, w, status, payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	status, message := mapError(err)
	writeJSON(ctx, w, status, errorBody{Error: message})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter) {
	writeJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

// Substrings that mark an error as infrastructure trouble rather than a
// caller mistake. Matched case-insensitively against the full chain.
var infraErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"context deadline exceeded",
	"ssl",
	"tls",
	"password authentication failed",
	"does not exist",
	"too many connections",
	"broken pipe",
}

func isInfraError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range infraErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// mapError turns an error chain into an HTTP status and a client-safe
// message. Domain sentinels map to instructive 4xx bodies; anything
// that smells like infrastructure becomes a generic 503.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, usecase.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, usecase.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, usecase.ErrConflict):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"

	case errors.Is(err, career.ErrPlayerNotFound),
		errors.Is(err, squad.ErrSquadNotFound),
		errors.Is(err, squad.ErrRequestNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, squad.ErrRoleRequired),
		errors.Is(err, squad.ErrLeaderOnly):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, career.ErrAlreadyCompleted),
		errors.Is(err, squad.ErrAlreadyInSquad),
		errors.Is(err, squad.ErrTagTaken),
		errors.Is(err, squad.ErrSquadNotOpen),
		errors.Is(err, squad.ErrSquadClosed),
		errors.Is(err, squad.ErrPromoteFirst),
		errors.Is(err, squad.ErrInsufficientPoints),
		errors.Is(err, squad.ErrRequestResolved),
		errors.Is(err, squad.ErrNotMember),
		errors.Is(err, group.ErrInviteCodeTaken),
		errors.Is(err, group.ErrNotMember):
		return http.StatusBadRequest, err.Error()

	case isInfraError(err):
		return http.StatusServiceUnavailable, "service temporarily unavailable"

	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
