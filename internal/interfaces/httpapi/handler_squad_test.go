package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sonic "github.com/bytedance/sonic"

	"github.com/gafferhq/brain/internal/domain/user"
	"github.com/gafferhq/brain/internal/infrastructure/repository/memory"
	"github.com/gafferhq/brain/internal/usecase"
)

func newSquadHandler(t *testing.T) (*Handler, *usecase.SquadService) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := usecase.NewSquadService(memory.NewSquadRepository(), nil, logger)
	h := NewHandler(nil, nil, nil, svc, nil, nil, HealthInfo{}, logger)

	return h, svc
}

func TestResolveSquadRequestReportsAutoReject(t *testing.T) {
	h, svc := newSquadHandler(t)
	ctx := context.Background()

	requestSquad, err := svc.Create(ctx, "leader-1", usecase.CreateSquadInput{Name: "Request Squad", Privacy: "request"})
	if err != nil {
		t.Fatalf("create request squad: %v", err)
	}
	openSquad, err := svc.Create(ctx, "leader-2", usecase.CreateSquadInput{Name: "Open Squad"})
	if err != nil {
		t.Fatalf("create open squad: %v", err)
	}

	queued, err := svc.RequestJoin(ctx, requestSquad.ID, "applicant-1")
	if err != nil {
		t.Fatalf("RequestJoin: %v", err)
	}

	// The applicant joins elsewhere before the leader gets to the
	// request; the approval must come back as an auto-reject.
	if _, err := svc.Join(ctx, openSquad.ID, "applicant-1"); err != nil {
		t.Fatalf("Join open squad: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost,
		"/api/squads/requests/"+queued.Request.ID+"/resolve",
		strings.NewReader(`{"action":"approve"}`))
	req.SetPathValue("id", queued.Request.ID)
	req = req.WithContext(withPrincipal(req.Context(), user.Principal{UserID: "leader-1"}))
	rec := httptest.NewRecorder()

	h.ResolveSquadRequest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		OK           bool   `json:"ok"`
		AutoRejected bool   `json:"auto_rejected"`
		Message      string `json:"message"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.OK {
		t.Fatal("response is not ok")
	}
	if !payload.AutoRejected {
		t.Fatal("approval of a taken applicant was not auto-rejected")
	}
	if !strings.Contains(payload.Message, "already") {
		t.Fatalf("message = %q, want an already-in-a-squad explanation", payload.Message)
	}
}
