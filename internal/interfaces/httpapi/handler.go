package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/gafferhq/brain/internal/usecase"
)

type Handler struct {
	careerService      *usecase.CareerService
	sweepService       *usecase.SweepService
	matchdayService    *usecase.MatchdayService
	squadService       *usecase.SquadService
	groupService       *usecase.GroupService
	leaderboardService *usecase.LeaderboardService
	health             HealthInfo
	logger             *slog.Logger
	validator          *validator.Validate
}

// HealthInfo is the static portion of the health payload plus the
// storage probe.
type HealthInfo struct {
	Service string
	Version string
	Modules []string
	Auth    map[string]bool
	PingDB  func(ctx context.Context) error
}

func NewHandler(
	careerService *usecase.CareerService,
	sweepService *usecase.SweepService,
	matchdayService *usecase.MatchdayService,
	squadService *usecase.SquadService,
	groupService *usecase.GroupService,
	leaderboardService *usecase.LeaderboardService,
	health HealthInfo,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		careerService:      careerService,
		sweepService:       sweepService,
		matchdayService:    matchdayService,
		squadService:       squadService,
		groupService:       groupService,
		leaderboardService: leaderboardService,
		health:             health,
		logger:             logger,
		validator:          validator.New(),
	}
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

func (h *Handler) validateRequest(req any) error {
	if err := h.validator.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}

// queryInt parses an optional integer query parameter; absence returns
// (nil, nil).
func queryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", usecase.ErrInvalidInput, name)
	}

	return &value, nil
}
