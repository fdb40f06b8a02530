package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gafferhq/brain/internal/domain/squad"
	"github.com/gafferhq/brain/internal/platform/cache"
)

const (
	squadLeaderboardDefaultLimit = 50
	squadLeaderboardMaxLimit     = 100
	squadSearchDefaultLimit      = 20
	squadSearchMaxLimit          = 50

	squadCachePrefix = "squads:"
)

// CreateSquadInput is the validated squad creation payload.
type CreateSquadInput struct {
	Name        string
	Tag         string
	Description string
	Privacy     string
}

// JoinResult distinguishes a direct join from a queued request.
type JoinResult struct {
	Member  squad.Member
	Request squad.JoinRequest
	Queued  bool
}

type SquadService struct {
	squadRepo squad.Repository
	cache     *cache.Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewSquadService wires the squad flows. A nil cache disables read
// caching entirely.
func NewSquadService(squadRepo squad.Repository, store *cache.Store, logger *slog.Logger) *SquadService {
	if logger == nil {
		logger = slog.Default()
	}

	return &SquadService{
		squadRepo: squadRepo,
		cache:     store,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SquadService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.DeletePrefix(ctx, squadCachePrefix)
	}
}

func (s *SquadService) Create(ctx context.Context, userID string, input CreateSquadInput) (squad.Squad, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.Create")
	defer span.End()

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return squad.Squad{}, fmt.Errorf("%w: squad name is required", ErrInvalidInput)
	}
	if len(input.Name) > 60 {
		return squad.Squad{}, fmt.Errorf("%w: squad name must be at most 60 characters", ErrInvalidInput)
	}

	tag, err := squad.SanitizeTag(input.Tag)
	if err != nil {
		return squad.Squad{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	privacy := squad.PrivacyOpen
	if strings.TrimSpace(input.Privacy) != "" {
		privacy = squad.Privacy(strings.ToLower(strings.TrimSpace(input.Privacy)))
		if !squad.ValidPrivacy(privacy) {
			return squad.Squad{}, fmt.Errorf("%w: privacy must be open, request or closed", ErrInvalidInput)
		}
	}

	created, err := s.squadRepo.CreateSquad(ctx, squad.NewSquad{
		Name:         input.Name,
		Tag:          tag,
		Description:  strings.TrimSpace(input.Description),
		LeaderUserID: userID,
		Privacy:      privacy,
	}, s.now().UTC())
	if err != nil {
		return squad.Squad{}, fmt.Errorf("create squad: %w", err)
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "squad created",
		slog.String("squad_id", created.ID),
		slog.String("leader", userID),
		slog.String("privacy", string(created.Privacy)),
	)

	return created, nil
}

func (s *SquadService) Join(ctx context.Context, squadID, userID string) (squad.Member, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.Join")
	defer span.End()

	squadID = strings.TrimSpace(squadID)
	if squadID == "" {
		return squad.Member{}, fmt.Errorf("%w: squad id is required", ErrInvalidInput)
	}

	member, err := s.squadRepo.JoinOpen(ctx, squadID, userID, s.now().UTC())
	if err != nil {
		return squad.Member{}, fmt.Errorf("join squad: %w", err)
	}

	s.invalidate(ctx)

	return member, nil
}

// RequestJoin queues a join request on request-only squads and degrades
// to a direct join on open ones. Closed squads take no requests at all.
func (s *SquadService) RequestJoin(ctx context.Context, squadID, userID string) (JoinResult, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.RequestJoin")
	defer span.End()

	squadID = strings.TrimSpace(squadID)
	if squadID == "" {
		return JoinResult{}, fmt.Errorf("%w: squad id is required", ErrInvalidInput)
	}

	target, exists, err := s.squadRepo.GetSquad(ctx, squadID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("get squad: %w", err)
	}
	if !exists {
		return JoinResult{}, fmt.Errorf("%w: squad=%s", ErrNotFound, squadID)
	}

	if target.Privacy == squad.PrivacyOpen {
		member, err := s.squadRepo.JoinOpen(ctx, squadID, userID, s.now().UTC())
		if err != nil {
			return JoinResult{}, fmt.Errorf("join squad: %w", err)
		}
		s.invalidate(ctx)
		return JoinResult{Member: member}, nil
	}
	if target.Privacy == squad.PrivacyClosed {
		return JoinResult{}, fmt.Errorf("request join: %w", squad.ErrSquadClosed)
	}

	request, err := s.squadRepo.CreateJoinRequest(ctx, squadID, userID, s.now().UTC())
	if err != nil {
		return JoinResult{}, fmt.Errorf("create join request: %w", err)
	}

	return JoinResult{Request: request, Queued: true}, nil
}

func (s *SquadService) ResolveRequest(ctx context.Context, requestID, resolverID, action string) (squad.ResolveOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.ResolveRequest")
	defer span.End()

	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return squad.ResolveOutcome{}, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}

	var approve bool
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "approve":
		approve = true
	case "reject":
	default:
		return squad.ResolveOutcome{}, fmt.Errorf("%w: action must be approve or reject", ErrInvalidInput)
	}

	outcome, err := s.squadRepo.ResolveJoinRequest(ctx, requestID, resolverID, approve, s.now().UTC())
	if err != nil {
		return squad.ResolveOutcome{}, fmt.Errorf("resolve join request: %w", err)
	}

	if outcome.Request.Status == squad.RequestApproved {
		s.invalidate(ctx)
	}

	return outcome, nil
}

func (s *SquadService) Leave(ctx context.Context, userID string) error {
	ctx, span := startUsecaseSpan(ctx, "SquadService.Leave")
	defer span.End()

	if err := s.squadRepo.Leave(ctx, userID, s.now().UTC()); err != nil {
		return fmt.Errorf("leave squad: %w", err)
	}

	s.invalidate(ctx)

	return nil
}

func (s *SquadService) UpgradeFacility(ctx context.Context, squadID, userID, facilityType string) (squad.UpgradeOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.UpgradeFacility")
	defer span.End()

	squadID = strings.TrimSpace(squadID)
	if squadID == "" {
		return squad.UpgradeOutcome{}, fmt.Errorf("%w: squad id is required", ErrInvalidInput)
	}

	ft := squad.FacilityType(strings.ToLower(strings.TrimSpace(facilityType)))
	if !squad.ValidFacility(ft) {
		return squad.UpgradeOutcome{}, fmt.Errorf("%w: facility_type must be one of training_equipment, spa, analysis_room, medical_center", ErrInvalidInput)
	}

	outcome, err := s.squadRepo.UpgradeFacility(ctx, squadID, userID, ft, s.now().UTC())
	if err != nil {
		return squad.UpgradeOutcome{}, fmt.Errorf("upgrade facility: %w", err)
	}

	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "facility upgraded",
		slog.String("squad_id", squadID),
		slog.String("facility", string(outcome.FacilityType)),
		slog.Int("new_level", outcome.NewLevel),
		slog.Int("cost", outcome.Cost),
	)

	return outcome, nil
}

func (s *SquadService) SetMemberRole(ctx context.Context, squadID, leaderID, targetUserID, rawRole string) error {
	ctx, span := startUsecaseSpan(ctx, "SquadService.SetMemberRole")
	defer span.End()

	squadID = strings.TrimSpace(squadID)
	targetUserID = strings.TrimSpace(targetUserID)
	if squadID == "" || targetUserID == "" {
		return fmt.Errorf("%w: squad id and target user id are required", ErrInvalidInput)
	}

	role := squad.Role(strings.ToLower(strings.TrimSpace(rawRole)))
	switch role {
	case squad.RoleCoLeader, squad.RoleMember:
	default:
		return fmt.Errorf("%w: role must be co_leader or member", ErrInvalidInput)
	}

	if err := s.squadRepo.SetMemberRole(ctx, squadID, leaderID, targetUserID, role); err != nil {
		return fmt.Errorf("set member role: %w", err)
	}

	return nil
}

// Mine resolves the caller's active squad profile, if any.
func (s *SquadService) Mine(ctx context.Context, userID string) (squad.Profile, bool, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.Mine")
	defer span.End()

	member, exists, err := s.squadRepo.ActiveMembership(ctx, userID)
	if err != nil {
		return squad.Profile{}, false, fmt.Errorf("get membership: %w", err)
	}
	if !exists {
		return squad.Profile{}, false, nil
	}

	profile, found, err := s.squadRepo.Profile(ctx, member.SquadID)
	if err != nil {
		return squad.Profile{}, false, fmt.Errorf("get squad profile: %w", err)
	}

	return profile, found, nil
}

func (s *SquadService) Profile(ctx context.Context, squadID string) (squad.Profile, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.Profile")
	defer span.End()

	squadID = strings.TrimSpace(squadID)
	if squadID == "" {
		return squad.Profile{}, fmt.Errorf("%w: squad id is required", ErrInvalidInput)
	}

	profile, exists, err := s.squadRepo.Profile(ctx, squadID)
	if err != nil {
		return squad.Profile{}, fmt.Errorf("get squad profile: %w", err)
	}
	if !exists {
		return squad.Profile{}, fmt.Errorf("%w: squad=%s", ErrNotFound, squadID)
	}

	return profile, nil
}

// PendingRequests is leader/co-leader only.
func (s *SquadService) PendingRequests(ctx context.Context, squadID, callerID string) ([]squad.JoinRequest, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.PendingRequests")
	defer span.End()

	squadID = strings.TrimSpace(squadID)
	if squadID == "" {
		return nil, fmt.Errorf("%w: squad id is required", ErrInvalidInput)
	}

	member, exists, err := s.squadRepo.ActiveMembership(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if !exists || member.SquadID != squadID || !member.Role.CanManageRequests() {
		return nil, fmt.Errorf("%w: leader or co-leader role required", ErrForbidden)
	}

	requests, err := s.squadRepo.PendingRequests(ctx, squadID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	return requests, nil
}

func (s *SquadService) Leaderboard(ctx context.Context, limit int) ([]squad.Squad, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.Leaderboard")
	defer span.End()

	if limit <= 0 {
		limit = squadLeaderboardDefaultLimit
	}
	if limit > squadLeaderboardMaxLimit {
		limit = squadLeaderboardMaxLimit
	}

	if s.cache == nil {
		return s.squadRepo.Leaderboard(ctx, limit)
	}

	key := fmt.Sprintf("%sleaderboard:%d", squadCachePrefix, limit)
	value, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		squads, err := s.squadRepo.Leaderboard(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("squad leaderboard: %w", err)
		}
		return squads, nil
	})
	if err != nil {
		return nil, err
	}

	return value.([]squad.Squad), nil
}

func (s *SquadService) Search(ctx context.Context, query string, limit int) ([]squad.Squad, error) {
	ctx, span := startUsecaseSpan(ctx, "SquadService.Search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = squadSearchDefaultLimit
	}
	if limit > squadSearchMaxLimit {
		limit = squadSearchMaxLimit
	}

	if s.cache == nil {
		return s.squadRepo.Search(ctx, query, limit)
	}

	key := fmt.Sprintf("%ssearch:%s:%d", squadCachePrefix, strings.ToLower(query), limit)
	value, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		squads, err := s.squadRepo.Search(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("search squads: %w", err)
		}
		return squads, nil
	})
	if err != nil {
		return nil, err
	}

	return value.([]squad.Squad), nil
}
