package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gafferhq/brain/internal/domain/group"
	"github.com/gafferhq/brain/internal/domain/leaderboard"
	"github.com/gafferhq/brain/internal/platform/id"
)

const inviteCodeAttempts = 5

// GroupJoinResult reports a join; existing members come back with
// AlreadyMember set instead of an error.
type GroupJoinResult struct {
	Group         group.Group
	AlreadyMember bool
}

// GroupBoard is the member-only leaderboard of one friend group.
type GroupBoard struct {
	Group   group.Group
	Entries []leaderboard.Entry
}

type GroupService struct {
	groupRepo       group.Repository
	leaderboardRepo leaderboard.Repository
	ids             id.Generator
	logger          *slog.Logger
	now             func() time.Time
}

func NewGroupService(
	groupRepo group.Repository,
	leaderboardRepo leaderboard.Repository,
	ids id.Generator,
	logger *slog.Logger,
) *GroupService {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = id.NewRandomGenerator()
	}

	return &GroupService{
		groupRepo:       groupRepo,
		leaderboardRepo: leaderboardRepo,
		ids:             ids,
		logger:          logger,
		now:             time.Now,
	}
}

// Create makes a group with a fresh invite code, retrying a handful of
// times when the random code collides.
func (s *GroupService) Create(ctx context.Context, userID, name string) (group.Group, error) {
	ctx, span := startUsecaseSpan(ctx, "GroupService.Create")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return group.Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	if len(name) > 60 {
		return group.Group{}, fmt.Errorf("%w: group name must be at most 60 characters", ErrInvalidInput)
	}

	var lastErr error
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.ids.NewCode(group.InviteCodeLength)
		if err != nil {
			return group.Group{}, fmt.Errorf("generate invite code: %w", err)
		}

		created, err := s.groupRepo.CreateGroup(ctx, group.Group{
			Name:       name,
			InviteCode: code,
			CreatedBy:  userID,
		}, s.now().UTC())
		if err == nil {
			s.logger.InfoContext(ctx, "group created",
				slog.String("group_id", created.ID),
				slog.String("created_by", userID),
			)
			return created, nil
		}
		if !errors.Is(err, group.ErrInviteCodeTaken) {
			return group.Group{}, fmt.Errorf("create group: %w", err)
		}
		lastErr = err
	}

	return group.Group{}, fmt.Errorf("create group after %d invite code attempts: %w", inviteCodeAttempts, lastErr)
}

// Join is idempotent and case-insensitive on the invite code.
func (s *GroupService) Join(ctx context.Context, userID, inviteCode string) (GroupJoinResult, error) {
	ctx, span := startUsecaseSpan(ctx, "GroupService.Join")
	defer span.End()

	if strings.TrimSpace(inviteCode) == "" {
		return GroupJoinResult{}, fmt.Errorf("%w: invite code is required", ErrInvalidInput)
	}

	g, exists, err := s.groupRepo.GetByInviteCode(ctx, inviteCode)
	if err != nil {
		return GroupJoinResult{}, fmt.Errorf("get group by invite code: %w", err)
	}
	if !exists {
		return GroupJoinResult{}, fmt.Errorf("%w: no group for that invite code", ErrNotFound)
	}

	added, err := s.groupRepo.AddMember(ctx, g.ID, userID, group.RoleMember, s.now().UTC())
	if err != nil {
		return GroupJoinResult{}, fmt.Errorf("add group member: %w", err)
	}

	return GroupJoinResult{Group: g, AlreadyMember: !added}, nil
}

func (s *GroupService) Mine(ctx context.Context, userID string) ([]group.Group, error) {
	ctx, span := startUsecaseSpan(ctx, "GroupService.Mine")
	defer span.End()

	groups, err := s.groupRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	return groups, nil
}

// Leaderboard ranks a group's members with the global comparator.
// Members without stats appear with zeroed fields at the bottom.
func (s *GroupService) Leaderboard(ctx context.Context, groupID, callerID string) (GroupBoard, error) {
	ctx, span := startUsecaseSpan(ctx, "GroupService.Leaderboard")
	defer span.End()

	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return GroupBoard{}, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}

	g, exists, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return GroupBoard{}, fmt.Errorf("get group: %w", err)
	}
	if !exists {
		return GroupBoard{}, fmt.Errorf("%w: group=%s", ErrNotFound, groupID)
	}

	if _, isMember, err := s.groupRepo.Membership(ctx, groupID, callerID); err != nil {
		return GroupBoard{}, fmt.Errorf("get membership: %w", err)
	} else if !isMember {
		return GroupBoard{}, fmt.Errorf("%w: not a member of this group", ErrForbidden)
	}

	memberIDs, err := s.groupRepo.MemberUserIDs(ctx, groupID)
	if err != nil {
		return GroupBoard{}, fmt.Errorf("list group members: %w", err)
	}

	entries, err := s.leaderboardRepo.RankUsers(ctx, memberIDs)
	if err != nil {
		return GroupBoard{}, fmt.Errorf("rank group members: %w", err)
	}

	ranked := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ranked[e.UserID] = struct{}{}
	}
	nextRank := len(entries) + 1
	for _, userID := range memberIDs {
		if _, ok := ranked[userID]; ok {
			continue
		}
		entries = append(entries, leaderboard.Entry{Rank: nextRank, UserID: userID})
		nextRank++
	}

	return GroupBoard{Group: g, Entries: entries}, nil
}

func (s *GroupService) Leave(ctx context.Context, groupID, userID string) error {
	ctx, span := startUsecaseSpan(ctx, "GroupService.Leave")
	defer span.End()

	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}

	if err := s.groupRepo.RemoveMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("leave group: %w", err)
	}

	return nil
}
