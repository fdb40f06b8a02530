package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gafferhq/brain/internal/domain/group"
)

type GroupRepository struct {
	mu      sync.Mutex
	seq     int
	groups  map[string]group.Group
	members map[string]map[string]group.Member // groupID -> userID -> member
}

func NewGroupRepository() *GroupRepository {
	return &GroupRepository{
		groups:  make(map[string]group.Group),
		members: make(map[string]map[string]group.Member),
	}
}

func (r *GroupRepository) CreateGroup(_ context.Context, g group.Group, now time.Time) (group.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.groups {
		if existing.InviteCode == g.InviteCode {
			return group.Group{}, group.ErrInviteCodeTaken
		}
	}

	r.seq++
	g.ID = fmt.Sprintf("group-%d", r.seq)
	g.CreatedAt = now
	r.groups[g.ID] = g
	r.members[g.ID] = map[string]group.Member{
		g.CreatedBy: {GroupID: g.ID, UserID: g.CreatedBy, Role: group.RoleAdmin, JoinedAt: now},
	}

	return g, nil
}

func (r *GroupRepository) GetByID(_ context.Context, groupID string) (group.Group, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[groupID]
	return g, ok, nil
}

func (r *GroupRepository) GetByInviteCode(_ context.Context, code string) (group.Group, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := group.NormalizeInviteCode(code)
	for _, g := range r.groups {
		if g.InviteCode == normalized {
			return g, true, nil
		}
	}

	return group.Group{}, false, nil
}

func (r *GroupRepository) AddMember(_ context.Context, groupID, userID string, role group.Role, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser, ok := r.members[groupID]
	if !ok {
		byUser = make(map[string]group.Member)
		r.members[groupID] = byUser
	}
	if _, exists := byUser[userID]; exists {
		return false, nil
	}
	byUser[userID] = group.Member{GroupID: groupID, UserID: userID, Role: role, JoinedAt: now}

	return true, nil
}

func (r *GroupRepository) Membership(_ context.Context, groupID, userID string) (group.Member, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[groupID][userID]
	return m, ok, nil
}

func (r *GroupRepository) ListByUser(_ context.Context, userID string) ([]group.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []group.Group
	for groupID, byUser := range r.members {
		if _, ok := byUser[userID]; ok {
			out = append(out, r.groups[groupID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (r *GroupRepository) RemoveMember(_ context.Context, groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[groupID][userID]; !ok {
		return group.ErrNotMember
	}
	delete(r.members[groupID], userID)

	return nil
}

func (r *GroupRepository) MemberUserIDs(_ context.Context, groupID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var members []group.Member
	for _, m := range r.members[groupID] {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}

	return ids, nil
}
