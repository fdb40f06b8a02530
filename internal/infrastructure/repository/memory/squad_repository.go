package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gafferhq/brain/internal/domain/squad"
)

type SquadRepository struct {
	mu         sync.Mutex
	seq        int
	squads     map[string]squad.Squad
	members    map[string]map[string]squad.Member // squadID -> userID -> member
	requests   map[string]squad.JoinRequest
	facilities map[string]map[squad.FacilityType]int
	events     map[string][]squad.PointEvent
	spends     map[string][]squad.SpendTransaction
}

func NewSquadRepository() *SquadRepository {
	return &SquadRepository{
		squads:     make(map[string]squad.Squad),
		members:    make(map[string]map[string]squad.Member),
		requests:   make(map[string]squad.JoinRequest),
		facilities: make(map[string]map[squad.FacilityType]int),
		events:     make(map[string][]squad.PointEvent),
		spends:     make(map[string][]squad.SpendTransaction),
	}
}

func (r *SquadRepository) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *SquadRepository) activeMembershipLocked(userID string) (squad.Member, bool) {
	for _, byUser := range r.members {
		if m, ok := byUser[userID]; ok && m.Status == squad.MemberActive {
			return m, true
		}
	}
	return squad.Member{}, false
}

func (r *SquadRepository) insertActiveMemberLocked(squadID, userID string, role squad.Role, now time.Time) (squad.Member, error) {
	if _, taken := r.activeMembershipLocked(userID); taken {
		return squad.Member{}, squad.ErrAlreadyInSquad
	}

	m := squad.Member{
		SquadID:  squadID,
		UserID:   userID,
		Role:     role,
		Status:   squad.MemberActive,
		JoinedAt: now,
	}
	if prior, ok := r.members[squadID][userID]; ok {
		m.PointsContributed = prior.PointsContributed
	}
	if r.members[squadID] == nil {
		r.members[squadID] = make(map[string]squad.Member)
	}
	r.members[squadID][userID] = m

	return m, nil
}

func (r *SquadRepository) touchLocked(squadID string, now time.Time) {
	s := r.squads[squadID]
	s.UpdatedAt = now
	r.squads[squadID] = s
}

func (r *SquadRepository) CreateSquad(_ context.Context, n squad.NewSquad, now time.Time) (squad.Squad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.Tag != "" {
		for _, existing := range r.squads {
			if existing.Tag == n.Tag {
				return squad.Squad{}, squad.ErrTagTaken
			}
		}
	}
	if _, taken := r.activeMembershipLocked(n.LeaderUserID); taken {
		return squad.Squad{}, squad.ErrAlreadyInSquad
	}

	s := squad.Squad{
		ID:           r.nextID("squad"),
		Name:         n.Name,
		Tag:          n.Tag,
		Description:  n.Description,
		LeaderUserID: n.LeaderUserID,
		Privacy:      n.Privacy,
		Level:        1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.squads[s.ID] = s
	r.members[s.ID] = make(map[string]squad.Member)
	if _, err := r.insertActiveMemberLocked(s.ID, n.LeaderUserID, squad.RoleLeader, now); err != nil {
		delete(r.squads, s.ID)
		return squad.Squad{}, err
	}

	levels := make(map[squad.FacilityType]int, len(squad.AllFacilities))
	for _, ft := range squad.AllFacilities {
		levels[ft] = 0
	}
	r.facilities[s.ID] = levels

	return s, nil
}

func (r *SquadRepository) GetSquad(_ context.Context, squadID string) (squad.Squad, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.squads[squadID]
	return s, ok, nil
}

func (r *SquadRepository) Profile(_ context.Context, squadID string) (squad.Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.squads[squadID]
	if !ok {
		return squad.Profile{}, false, nil
	}

	p := squad.Profile{Squad: s}
	for _, m := range r.members[squadID] {
		if m.Status == squad.MemberActive {
			p.Members = append(p.Members, m)
		}
	}
	sort.Slice(p.Members, func(i, j int) bool { return p.Members[i].JoinedAt.Before(p.Members[j].JoinedAt) })

	for _, ft := range squad.AllFacilities {
		p.Facilities = append(p.Facilities, squad.Facility{
			SquadID: squadID,
			Type:    ft,
			Level:   r.facilities[squadID][ft],
		})
	}

	events := r.events[squadID]
	for i := len(events) - 1; i >= 0 && len(p.RecentEvents) < 20; i-- {
		p.RecentEvents = append(p.RecentEvents, events[i])
	}

	return p, true, nil
}

func (r *SquadRepository) ActiveMembership(_ context.Context, userID string) (squad.Member, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.activeMembershipLocked(userID)
	return m, ok, nil
}

func (r *SquadRepository) JoinOpen(_ context.Context, squadID, userID string, now time.Time) (squad.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.squads[squadID]
	if !ok {
		return squad.Member{}, squad.ErrSquadNotFound
	}
	switch s.Privacy {
	case squad.PrivacyOpen:
	case squad.PrivacyClosed:
		return squad.Member{}, squad.ErrSquadClosed
	default:
		return squad.Member{}, squad.ErrSquadNotOpen
	}

	m, err := r.insertActiveMemberLocked(squadID, userID, squad.RoleMember, now)
	if err != nil {
		return squad.Member{}, err
	}
	r.touchLocked(squadID, now)

	return m, nil
}

func (r *SquadRepository) CreateJoinRequest(_ context.Context, squadID, userID string, now time.Time) (squad.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.squads[squadID]
	if !ok {
		return squad.JoinRequest{}, squad.ErrSquadNotFound
	}
	if s.Privacy == squad.PrivacyClosed {
		return squad.JoinRequest{}, squad.ErrSquadClosed
	}
	if _, taken := r.activeMembershipLocked(userID); taken {
		return squad.JoinRequest{}, squad.ErrAlreadyInSquad
	}

	for _, req := range r.requests {
		if req.SquadID == squadID && req.UserID == userID && req.Status == squad.RequestPending {
			return req, nil
		}
	}

	req := squad.JoinRequest{
		ID:        r.nextID("req"),
		SquadID:   squadID,
		UserID:    userID,
		Status:    squad.RequestPending,
		CreatedAt: now,
	}
	r.requests[req.ID] = req

	return req, nil
}

func (r *SquadRepository) GetJoinRequest(_ context.Context, requestID string) (squad.JoinRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	return req, ok, nil
}

func (r *SquadRepository) PendingRequests(_ context.Context, squadID string) ([]squad.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []squad.JoinRequest
	for _, req := range r.requests {
		if req.SquadID == squadID && req.Status == squad.RequestPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (r *SquadRepository) memberRoleLocked(squadID, userID string) (squad.Role, bool) {
	m, ok := r.members[squadID][userID]
	if !ok || m.Status != squad.MemberActive {
		return "", false
	}
	return m.Role, true
}

func (r *SquadRepository) ResolveJoinRequest(_ context.Context, requestID, resolverID string, approve bool, now time.Time) (squad.ResolveOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok {
		return squad.ResolveOutcome{}, squad.ErrRequestNotFound
	}
	if req.Status != squad.RequestPending {
		return squad.ResolveOutcome{}, squad.ErrRequestResolved
	}

	role, isMember := r.memberRoleLocked(req.SquadID, resolverID)
	if !isMember || !role.CanManageRequests() {
		return squad.ResolveOutcome{}, squad.ErrRoleRequired
	}

	outcome := squad.ResolveOutcome{}
	status := squad.RequestRejected
	if approve {
		if _, taken := r.activeMembershipLocked(req.UserID); taken {
			outcome.AutoRejected = true
		} else {
			if _, err := r.insertActiveMemberLocked(req.SquadID, req.UserID, squad.RoleMember, now); err != nil {
				return squad.ResolveOutcome{}, err
			}
			r.touchLocked(req.SquadID, now)
			status = squad.RequestApproved
		}
	}

	req.Status = status
	resolvedAt := now
	req.ResolvedAt = &resolvedAt
	req.ResolvedBy = &resolverID
	r.requests[requestID] = req
	outcome.Request = req

	return outcome, nil
}

func (r *SquadRepository) Leave(_ context.Context, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.activeMembershipLocked(userID)
	if !ok {
		return squad.ErrNotMember
	}

	if m.Role == squad.RoleLeader {
		others, officers := 0, 0
		for _, other := range r.members[m.SquadID] {
			if other.UserID == userID || other.Status != squad.MemberActive {
				continue
			}
			others++
			if other.Role.CanManageRequests() {
				officers++
			}
		}
		if others > 0 && officers == 0 {
			return squad.ErrPromoteFirst
		}
	}

	m.Status = squad.MemberInactive
	r.members[m.SquadID][userID] = m
	r.touchLocked(m.SquadID, now)

	return nil
}

func (r *SquadRepository) UpgradeFacility(_ context.Context, squadID, userID string, ft squad.FacilityType, now time.Time) (squad.UpgradeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.squads[squadID]
	if !ok {
		return squad.UpgradeOutcome{}, squad.ErrSquadNotFound
	}
	role, isMember := r.memberRoleLocked(squadID, userID)
	if !isMember || !role.CanManageRequests() {
		return squad.UpgradeOutcome{}, squad.ErrRoleRequired
	}

	level := r.facilities[squadID][ft]
	cost := squad.UpgradeCost(ft, level)
	if s.UnspentPoints < cost {
		return squad.UpgradeOutcome{}, squad.ErrInsufficientPoints
	}

	r.facilities[squadID][ft] = level + 1

	sum := 0
	for _, lvl := range r.facilities[squadID] {
		sum += lvl
	}

	s.UnspentPoints -= cost
	s.Level = 1 + sum/4
	s.UpdatedAt = now
	r.squads[squadID] = s

	r.spends[squadID] = append(r.spends[squadID], squad.SpendTransaction{
		ID:           r.nextID("spend"),
		SquadID:      squadID,
		UserID:       userID,
		FacilityType: ft,
		Cost:         cost,
		NewLevel:     level + 1,
		CreatedAt:    now,
	})

	return squad.UpgradeOutcome{
		FacilityType:  ft,
		NewLevel:      level + 1,
		Cost:          cost,
		UnspentPoints: s.UnspentPoints,
		SquadLevel:    s.Level,
	}, nil
}

func (r *SquadRepository) SetMemberRole(_ context.Context, squadID, leaderID, targetUserID string, role squad.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.squads[squadID]; !ok {
		return squad.ErrSquadNotFound
	}
	leaderRole, isMember := r.memberRoleLocked(squadID, leaderID)
	if !isMember || leaderRole != squad.RoleLeader {
		return squad.ErrLeaderOnly
	}

	m, ok := r.members[squadID][targetUserID]
	if !ok || m.Status != squad.MemberActive {
		return squad.ErrNotMember
	}
	m.Role = role
	r.members[squadID][targetUserID] = m

	return nil
}

func (r *SquadRepository) Leaderboard(_ context.Context, limit int) ([]squad.Squad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]squad.Squad, 0, len(r.squads))
	for _, s := range r.squads {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.Level != b.Level {
			return a.Level > b.Level
		}
		return a.UpdatedAt.Before(b.UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *SquadRepository) Search(_ context.Context, query string, limit int) ([]squad.Squad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(query)
	var out []squad.Squad
	for _, s := range r.squads {
		if strings.Contains(strings.ToLower(s.Name), needle) || strings.Contains(strings.ToLower(s.Tag), needle) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPoints > out[j].TotalPoints })
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// awardPoint credits one squad point to the user's active squad, if any.
// Called with the career repository's completion flow.
func (r *SquadRepository) awardPoint(userID string, now time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.activeMembershipLocked(userID)
	if !ok {
		return "", false
	}

	s := r.squads[m.SquadID]
	s.TotalPoints++
	s.UnspentPoints++
	s.UpdatedAt = now
	r.squads[m.SquadID] = s

	m.PointsContributed++
	r.members[m.SquadID][userID] = m

	r.events[m.SquadID] = append(r.events[m.SquadID], squad.PointEvent{
		ID:        r.nextID("event"),
		SquadID:   m.SquadID,
		UserID:    userID,
		Points:    1,
		Reason:    squad.PointEventPremierCompletion,
		CreatedAt: now,
	})

	return m.SquadID, true
}

// GrantPoints seeds unspent points for upgrade tests.
func (r *SquadRepository) GrantPoints(squadID string, points int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.squads[squadID]
	s.TotalPoints += points
	s.UnspentPoints += points
	r.squads[squadID] = s
}

// SpendsFor exposes spend transactions for test assertions.
func (r *SquadRepository) SpendsFor(squadID string) []squad.SpendTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]squad.SpendTransaction(nil), r.spends[squadID]...)
}
