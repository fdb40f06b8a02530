package squad

import (
	"context"
	"time"
)

// NewSquad is the validated creation payload; the repository assigns the
// id, the leader membership and the four level-0 facility rows.
type NewSquad struct {
	Name         string
	Tag          string
	Description  string
	LeaderUserID string
	Privacy      Privacy
}

// UpgradeOutcome reports a committed facility upgrade.
type UpgradeOutcome struct {
	FacilityType  FacilityType
	NewLevel      int
	Cost          int
	UnspentPoints int
	SquadLevel    int
}

// ResolveOutcome reports a committed join-request resolution.
// AutoRejected is set when an approval was flipped to a rejection
// because the applicant joined another squad while the request was
// pending.
type ResolveOutcome struct {
	Request      JoinRequest
	AutoRejected bool
}

// Repository owns all squad state transitions. Privileged mutations lock
// the squad row before reading anything they decide on, so every method
// here is atomic on its own.
type Repository interface {
	CreateSquad(ctx context.Context, s NewSquad, now time.Time) (Squad, error)
	GetSquad(ctx context.Context, squadID string) (Squad, bool, error)
	Profile(ctx context.Context, squadID string) (Profile, bool, error)
	ActiveMembership(ctx context.Context, userID string) (Member, bool, error)
	JoinOpen(ctx context.Context, squadID, userID string, now time.Time) (Member, error)
	CreateJoinRequest(ctx context.Context, squadID, userID string, now time.Time) (JoinRequest, error)
	GetJoinRequest(ctx context.Context, requestID string) (JoinRequest, bool, error)
	PendingRequests(ctx context.Context, squadID string) ([]JoinRequest, error)
	ResolveJoinRequest(ctx context.Context, requestID, resolverID string, approve bool, now time.Time) (ResolveOutcome, error)
	Leave(ctx context.Context, userID string, now time.Time) error
	UpgradeFacility(ctx context.Context, squadID, userID string, ft FacilityType, now time.Time) (UpgradeOutcome, error)
	SetMemberRole(ctx context.Context, squadID, leaderID, targetUserID string, role Role) error
	Leaderboard(ctx context.Context, limit int) ([]Squad, error)
	Search(ctx context.Context, query string, limit int) ([]Squad, error)
}
