package group

import (
	"context"
	"time"
)

// Repository persists friend groups and memberships.
type Repository interface {
	// CreateGroup fails with ErrInviteCodeTaken on a code collision so
	// the service can retry with a fresh code.
	CreateGroup(ctx context.Context, g Group, now time.Time) (Group, error)
	GetByID(ctx context.Context, groupID string) (Group, bool, error)
	GetByInviteCode(ctx context.Context, code string) (Group, bool, error)
	AddMember(ctx context.Context, groupID, userID string, role Role, now time.Time) (added bool, err error)
	Membership(ctx context.Context, groupID, userID string) (Member, bool, error)
	ListByUser(ctx context.Context, userID string) ([]Group, error)
	RemoveMember(ctx context.Context, groupID, userID string) error
	MemberUserIDs(ctx context.Context, groupID string) ([]string, error)
}
