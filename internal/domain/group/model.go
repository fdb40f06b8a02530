package group

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const InviteCodeLength = 6

var (
	ErrInviteCodeTaken = errors.New("invite code already taken")
	ErrNotMember       = errors.New("not a member of this group")
)

// Group is a private friend group with a shareable invite code.
type Group struct {
	ID         string
	Name       string
	InviteCode string
	CreatedBy  string
	CreatedAt  time.Time
}

type Member struct {
	GroupID  string
	UserID   string
	Role     Role
	JoinedAt time.Time
}

func (g Group) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("group name is required")
	}
	if len(g.InviteCode) != InviteCodeLength {
		return fmt.Errorf("invite code must be %d characters", InviteCodeLength)
	}
	if g.CreatedBy == "" {
		return fmt.Errorf("group creator is required")
	}

	return nil
}

// NormalizeInviteCode makes invite lookups case-insensitive.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
