package squad

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Privacy string

const (
	PrivacyOpen    Privacy = "open"
	PrivacyRequest Privacy = "request"
	PrivacyClosed  Privacy = "closed"
)

type Role string

const (
	RoleLeader   Role = "leader"
	RoleCoLeader Role = "co_leader"
	RoleMember   Role = "member"
)

type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type FacilityType string

const (
	FacilityTrainingEquipment FacilityType = "training_equipment"
	FacilitySpa               FacilityType = "spa"
	FacilityAnalysisRoom      FacilityType = "analysis_room"
	FacilityMedicalCenter     FacilityType = "medical_center"
)

// AllFacilities is the fixed facility set created with every squad.
var AllFacilities = []FacilityType{
	FacilityTrainingEquipment,
	FacilitySpa,
	FacilityAnalysisRoom,
	FacilityMedicalCenter,
}

// Upgrade cost is base cost times the level being bought.
var facilityBaseCost = map[FacilityType]int{
	FacilityTrainingEquipment: 5,
	FacilitySpa:               8,
	FacilityAnalysisRoom:      6,
	FacilityMedicalCenter:     7,
}

const PointEventPremierCompletion = "premier_completion"

var (
	ErrAlreadyInSquad     = errors.New("already in a squad")
	ErrTagTaken           = errors.New("squad tag already taken")
	ErrSquadNotOpen       = errors.New("squad is not open for direct joins")
	ErrSquadClosed        = errors.New("squad is closed to new members")
	ErrRoleRequired       = errors.New("leader or co-leader role required")
	ErrLeaderOnly         = errors.New("only the squad leader may do this")
	ErrPromoteFirst       = errors.New("promote another member before leaving")
	ErrInsufficientPoints = errors.New("insufficient unspent points")
	ErrRequestResolved    = errors.New("join request already resolved")
	ErrNotMember          = errors.New("not an active squad member")
	ErrSquadNotFound      = errors.New("squad not found")
	ErrRequestNotFound    = errors.New("join request not found")
)

type Squad struct {
	ID           string
	Name         string
	Tag          string
	Description  string
	LeaderUserID string
	Privacy      Privacy
	TotalPoints  int
	UnspentPoints int
	Level        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Member struct {
	SquadID           string
	UserID            string
	Role              Role
	PointsContributed int
	Status            MemberStatus
	JoinedAt          time.Time
}

type JoinRequest struct {
	ID         string
	SquadID    string
	UserID     string
	Status     RequestStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy *string
}

type Facility struct {
	SquadID string
	Type    FacilityType
	Level   int
}

// PointEvent and SpendTransaction are append-only audit rows.
type PointEvent struct {
	ID        string
	SquadID   string
	UserID    string
	Points    int
	Reason    string
	CreatedAt time.Time
}

type SpendTransaction struct {
	ID           string
	SquadID      string
	UserID       string
	FacilityType FacilityType
	Cost         int
	NewLevel     int
	CreatedAt    time.Time
}

// Profile is the public squad view with members and facilities.
type Profile struct {
	Squad        Squad
	Members      []Member
	Facilities   []Facility
	RecentEvents []PointEvent
}

var tagPattern = regexp.MustCompile(`^[A-Z0-9]{2,5}$`)

// SanitizeTag uppercases and strips non-alphanumerics, then validates
// the 2-5 character shape. Empty input means no tag.
func SanitizeTag(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 32
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", nil
	}
	if !tagPattern.MatchString(cleaned) {
		return "", fmt.Errorf("tag must be 2-5 uppercase alphanumeric characters")
	}

	return cleaned, nil
}

func ValidPrivacy(p Privacy) bool {
	switch p {
	case PrivacyOpen, PrivacyRequest, PrivacyClosed:
		return true
	default:
		return false
	}
}

func ValidFacility(f FacilityType) bool {
	_, ok := facilityBaseCost[f]
	return ok
}

// UpgradeCost is the price of moving a facility from currentLevel to
// currentLevel+1.
func UpgradeCost(f FacilityType, currentLevel int) int {
	return facilityBaseCost[f] * (currentLevel + 1)
}

// LevelFromFacilities derives the squad level from the facility sum.
func LevelFromFacilities(facilities []Facility) int {
	sum := 0
	for _, f := range facilities {
		sum += f.Level
	}
	return 1 + sum/4
}

func (r Role) CanManageRequests() bool {
	return r == RoleLeader || r == RoleCoLeader
}
