package career

import (
	"errors"
	"fmt"
	"time"
)

// League is one of the three tiers in the simulated pyramid.
type League string

const (
	LeagueTwo    League = "league_two"
	LeagueOne    League = "league_one"
	Championship League = "championship"
)

type CareerStatus string

const (
	StatusActive    CareerStatus = "active"
	StatusCompleted CareerStatus = "completed"
)

// Promotion thresholds by current league. A championship player at or
// above the championship threshold completes the career instead.
const (
	ThresholdLeagueTwo    = 70
	ThresholdLeagueOne    = 78
	ThresholdChampionship = 86
)

const DefaultRating = 60

var (
	ErrAlreadyCompleted = errors.New("career already completed")
	ErrPlayerNotFound   = errors.New("player not found")
)

// Player is one managed career. Rating and league freeze once completed.
type Player struct {
	ID                string
	UserID            string
	DisplayName       string
	OverallRating     int
	CurrentLeague     League
	CareerStatus      CareerStatus
	CareerStartedAt   time.Time
	CareerCompletedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CareerCompletion is the one-row-per-player completion record. The
// unique constraint on PlayerID is the physical double-completion guard.
type CareerCompletion struct {
	ID            string
	PlayerID      string
	UserID        string
	DaysToPremier int
	CompletedAt   time.Time
}

// CoachStats is the per-user aggregate kept incrementally: the average
// is recomputed from the running day sum on every completion.
type CoachStats struct {
	UserID           string
	DisplayName      string
	CompletionsCount int
	BestDaysToPremier *int
	AvgDaysToPremier  *int
	TotalDaysSum     int
}

func ValidLeague(l League) bool {
	switch l {
	case LeagueTwo, LeagueOne, Championship:
		return true
	default:
		return false
	}
}

// NextLeague returns the promotion target, or false for the top tier.
func NextLeague(l League) (League, bool) {
	switch l {
	case LeagueTwo:
		return LeagueOne, true
	case LeagueOne:
		return Championship, true
	default:
		return "", false
	}
}

// PromotionThreshold is the rating a player must reach to leave the
// given league (or, from the championship, to complete the career).
func PromotionThreshold(l League) int {
	switch l {
	case LeagueTwo:
		return ThresholdLeagueTwo
	case LeagueOne:
		return ThresholdLeagueOne
	default:
		return ThresholdChampionship
	}
}

const dayMillis = 86_400_000

// DaysToPremier is the number of days between career start and
// completion, rounded up, never below 1.
func DaysToPremier(startedAt, completedAt time.Time) int {
	elapsed := completedAt.UnixMilli() - startedAt.UnixMilli()
	if elapsed <= 0 {
		return 1
	}
	days := int((elapsed + dayMillis - 1) / dayMillis)
	if days < 1 {
		return 1
	}
	return days
}

func (p Player) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("player id is required")
	}
	if p.UserID == "" {
		return fmt.Errorf("player user id is required")
	}
	if !ValidLeague(p.CurrentLeague) {
		return fmt.Errorf("unknown league %q", p.CurrentLeague)
	}

	return nil
}
