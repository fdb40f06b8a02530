package season

import (
	"sort"
	"time"
)

// Tier identifies one of the three parallel league tables.
type Tier string

const (
	TierChampionship Tier = "championship"
	TierLeagueOne    Tier = "league_one"
	TierLeagueTwo    Tier = "league_two"
)

// AllTiers in simulation order.
var AllTiers = []Tier{TierChampionship, TierLeagueOne, TierLeagueTwo}

type SeasonStatus string

const (
	SeasonActive    SeasonStatus = "active"
	SeasonCompleted SeasonStatus = "completed"
)

const (
	ClubsPerTier        = 24
	FixturesPerMatchday = ClubsPerTier / 2
	// Double round-robin over 24 clubs: 23 rounds out, 23 mirrored back.
	TotalMatchdays = 2 * (ClubsPerTier - 1)
)

const FixtureStatusPlayed = "PLAYED"
const FixtureStatusUpcoming = "UPCOMING"

type Season struct {
	ID                string
	Tier              Tier
	CurrentMatchday   int
	TotalMatchdays    int
	FixturesGenerated bool
	Status            SeasonStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Progress is the authoritative cursor for the next matchday to
// simulate. Season.CurrentMatchday mirrors it for read surfaces.
type Progress struct {
	SeasonID        string
	CurrentMatchday int
	UpdatedAt       time.Time
}

type Club struct {
	ID   string
	Name string
	Tier Tier
}

type Fixture struct {
	ID         string
	SeasonID   string
	Tier       Tier
	Matchday   int
	HomeClubID string
	AwayClubID string
	HomeGoals  *int
	AwayGoals  *int
	Status     string
	PlayedAt   *time.Time
}

// Played reports whether a fixture already has a recorded result. It
// deliberately does not trust the stored status string for the unplayed
// side: legacy rows carry several spellings of "not played yet".
func (f Fixture) Played() bool {
	if f.PlayedAt != nil {
		return true
	}
	if f.Status == FixtureStatusPlayed {
		return true
	}
	return f.HomeGoals != nil && f.AwayGoals != nil
}

type TeamSeason struct {
	SeasonID     string
	ClubID       string
	ClubName     string
	Played       int
	Won          int
	Drawn        int
	Lost         int
	GoalsFor     int
	GoalsAgainst int
	GoalDifference int
	Points       int
}

// Apply folds one final score into the standings row.
func (t *TeamSeason) Apply(goalsFor, goalsAgainst int) {
	t.Played++
	t.GoalsFor += goalsFor
	t.GoalsAgainst += goalsAgainst
	t.GoalDifference = t.GoalsFor - t.GoalsAgainst
	switch {
	case goalsFor > goalsAgainst:
		t.Won++
		t.Points += 3
	case goalsFor == goalsAgainst:
		t.Drawn++
		t.Points++
	default:
		t.Lost++
	}
}

func ValidTier(t Tier) bool {
	switch t {
	case TierChampionship, TierLeagueOne, TierLeagueTwo:
		return true
	default:
		return false
	}
}

// SortTable orders standings by points, goal difference, goals for,
// then club name.
func SortTable(rows []TeamSeason) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.GoalDifference != b.GoalDifference {
			return a.GoalDifference > b.GoalDifference
		}
		if a.GoalsFor != b.GoalsFor {
			return a.GoalsFor > b.GoalsFor
		}
		return a.ClubName < b.ClubName
	})
}
