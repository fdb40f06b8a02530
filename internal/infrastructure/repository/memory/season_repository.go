package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gafferhq/brain/internal/domain/season"
)

type SeasonRepository struct {
	mu       sync.Mutex
	seq      int
	seasons  map[string]season.Season
	progress map[string]season.Progress
	clubs    map[season.Tier][]season.Club
	fixtures map[string][]season.Fixture // seasonID -> fixtures
	tables   map[string]map[string]season.TeamSeason
}

func NewSeasonRepository() *SeasonRepository {
	return &SeasonRepository{
		seasons:  make(map[string]season.Season),
		progress: make(map[string]season.Progress),
		clubs:    make(map[season.Tier][]season.Club),
		fixtures: make(map[string][]season.Fixture),
		tables:   make(map[string]map[string]season.TeamSeason),
	}
}

// SeedClubs installs the fixed club set for a tier.
func (r *SeasonRepository) SeedClubs(tier season.Tier, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clubs := make([]season.Club, 0, len(names))
	for i, name := range names {
		clubs = append(clubs, season.Club{
			ID:   fmt.Sprintf("%s-club-%02d", tier, i+1),
			Name: name,
			Tier: tier,
		})
	}
	r.clubs[tier] = clubs
}

// SeedDefaultClubs fills every tier with generated club names.
func (r *SeasonRepository) SeedDefaultClubs() {
	for _, tier := range season.AllTiers {
		names := make([]string, season.ClubsPerTier)
		for i := range names {
			names[i] = fmt.Sprintf("%s FC %02d", tier, i+1)
		}
		r.SeedClubs(tier, names)
	}
}

func (r *SeasonRepository) ActiveSeason(_ context.Context, tier season.Tier) (season.Season, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.seasons {
		if s.Tier == tier && s.Status == season.SeasonActive {
			return s, true, nil
		}
	}

	return season.Season{}, false, nil
}

func (r *SeasonRepository) CreateSeason(_ context.Context, tier season.Tier, now time.Time) (season.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	s := season.Season{
		ID:              fmt.Sprintf("season-%d", r.seq),
		Tier:            tier,
		CurrentMatchday: 1,
		TotalMatchdays:  season.TotalMatchdays,
		Status:          season.SeasonActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.seasons[s.ID] = s

	return s, nil
}

func (r *SeasonRepository) CompleteSeason(_ context.Context, seasonID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.seasons[seasonID]
	if !ok {
		return fmt.Errorf("season %s not found", seasonID)
	}
	s.Status = season.SeasonCompleted
	s.UpdatedAt = now
	r.seasons[seasonID] = s

	return nil
}

func (r *SeasonRepository) DeactivateAll(_ context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.seasons {
		if s.Status == season.SeasonActive {
			s.Status = season.SeasonCompleted
			s.UpdatedAt = now
			r.seasons[id] = s
		}
	}

	return nil
}

func (r *SeasonRepository) ListActiveSeasons(_ context.Context) ([]season.Season, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []season.Season
	for _, s := range r.seasons {
		if s.Status == season.SeasonActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *SeasonRepository) EnsureProgress(_ context.Context, seasonID string) (season.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.progress[seasonID]
	if !ok {
		p = season.Progress{SeasonID: seasonID, CurrentMatchday: 1, UpdatedAt: time.Now().UTC()}
		r.progress[seasonID] = p
	}

	return p, nil
}

func (r *SeasonRepository) AdvanceMatchday(_ context.Context, seasonID string, next int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress[seasonID] = season.Progress{SeasonID: seasonID, CurrentMatchday: next, UpdatedAt: now}
	if s, ok := r.seasons[seasonID]; ok {
		s.CurrentMatchday = next
		s.UpdatedAt = now
		r.seasons[seasonID] = s
	}

	return nil
}

func (r *SeasonRepository) MarkFixturesGenerated(_ context.Context, seasonID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.seasons[seasonID]
	if !ok {
		return fmt.Errorf("season %s not found", seasonID)
	}
	s.FixturesGenerated = true
	r.seasons[seasonID] = s

	return nil
}

func (r *SeasonRepository) ListClubs(_ context.Context, tier season.Tier) ([]season.Club, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]season.Club(nil), r.clubs[tier]...), nil
}

func (r *SeasonRepository) FixturesByMatchday(_ context.Context, seasonID string, matchday int) ([]season.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []season.Fixture
	for _, f := range r.fixtures[seasonID] {
		if f.Matchday == matchday {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *SeasonRepository) ListFixtures(_ context.Context, seasonID string, matchday *int, playedOnly bool) ([]season.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []season.Fixture
	for _, f := range r.fixtures[seasonID] {
		if matchday != nil && f.Matchday != *matchday {
			continue
		}
		if playedOnly && !f.Played() {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Matchday != out[j].Matchday {
			return out[i].Matchday < out[j].Matchday
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (r *SeasonRepository) InsertFixture(_ context.Context, f season.Fixture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.fixtures[f.SeasonID] {
		if existing.Matchday == f.Matchday && existing.HomeClubID == f.HomeClubID {
			return nil
		}
	}
	if f.ID == "" {
		r.seq++
		f.ID = fmt.Sprintf("fixture-%d", r.seq)
	}
	if f.Status == "" {
		f.Status = season.FixtureStatusUpcoming
	}
	r.fixtures[f.SeasonID] = append(r.fixtures[f.SeasonID], f)

	return nil
}

func (r *SeasonRepository) RecordResult(_ context.Context, res season.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for seasonID, fixtures := range r.fixtures {
		for i, f := range fixtures {
			if f.ID != res.FixtureID {
				continue
			}
			home, away := res.HomeGoals, res.AwayGoals
			playedAt := res.PlayedAt
			f.HomeGoals = &home
			f.AwayGoals = &away
			f.Status = season.FixtureStatusPlayed
			f.PlayedAt = &playedAt
			r.fixtures[seasonID][i] = f
			return nil
		}
	}

	return fmt.Errorf("fixture %s not found", res.FixtureID)
}

func (r *SeasonRepository) TeamSeasons(_ context.Context, seasonID string) ([]season.TeamSeason, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []season.TeamSeason
	for _, row := range r.tables[seasonID] {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClubID < out[j].ClubID })

	return out, nil
}

func (r *SeasonRepository) UpsertTeamSeason(_ context.Context, row season.TeamSeason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tables[row.SeasonID] == nil {
		r.tables[row.SeasonID] = make(map[string]season.TeamSeason)
	}
	if row.ClubName == "" {
		for _, clubs := range r.clubs {
			for _, c := range clubs {
				if c.ID == row.ClubID {
					row.ClubName = c.Name
				}
			}
		}
	}
	r.tables[row.SeasonID][row.ClubID] = row

	return nil
}
