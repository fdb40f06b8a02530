package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gafferhq/brain/internal/domain/career"
)

// CareerRepository is the in-memory double used by service tests. It
// mirrors the transactional semantics of the postgres implementation
// with one mutex.
type CareerRepository struct {
	mu          sync.Mutex
	players     map[string]career.Player
	completions map[string]career.CareerCompletion
	stats       map[string]career.CoachStats
	squads      *SquadRepository
}

func NewCareerRepository() *CareerRepository {
	return &CareerRepository{
		players:     make(map[string]career.Player),
		completions: make(map[string]career.CareerCompletion),
		stats:       make(map[string]career.CoachStats),
	}
}

// LinkSquads wires squad point awards into career completion, matching
// the cross-table write the postgres pipeline performs.
func (r *CareerRepository) LinkSquads(squads *SquadRepository) {
	r.squads = squads
}

func (r *CareerRepository) CreatePlayer(_ context.Context, p career.NewPlayer) (career.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.players[p.PlayerID]; ok {
		if p.DisplayName != "" {
			existing.DisplayName = p.DisplayName
			r.players[p.PlayerID] = existing
		}
		r.ensureStatsLocked(p.UserID, p.DisplayName)
		return existing, nil
	}

	now := time.Now().UTC()
	player := career.Player{
		ID:              p.PlayerID,
		UserID:          p.UserID,
		DisplayName:     p.DisplayName,
		OverallRating:   p.OverallRating,
		CurrentLeague:   p.CurrentLeague,
		CareerStatus:    career.StatusActive,
		CareerStartedAt: p.StartedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.players[p.PlayerID] = player
	r.ensureStatsLocked(p.UserID, p.DisplayName)

	return player, nil
}

func (r *CareerRepository) ensureStatsLocked(userID, displayName string) {
	if _, ok := r.stats[userID]; !ok {
		r.stats[userID] = career.CoachStats{UserID: userID, DisplayName: displayName}
	}
}

func (r *CareerRepository) GetPlayer(_ context.Context, playerID string) (career.Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[playerID]
	return player, ok, nil
}

func (r *CareerRepository) UpdateProgress(_ context.Context, playerID string, upd career.ProgressUpdate) (career.Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[playerID]
	if !ok || player.CareerStatus != career.StatusActive {
		return career.Player{}, false, nil
	}

	if upd.OverallRating != nil {
		player.OverallRating = *upd.OverallRating
	}
	if upd.CurrentLeague != nil {
		player.CurrentLeague = *upd.CurrentLeague
	}
	player.UpdatedAt = time.Now().UTC()
	r.players[playerID] = player

	return player, true, nil
}

func (r *CareerRepository) ListActive(_ context.Context) ([]career.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []career.Player
	for _, p := range r.players {
		if p.CareerStatus == career.StatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *CareerRepository) PromoteBatch(_ context.Context, playerIDs []string, from, to career.League) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	moved := 0
	for _, id := range playerIDs {
		p, ok := r.players[id]
		if !ok || p.CareerStatus != career.StatusActive || p.CurrentLeague != from {
			continue
		}
		p.CurrentLeague = to
		p.UpdatedAt = time.Now().UTC()
		r.players[id] = p
		moved++
	}

	return moved, nil
}

func (r *CareerRepository) CompleteCareer(_ context.Context, playerID string, now time.Time) (career.CompletionOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[playerID]
	if !ok {
		return career.CompletionOutcome{}, career.ErrPlayerNotFound
	}

	outcome := career.CompletionOutcome{PlayerID: player.ID, UserID: player.UserID}

	if player.CareerStatus == career.StatusCompleted {
		outcome.AlreadyCompleted = true
		return outcome, nil
	}
	if _, done := r.completions[playerID]; done {
		outcome.AlreadyCompleted = true
		return outcome, nil
	}

	days := career.DaysToPremier(player.CareerStartedAt, now)
	outcome.DaysToPremier = days

	player.CareerStatus = career.StatusCompleted
	completedAt := now
	player.CareerCompletedAt = &completedAt
	player.UpdatedAt = now
	r.players[playerID] = player

	r.completions[playerID] = career.CareerCompletion{
		ID:            playerID + "-completion",
		PlayerID:      playerID,
		UserID:        player.UserID,
		DaysToPremier: days,
		CompletedAt:   now,
	}

	stats := r.stats[player.UserID]
	stats.UserID = player.UserID
	if stats.DisplayName == "" {
		stats.DisplayName = player.DisplayName
	}
	stats.CompletionsCount++
	stats.TotalDaysSum += days
	avg := (stats.TotalDaysSum + stats.CompletionsCount/2) / stats.CompletionsCount
	stats.AvgDaysToPremier = &avg
	if stats.BestDaysToPremier == nil || days < *stats.BestDaysToPremier {
		best := days
		stats.BestDaysToPremier = &best
	}
	r.stats[player.UserID] = stats

	if r.squads != nil {
		if squadID, awarded := r.squads.awardPoint(player.UserID, now); awarded {
			outcome.SquadPointAwarded = true
			outcome.SquadID = squadID
		}
	}

	return outcome, nil
}

func (r *CareerRepository) CoachStats(_ context.Context, userID string) (career.CoachStats, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.stats[userID]
	return stats, ok, nil
}

// CompletionFor exposes the completion row for test assertions.
func (r *CareerRepository) CompletionFor(playerID string) (career.CareerCompletion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.completions[playerID]
	return c, ok
}

// AllStats snapshots every coach stats row, for the leaderboard double.
func (r *CareerRepository) AllStats() []career.CoachStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]career.CoachStats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, s)
	}

	return out
}
