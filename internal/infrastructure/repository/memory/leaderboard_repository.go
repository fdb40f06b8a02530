package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gafferhq/brain/internal/domain/career"
	"github.com/gafferhq/brain/internal/domain/leaderboard"
)

// LeaderboardRepository ranks the coach stats held by the career double.
type LeaderboardRepository struct {
	mu     sync.Mutex
	career *CareerRepository
	extras map[string]struct{}
}

func NewLeaderboardRepository(careerRepo *CareerRepository) *LeaderboardRepository {
	return &LeaderboardRepository{career: careerRepo, extras: make(map[string]struct{})}
}

func rankLess(a, b career.CoachStats) bool {
	if a.CompletionsCount != b.CompletionsCount {
		return a.CompletionsCount > b.CompletionsCount
	}
	if c := compareNullable(a.BestDaysToPremier, b.BestDaysToPremier); c != 0 {
		return c < 0
	}
	if c := compareNullable(a.AvgDaysToPremier, b.AvgDaysToPremier); c != 0 {
		return c < 0
	}
	return a.UserID < b.UserID
}

func rankEqual(a, b career.CoachStats) bool {
	return a.CompletionsCount == b.CompletionsCount &&
		compareNullable(a.BestDaysToPremier, b.BestDaysToPremier) == 0 &&
		compareNullable(a.AvgDaysToPremier, b.AvgDaysToPremier) == 0
}

// compareNullable orders ascending with nil last.
func compareNullable(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func (r *LeaderboardRepository) rankedStats() []leaderboard.Entry {
	stats := r.career.AllStats()
	for userID := range r.extras {
		found := false
		for _, s := range stats {
			if s.UserID == userID {
				found = true
				break
			}
		}
		if !found {
			stats = append(stats, career.CoachStats{UserID: userID})
		}
	}

	sort.Slice(stats, func(i, j int) bool { return rankLess(stats[i], stats[j]) })

	entries := make([]leaderboard.Entry, 0, len(stats))
	for i, s := range stats {
		rank := i + 1
		if i > 0 && rankEqual(s, stats[i-1]) {
			rank = entries[i-1].Rank
		}
		entries = append(entries, leaderboard.Entry{
			Rank:              rank,
			UserID:            s.UserID,
			DisplayName:       s.DisplayName,
			CompletionsCount:  s.CompletionsCount,
			BestDaysToPremier: s.BestDaysToPremier,
			AvgDaysToPremier:  s.AvgDaysToPremier,
		})
	}

	return entries
}

func (r *LeaderboardRepository) GlobalWithCaller(_ context.Context, userID string, limit int) (leaderboard.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extras[userID] = struct{}{}
	ranked := r.rankedStats()

	board := leaderboard.Board{TotalCoaches: len(ranked)}
	for _, e := range ranked {
		if e.UserID == userID {
			board.MyEntry = e
		}
		if e.Rank <= limit {
			board.Entries = append(board.Entries, e)
		}
	}

	return board, nil
}

func (r *LeaderboardRepository) RankUsers(_ context.Context, userIDs []string) ([]leaderboard.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	var out []leaderboard.Entry
	for _, e := range r.rankedStats() {
		if _, ok := wanted[e.UserID]; ok {
			out = append(out, e)
		}
	}

	return out, nil
}
