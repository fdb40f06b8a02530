package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/gafferhq/brain/internal/domain/career"
	"github.com/gafferhq/brain/internal/domain/sweep"
)

const (
	// Promotion/skip lists in the summary are capped; completions and
	// errors are always reported in full.
	sweepListCap          = 100
	sweepCompletionWorkers = 4
)

// SweepPromotion is one player moved up a league.
type SweepPromotion struct {
	PlayerID   string `json:"player_id"`
	FromLeague string `json:"from_league"`
	ToLeague   string `json:"to_league"`
	Rating     int    `json:"rating"`
}

// SweepCompletion is one career finished by the sweep.
type SweepCompletion struct {
	PlayerID          string `json:"player_id"`
	UserID            string `json:"user_id"`
	DaysToPremier     int    `json:"days_to_premier"`
	AlreadyCompleted  bool   `json:"already_completed"`
	SquadPointAwarded bool   `json:"squad_point_awarded"`
}

// SweepSkip is one active player below their league threshold.
type SweepSkip struct {
	PlayerID string `json:"player_id"`
	League   string `json:"league"`
	Rating   int    `json:"rating"`
	Needed   int    `json:"needed"`
}

// SweepSummary reports one sweep invocation end to end.
type SweepSummary struct {
	Executed    bool              `json:"executed"`
	Reason      string            `json:"reason,omitempty"`
	UTCDay      int64             `json:"utc_day"`
	RunCount    int               `json:"run_count"`
	TotalActive int               `json:"total_active"`
	Promoted    int               `json:"promoted"`
	Completed   int               `json:"completed"`
	Skipped     int               `json:"skipped"`
	Promotions  []SweepPromotion  `json:"promotions"`
	Completions []SweepCompletion `json:"completions"`
	Skips       []SweepSkip       `json:"skips"`
	Errors      []string          `json:"errors"`
}

type SweepService struct {
	sweepRepo  sweep.Repository
	careerRepo career.Repository
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweepService(sweepRepo sweep.Repository, careerRepo career.Repository, logger *slog.Logger) *SweepService {
	if logger == nil {
		logger = slog.Default()
	}

	return &SweepService{
		sweepRepo:  sweepRepo,
		careerRepo: careerRepo,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *SweepService) Status(ctx context.Context) (sweep.State, error) {
	state, err := s.sweepRepo.Status(ctx)
	if err != nil {
		return sweep.State{}, fmt.Errorf("sweep status: %w", err)
	}

	return state, nil
}

// Run claims today's sweep and, on winning the claim, promotes and
// completes every qualifying active player. Losing the claim is a
// normal outcome reported through Reason, not an error.
func (s *SweepService) Run(ctx context.Context, force bool) (SweepSummary, error) {
	ctx, span := startUsecaseSpan(ctx, "SweepService.Run")
	defer span.End()

	now := s.now().UTC()
	today := sweep.UTCDay(now)

	claim, err := s.sweepRepo.Claim(ctx, today, now, force)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("claim sweep: %w", err)
	}

	summary := SweepSummary{
		UTCDay:      today,
		RunCount:    claim.State.RunCount,
		Promotions:  []SweepPromotion{},
		Completions: []SweepCompletion{},
		Skips:       []SweepSkip{},
		Errors:      []string{},
	}
	if !claim.Claimed {
		summary.Reason = claim.Reason
		return summary, nil
	}
	summary.Executed = true

	players, err := s.careerRepo.ListActive(ctx)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list active players: %w", err)
	}
	summary.TotalActive = len(players)

	var completionCandidates []career.Player
	promotionsByLeague := make(map[career.League][]career.Player)

	for _, p := range players {
		threshold := career.PromotionThreshold(p.CurrentLeague)
		if p.OverallRating < threshold {
			summary.Skipped++
			if len(summary.Skips) < sweepListCap {
				summary.Skips = append(summary.Skips, SweepSkip{
					PlayerID: p.ID,
					League:   string(p.CurrentLeague),
					Rating:   p.OverallRating,
					Needed:   threshold,
				})
			}
			continue
		}
		if p.CurrentLeague == career.Championship {
			completionCandidates = append(completionCandidates, p)
			continue
		}
		promotionsByLeague[p.CurrentLeague] = append(promotionsByLeague[p.CurrentLeague], p)
	}

	completions, completionErrs := s.runCompletions(ctx, completionCandidates)
	summary.Completions = completions
	summary.Completed = len(completions)
	summary.Errors = append(summary.Errors, completionErrs...)

	for _, from := range []career.League{career.LeagueTwo, career.LeagueOne} {
		candidates := promotionsByLeague[from]
		if len(candidates) == 0 {
			continue
		}
		to, _ := career.NextLeague(from)

		ids := make([]string, 0, len(candidates))
		for _, p := range candidates {
			ids = append(ids, p.ID)
		}

		moved, err := s.careerRepo.PromoteBatch(ctx, ids, from, to)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("promote %s batch: %v", from, err))
			continue
		}
		summary.Promoted += moved

		for _, p := range candidates {
			if len(summary.Promotions) >= sweepListCap {
				break
			}
			summary.Promotions = append(summary.Promotions, SweepPromotion{
				PlayerID:   p.ID,
				FromLeague: string(from),
				ToLeague:   string(to),
				Rating:     p.OverallRating,
			})
		}
	}

	s.logger.InfoContext(ctx, "sweep executed",
		slog.Int64("utc_day", today),
		slog.Int("total_active", summary.TotalActive),
		slog.Int("promoted", summary.Promoted),
		slog.Int("completed", summary.Completed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", len(summary.Errors)),
	)

	return summary, nil
}

// runCompletions finishes each championship candidate in its own
// transaction on a small worker pool. Per-player failures are collected
// and never abort the batch.
func (s *SweepService) runCompletions(ctx context.Context, candidates []career.Player) ([]SweepCompletion, []string) {
	if len(candidates) == 0 {
		return nil, nil
	}

	pool, err := ants.NewPool(sweepCompletionWorkers)
	if err != nil {
		return nil, []string{fmt.Sprintf("create completion pool: %v", err)}
	}
	defer pool.Release()

	now := s.now().UTC()
	results := make(chan SweepCompletion, len(candidates))
	failures := make(chan string, len(candidates))

	var workers sync.WaitGroup
	for _, candidate := range candidates {
		candidate := candidate
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			outcome, err := s.careerRepo.CompleteCareer(ctx, candidate.ID, now)
			if err != nil {
				failures <- fmt.Sprintf("complete %s: %v", candidate.ID, err)
				return
			}

			results <- SweepCompletion{
				PlayerID:          outcome.PlayerID,
				UserID:            outcome.UserID,
				DaysToPremier:     outcome.DaysToPremier,
				AlreadyCompleted:  outcome.AlreadyCompleted,
				SquadPointAwarded: outcome.SquadPointAwarded,
			}
		}); err != nil {
			workers.Done()
			failures <- fmt.Sprintf("submit completion %s: %v", candidate.ID, err)
		}
	}

	workers.Wait()
	close(results)
	close(failures)

	completions := make([]SweepCompletion, 0, len(candidates))
	for c := range results {
		completions = append(completions, c)
	}
	sort.Slice(completions, func(i, j int) bool { return completions[i].PlayerID < completions[j].PlayerID })

	var errs []string
	for f := range failures {
		errs = append(errs, f)
	}
	sort.Strings(errs)

	return completions, errs
}
