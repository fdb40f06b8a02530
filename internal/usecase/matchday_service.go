package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/gafferhq/brain/internal/domain/season"
)

// Tier outcomes reported by the simulator.
const (
	TierOutcomeOK            = "ok"
	TierOutcomeAlreadyPlayed = "alreadyPlayed"
	TierOutcomeAborted       = "aborted"
	TierOutcomeError         = "error"
	TierOutcomeSkipped       = "skipped"
)

const (
	homeGoalLambda = 1.45
	awayGoalLambda = 1.15
	maxGoals       = 7
)

// MatchdayConfig tunes the simulator's goal model and write pacing.
type MatchdayConfig struct {
	Model         string
	WriteRetries  int
	WriteBackoff  time.Duration
	WriteThrottle time.Duration
}

// TierResult is the per-tier outcome of one simulation day.
type TierResult struct {
	Tier              season.Tier `json:"tier"`
	Outcome           string      `json:"outcome"`
	Matchday          int         `json:"matchday,omitempty"`
	NewSeasonCreated  bool        `json:"new_season_created,omitempty"`
	SeasonCompleted   bool        `json:"season_completed,omitempty"`
	FixturesGenerated bool        `json:"fixtures_generated,omitempty"`
	ResultsWritten    int         `json:"results_written,omitempty"`
	Message           string      `json:"message,omitempty"`
}

// DayReport is the full simulate-day response across all tiers.
type DayReport struct {
	Results []TierResult `json:"results"`
	AllOK   bool         `json:"all_ok"`
}

// ResetReport lists the fresh seasons created by a reset-sync.
type ResetReport struct {
	Seasons []season.Season `json:"seasons"`
}

// LeagueInfo is the public per-tier season summary.
type LeagueInfo struct {
	Tier            season.Tier `json:"tier"`
	SeasonID        string      `json:"season_id"`
	CurrentMatchday int         `json:"current_matchday"`
	TotalMatchdays  int         `json:"total_matchdays"`
}

type MatchdayService struct {
	seasonRepo season.Repository
	cfg        MatchdayConfig
	logger     *slog.Logger
	now        func() time.Time
	randFloat  func() float64
	sleep      func(time.Duration)
}

func NewMatchdayService(seasonRepo season.Repository, cfg MatchdayConfig, logger *slog.Logger) *MatchdayService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "poisson"
	}
	if cfg.WriteRetries < 1 {
		cfg.WriteRetries = 3
	}
	if cfg.WriteBackoff <= 0 {
		cfg.WriteBackoff = 500 * time.Millisecond
	}

	return &MatchdayService{
		seasonRepo: seasonRepo,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		randFloat:  rand.Float64,
		sleep:      time.Sleep,
	}
}

// SimulateDay advances all three tiers, each independently. A failing
// tier never blocks the others.
func (s *MatchdayService) SimulateDay(ctx context.Context) (DayReport, error) {
	ctx, span := startUsecaseSpan(ctx, "MatchdayService.SimulateDay")
	defer span.End()

	results := make([]TierResult, len(season.AllTiers))

	var wg conc.WaitGroup
	for i, tier := range season.AllTiers {
		i, tier := i, tier
		wg.Go(func() {
			results[i] = s.simulateTier(ctx, tier)
		})
	}
	wg.Wait()

	report := DayReport{Results: results, AllOK: true}
	for _, r := range results {
		// Creating a fresh season or closing a finished one is a normal
		// day; only aborts and errors mark the run as degraded.
		if r.Outcome == TierOutcomeAborted || r.Outcome == TierOutcomeError {
			report.AllOK = false
		}
		s.logger.InfoContext(ctx, "tier simulated",
			slog.String("tier", string(r.Tier)),
			slog.String("outcome", r.Outcome),
			slog.Int("matchday", r.Matchday),
			slog.String("message", r.Message),
		)
	}

	return report, nil
}

func (s *MatchdayService) simulateTier(ctx context.Context, tier season.Tier) TierResult {
	result := TierResult{Tier: tier}

	active, exists, err := s.seasonRepo.ActiveSeason(ctx, tier)
	if err != nil {
		result.Outcome = TierOutcomeError
		result.Message = fmt.Sprintf("load active season: %v", err)
		return result
	}
	if !exists {
		created, err := s.seasonRepo.CreateSeason(ctx, tier, s.now().UTC())
		if err != nil {
			result.Outcome = TierOutcomeError
			result.Message = fmt.Sprintf("create season: %v", err)
			return result
		}
		if _, err := s.seasonRepo.EnsureProgress(ctx, created.ID); err != nil {
			result.Outcome = TierOutcomeError
			result.Message = fmt.Sprintf("ensure progress: %v", err)
			return result
		}
		result.Outcome = TierOutcomeSkipped
		result.NewSeasonCreated = true
		result.Matchday = 1
		result.Message = "new season created"
		return result
	}

	progress, err := s.seasonRepo.EnsureProgress(ctx, active.ID)
	if err != nil {
		result.Outcome = TierOutcomeError
		result.Message = fmt.Sprintf("ensure progress: %v", err)
		return result
	}
	matchday := progress.CurrentMatchday
	result.Matchday = matchday
	if matchday < 1 {
		result.Outcome = TierOutcomeError
		result.Message = fmt.Sprintf("invalid matchday %d", matchday)
		return result
	}

	totalMatchdays := active.TotalMatchdays
	if totalMatchdays <= 0 {
		totalMatchdays = season.TotalMatchdays
	}
	if matchday > totalMatchdays {
		if err := s.seasonRepo.CompleteSeason(ctx, active.ID, s.now().UTC()); err != nil {
			result.Outcome = TierOutcomeError
			result.Message = fmt.Sprintf("complete season: %v", err)
			return result
		}
		result.Outcome = TierOutcomeSkipped
		result.SeasonCompleted = true
		result.Message = "season completed"
		return result
	}

	fixtures, err := s.seasonRepo.FixturesByMatchday(ctx, active.ID, matchday)
	if err != nil {
		result.Outcome = TierOutcomeError
		result.Message = fmt.Sprintf("load fixtures: %v", err)
		return result
	}

	if len(fixtures) == 0 {
		if err := s.generateMatchday(ctx, active, matchday); err != nil {
			result.Outcome = TierOutcomeAborted
			result.Message = fmt.Sprintf("generate fixtures: %v", err)
			return result
		}
		result.FixturesGenerated = true

		fixtures, err = s.seasonRepo.FixturesByMatchday(ctx, active.ID, matchday)
		if err != nil {
			result.Outcome = TierOutcomeError
			result.Message = fmt.Sprintf("reload fixtures: %v", err)
			return result
		}
	}

	var upcoming, played []season.Fixture
	for _, f := range fixtures {
		if f.Played() {
			played = append(played, f)
		} else {
			upcoming = append(upcoming, f)
		}
	}

	if len(played) == season.FixturesPerMatchday && len(upcoming) == 0 {
		if err := s.seasonRepo.AdvanceMatchday(ctx, active.ID, matchday+1, s.now().UTC()); err != nil {
			result.Outcome = TierOutcomeError
			result.Message = fmt.Sprintf("advance matchday: %v", err)
			return result
		}
		result.Outcome = TierOutcomeAlreadyPlayed
		return result
	}

	// Hard gate: anything other than a full round of unplayed fixtures
	// means the matchday is in a mixed state we refuse to touch.
	if len(upcoming) != season.FixturesPerMatchday {
		result.Outcome = TierOutcomeAborted
		result.Message = fmt.Sprintf("expected %d upcoming fixtures, found %d", season.FixturesPerMatchday, len(upcoming))
		return result
	}

	playedAt := s.now().UTC()
	batch := make([]season.Result, 0, len(upcoming))
	for _, f := range upcoming {
		batch = append(batch, season.Result{
			FixtureID: f.ID,
			HomeGoals: s.drawGoals(true),
			AwayGoals: s.drawGoals(false),
			PlayedAt:  playedAt,
		})
	}

	for _, res := range batch {
		res := res
		if err := s.writeWithRetry(ctx, func() error {
			return s.seasonRepo.RecordResult(ctx, res)
		}); err != nil {
			result.Outcome = TierOutcomeAborted
			result.Message = fmt.Sprintf("record result for fixture %s: %v", res.FixtureID, err)
			return result
		}
		result.ResultsWritten++
		s.throttle()
	}

	verified, err := s.seasonRepo.ListFixtures(ctx, active.ID, &matchday, true)
	if err != nil {
		result.Outcome = TierOutcomeError
		result.Message = fmt.Sprintf("verify results: %v", err)
		return result
	}
	if len(verified) < season.FixturesPerMatchday {
		result.Outcome = TierOutcomeAborted
		result.Message = fmt.Sprintf("verification found %d played fixtures, want %d", len(verified), season.FixturesPerMatchday)
		return result
	}

	if err := s.applyStandings(ctx, active, upcoming, batch); err != nil {
		result.Outcome = TierOutcomeAborted
		result.Message = fmt.Sprintf("update standings: %v", err)
		return result
	}

	if err := s.seasonRepo.AdvanceMatchday(ctx, active.ID, matchday+1, s.now().UTC()); err != nil {
		result.Outcome = TierOutcomeError
		result.Message = fmt.Sprintf("advance matchday: %v", err)
		return result
	}

	result.Outcome = TierOutcomeOK
	return result
}

func (s *MatchdayService) generateMatchday(ctx context.Context, active season.Season, matchday int) error {
	clubs, err := s.seasonRepo.ListClubs(ctx, active.Tier)
	if err != nil {
		return fmt.Errorf("list clubs: %w", err)
	}
	if len(clubs) != season.ClubsPerTier {
		return fmt.Errorf("tier %s has %d clubs, want %d", active.Tier, len(clubs), season.ClubsPerTier)
	}

	ids := make([]string, 0, len(clubs))
	for _, c := range clubs {
		ids = append(ids, c.ID)
	}

	pairings, err := season.MatchdayPairings(ids, matchday)
	if err != nil {
		return err
	}

	for _, p := range pairings {
		fixture := season.Fixture{
			SeasonID:   active.ID,
			Tier:       active.Tier,
			Matchday:   matchday,
			HomeClubID: p.HomeClubID,
			AwayClubID: p.AwayClubID,
			Status:     season.FixtureStatusUpcoming,
		}
		if err := s.writeWithRetry(ctx, func() error {
			return s.seasonRepo.InsertFixture(ctx, fixture)
		}); err != nil {
			return fmt.Errorf("insert fixture %s vs %s: %w", p.HomeClubID, p.AwayClubID, err)
		}
		s.throttle()
	}

	if !active.FixturesGenerated {
		if err := s.seasonRepo.MarkFixturesGenerated(ctx, active.ID); err != nil {
			return fmt.Errorf("mark fixtures generated: %w", err)
		}
	}

	return nil
}

// applyStandings folds the simulated batch into the per-club standings
// rows, creating zero rows for clubs seen for the first time.
func (s *MatchdayService) applyStandings(ctx context.Context, active season.Season, fixtures []season.Fixture, batch []season.Result) error {
	rows, err := s.seasonRepo.TeamSeasons(ctx, active.ID)
	if err != nil {
		return fmt.Errorf("load standings: %w", err)
	}

	byClub := make(map[string]*season.TeamSeason, len(rows))
	for i := range rows {
		byClub[rows[i].ClubID] = &rows[i]
	}
	ensureRow := func(clubID string) *season.TeamSeason {
		if row, ok := byClub[clubID]; ok {
			return row
		}
		row := &season.TeamSeason{SeasonID: active.ID, ClubID: clubID}
		byClub[clubID] = row
		return row
	}

	scores := make(map[string]season.Result, len(batch))
	for _, res := range batch {
		scores[res.FixtureID] = res
	}

	touched := make([]string, 0, 2*len(fixtures))
	for _, f := range fixtures {
		res, ok := scores[f.ID]
		if !ok {
			continue
		}
		ensureRow(f.HomeClubID).Apply(res.HomeGoals, res.AwayGoals)
		ensureRow(f.AwayClubID).Apply(res.AwayGoals, res.HomeGoals)
		touched = append(touched, f.HomeClubID, f.AwayClubID)
	}
	sort.Strings(touched)

	for _, clubID := range touched {
		row := byClub[clubID]
		if err := s.writeWithRetry(ctx, func() error {
			return s.seasonRepo.UpsertTeamSeason(ctx, *row)
		}); err != nil {
			return fmt.Errorf("upsert standings for club %s: %w", clubID, err)
		}
		s.throttle()
	}

	return nil
}

func (s *MatchdayService) drawGoals(home bool) int {
	if s.cfg.Model == "uniform" {
		return int(s.randFloat() * 4)
	}

	lambda := awayGoalLambda
	if home {
		lambda = homeGoalLambda
	}
	return s.poisson(lambda)
}

// poisson samples by inversion of the cumulative product (Knuth),
// capped at maxGoals.
func (s *MatchdayService) poisson(lambda float64) int {
	threshold := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= s.randFloat()
		if p <= threshold {
			return k
		}
		k++
		if k >= maxGoals {
			return maxGoals
		}
	}
}

func (s *MatchdayService) writeWithRetry(ctx context.Context, write func() error) error {
	var err error
	for attempt := 0; attempt < s.cfg.WriteRetries; attempt++ {
		if attempt > 0 {
			s.sleep(s.cfg.WriteBackoff * time.Duration(1<<(attempt-1)))
		}
		if err = write(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return err
}

func (s *MatchdayService) throttle() {
	if s.cfg.WriteThrottle > 0 {
		s.sleep(s.cfg.WriteThrottle)
	}
}

// ResetSync deactivates every season and starts all tiers over at
// matchday 1. Fixtures regenerate lazily on the next simulated day.
func (s *MatchdayService) ResetSync(ctx context.Context) (ResetReport, error) {
	ctx, span := startUsecaseSpan(ctx, "MatchdayService.ResetSync")
	defer span.End()

	now := s.now().UTC()
	if err := s.seasonRepo.DeactivateAll(ctx, now); err != nil {
		return ResetReport{}, fmt.Errorf("deactivate seasons: %w", err)
	}

	report := ResetReport{Seasons: make([]season.Season, 0, len(season.AllTiers))}
	for _, tier := range season.AllTiers {
		created, err := s.seasonRepo.CreateSeason(ctx, tier, now)
		if err != nil {
			return ResetReport{}, fmt.Errorf("create %s season: %w", tier, err)
		}
		if _, err := s.seasonRepo.EnsureProgress(ctx, created.ID); err != nil {
			return ResetReport{}, fmt.Errorf("ensure %s progress: %w", tier, err)
		}
		report.Seasons = append(report.Seasons, created)
	}

	s.logger.InfoContext(ctx, "seasons reset", slog.Int("seasons", len(report.Seasons)))

	return report, nil
}

// SeasonsStatus lists every active season in tier order.
func (s *MatchdayService) SeasonsStatus(ctx context.Context) ([]season.Season, error) {
	seasons, err := s.seasonRepo.ListActiveSeasons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active seasons: %w", err)
	}

	order := make(map[season.Tier]int, len(season.AllTiers))
	for i, tier := range season.AllTiers {
		order[tier] = i
	}
	sort.SliceStable(seasons, func(i, j int) bool { return order[seasons[i].Tier] < order[seasons[j].Tier] })

	return seasons, nil
}

// ListLeagues summarizes each tier's active season for the public read.
func (s *MatchdayService) ListLeagues(ctx context.Context) ([]LeagueInfo, error) {
	seasons, err := s.SeasonsStatus(ctx)
	if err != nil {
		return nil, err
	}

	leagues := make([]LeagueInfo, 0, len(seasons))
	for _, ssn := range seasons {
		leagues = append(leagues, LeagueInfo{
			Tier:            ssn.Tier,
			SeasonID:        ssn.ID,
			CurrentMatchday: ssn.CurrentMatchday,
			TotalMatchdays:  ssn.TotalMatchdays,
		})
	}

	return leagues, nil
}

func (s *MatchdayService) activeSeasonForTier(ctx context.Context, rawTier string) (season.Season, error) {
	tier := season.Tier(strings.ToLower(strings.TrimSpace(rawTier)))
	if !season.ValidTier(tier) {
		return season.Season{}, fmt.Errorf("%w: unknown league %q", ErrInvalidInput, rawTier)
	}

	active, exists, err := s.seasonRepo.ActiveSeason(ctx, tier)
	if err != nil {
		return season.Season{}, fmt.Errorf("load active season: %w", err)
	}
	if !exists {
		return season.Season{}, fmt.Errorf("%w: no active season for league %s", ErrNotFound, tier)
	}

	return active, nil
}

// Table returns the sorted standings for a tier's active season.
func (s *MatchdayService) Table(ctx context.Context, rawTier string) ([]season.TeamSeason, error) {
	active, err := s.activeSeasonForTier(ctx, rawTier)
	if err != nil {
		return nil, err
	}

	rows, err := s.seasonRepo.TeamSeasons(ctx, active.ID)
	if err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	season.SortTable(rows)

	return rows, nil
}

// Fixtures lists a tier's fixtures, optionally filtered to one matchday.
func (s *MatchdayService) Fixtures(ctx context.Context, rawTier string, matchday *int) ([]season.Fixture, error) {
	active, err := s.activeSeasonForTier(ctx, rawTier)
	if err != nil {
		return nil, err
	}

	fixtures, err := s.seasonRepo.ListFixtures(ctx, active.ID, matchday, false)
	if err != nil {
		return nil, fmt.Errorf("list fixtures: %w", err)
	}

	return fixtures, nil
}

// Results lists only played fixtures for a tier.
func (s *MatchdayService) Results(ctx context.Context, rawTier string, matchday *int) ([]season.Fixture, error) {
	active, err := s.activeSeasonForTier(ctx, rawTier)
	if err != nil {
		return nil, err
	}

	fixtures, err := s.seasonRepo.ListFixtures(ctx, active.ID, matchday, true)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	return fixtures, nil
}
