package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gafferhq/brain/internal/domain/sweep"
)

type SweepRepository struct {
	mu    sync.Mutex
	state sweep.State
}

func NewSweepRepository() *SweepRepository {
	return &SweepRepository{}
}

func (r *SweepRepository) Status(_ context.Context) (sweep.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state, nil
}

func (r *SweepRepository) Claim(_ context.Context, todayUTCDay int64, now time.Time, force bool) (sweep.ClaimOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && !sweep.Scheduled(todayUTCDay) {
		return sweep.ClaimOutcome{Reason: sweep.ReasonNotScheduled, State: r.state}, nil
	}
	if r.state.LastSweepUTCDay != nil && *r.state.LastSweepUTCDay == todayUTCDay {
		return sweep.ClaimOutcome{Reason: sweep.ReasonAlreadyRanToday, State: r.state}, nil
	}

	day := todayUTCDay
	at := now
	r.state.LastSweepUTCDay = &day
	r.state.LastSweepAt = &at
	r.state.RunCount++

	return sweep.ClaimOutcome{Claimed: true, State: r.state}, nil
}
