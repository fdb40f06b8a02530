package sweep

import (
	"context"
	"time"
)

// ClaimOutcome tells one sweep invocation whether it won today's run.
type ClaimOutcome struct {
	Claimed bool
	// Reason is set when Claimed is false: "not_scheduled" or
	// "already_ran_today".
	Reason string
	State  State
}

const (
	ReasonNotScheduled    = "not_scheduled"
	ReasonAlreadyRanToday = "already_ran_today"
)

// Repository serializes sweep runs. Claim must take the advisory lock
// and the state row lock in one transaction: a concurrent claimer
// blocks on the lock and then observes today's stamp.
type Repository interface {
	Status(ctx context.Context) (State, error)
	Claim(ctx context.Context, todayUTCDay int64, now time.Time, force bool) (ClaimOutcome, error)
}
