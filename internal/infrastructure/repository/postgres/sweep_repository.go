package postgres

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/gafferhq/brain/internal/domain/sweep"
)

// Fixed key for the sweep's transaction-scoped advisory lock.
const sweepAdvisoryLockKey int64 = 74_410_021

type SweepRepository struct {
	db *sqlx.DB
}

func NewSweepRepository(db *sqlx.DB) *SweepRepository {
	return &SweepRepository{db: db}
}

type sweepStateRow struct {
	LastSweepUTCDay *int64     `db:"last_sweep_utc_day"`
	LastSweepAt     *time.Time `db:"last_sweep_at"`
	RunCount        int        `db:"run_count"`
}

func (r sweepStateRow) toDomain() sweep.State {
	return sweep.State{
		LastSweepUTCDay: r.LastSweepUTCDay,
		LastSweepAt:     r.LastSweepAt,
		RunCount:        r.RunCount,
	}
}

func (r *SweepRepository) Status(ctx context.Context) (sweep.State, error) {
	const query = `SELECT last_sweep_utc_day, last_sweep_at, run_count FROM sweep_state WHERE id = 1`

	var row sweepStateRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return sweep.State{}, crerr.Wrap(err, "get sweep state")
	}

	return row.toDomain(), nil
}

// Claim decides, under the advisory lock, whether this invocation owns
// today's sweep. A concurrent claimer blocks on the lock; once it gets
// in, the stamped day makes it short-circuit.
func (r *SweepRepository) Claim(ctx context.Context, todayUTCDay int64, now time.Time, force bool) (sweep.ClaimOutcome, error) {
	var outcome sweep.ClaimOutcome
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := advisoryLock(ctx, tx, sweepAdvisoryLockKey); err != nil {
			return err
		}

		const lockQuery = `
SELECT last_sweep_utc_day, last_sweep_at, run_count
FROM sweep_state
WHERE id = 1
FOR UPDATE`

		var row sweepStateRow
		if err := tx.GetContext(ctx, &row, lockQuery); err != nil {
			return crerr.Wrap(err, "lock sweep state")
		}
		outcome.State = row.toDomain()

		if !force && !sweep.Scheduled(todayUTCDay) {
			outcome.Reason = sweep.ReasonNotScheduled
			return nil
		}
		if row.LastSweepUTCDay != nil && *row.LastSweepUTCDay == todayUTCDay {
			outcome.Reason = sweep.ReasonAlreadyRanToday
			return nil
		}

		const stampQuery = `
UPDATE sweep_state
SET last_sweep_utc_day = $1, last_sweep_at = $2, run_count = run_count + 1
WHERE id = 1
RETURNING last_sweep_utc_day, last_sweep_at, run_count`

		if err := tx.GetContext(ctx, &row, stampQuery, todayUTCDay, now); err != nil {
			return crerr.Wrap(err, "stamp sweep run")
		}

		outcome.Claimed = true
		outcome.State = row.toDomain()
		return nil
	})
	if err != nil {
		return sweep.ClaimOutcome{}, err
	}

	return outcome, nil
}
