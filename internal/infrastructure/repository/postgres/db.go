package postgres

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 10
	connMaxIdleTime = 30 * time.Second
	connectTimeout  = 5 * time.Second
)

// Connect opens the traced pool, verifies connectivity and ensures the
// sweep state singleton exists.
func Connect(ctx context.Context, dbURL string, opts ...otelsql.Option) (*sqlx.DB, error) {
	opts = append([]otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	}, opts...)
	db, err := otelsqlx.Open("postgres", dbURL, opts...)
	if err != nil {
		return nil, crerr.Wrap(err, "open postgres pool")
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, crerr.Wrap(err, "ping postgres")
	}

	if err := ensureSweepState(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func ensureSweepState(ctx context.Context, db *sqlx.DB) error {
	const query = `
INSERT INTO sweep_state (id, run_count)
VALUES (1, 0)
ON CONFLICT (id) DO NOTHING`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return crerr.Wrap(err, "ensure sweep state singleton")
	}

	return nil
}

// withTx runs fn inside one transaction on a single pooled connection,
// so advisory locks and SELECT ... FOR UPDATE compose. Rollback on any
// error, commit otherwise.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return crerr.Wrap(err, "begin tx")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return crerr.Wrap(err, "commit tx")
	}

	return nil
}

// advisoryLock takes a transaction-scoped advisory lock; it releases at
// commit or rollback.
func advisoryLock(ctx context.Context, tx *sqlx.Tx, key int64) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return crerr.Wrapf(err, "acquire advisory lock %d", key)
	}
	return nil
}
