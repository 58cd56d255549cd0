package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// DefaultMaxAttempts bounds how often a transaction is replayed after a serialization failure.
const DefaultMaxAttempts = 3

// DefaultRetryBackoff is the base delay before the first replay.
const DefaultRetryBackoff = 20 * time.Millisecond

type beginFunc func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)

// TxRunner opens ReadCommitted transactions and replays them when Postgres
// reports a serialization failure or deadlock. Ledger mutations lock their
// rows with FOR UPDATE or an atomic upsert, so contenders queue on the row
// instead of aborting on a stale snapshot.
type TxRunner struct {
	begin       beginFunc
	isoLevel    pgx.TxIsoLevel
	maxAttempts int
	backoff     time.Duration
	onRetry     func(attempt int, err error)
}

// NewTxRunner builds a runner. maxAttempts <= 0 falls back to DefaultMaxAttempts.
func NewTxRunner(pool *pgxpool.Pool, maxAttempts int) *TxRunner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	r := &TxRunner{isoLevel: pgx.ReadCommitted, maxAttempts: maxAttempts, backoff: DefaultRetryBackoff}
	if pool != nil {
		r.begin = pool.BeginTx
	}
	return r
}

// OnRetry registers a hook invoked before each replay.
func (r *TxRunner) OnRetry(fn func(attempt int, err error)) {
	r.onRetry = fn
}

// SetBackoff changes the base replay delay. d <= 0 disables waiting.
func (r *TxRunner) SetBackoff(d time.Duration) {
	r.backoff = d
}

// Run executes fn inside a transaction, replaying it on retryable failures
// after an exponential, jittered delay. fn must not keep state from a failed
// attempt.
func (r *TxRunner) Run(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil || r.begin == nil {
		return errors.New("platform/db: tx runner not initialised")
	}
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.once(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == r.maxAttempts {
			break
		}
		if r.onRetry != nil {
			r.onRetry(attempt, err)
		}
		if err := sleep(ctx, r.delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", shared.ErrConcurrencyConflict, r.maxAttempts, lastErr)
}

func (r *TxRunner) once(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.begin(ctx, pgx.TxOptions{IsoLevel: r.isoLevel})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// delay doubles the base per attempt and adds up to one base of jitter so
// replaying contenders spread out.
func (r *TxRunner) delay(attempt int) time.Duration {
	if r.backoff <= 0 {
		return 0
	}
	d := r.backoff << (attempt - 1)
	return d + rand.N(r.backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRetryable reports serialization failures (40001) and deadlocks (40P01).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsForeignKeyViolation reports SQLSTATE 23503.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsUniqueViolation reports SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
