package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Beginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxOptions configures WithTx.
type TxOptions struct {
	IsoLevel pgx.TxIsoLevel
	// Attempts bounds retries on serialization failures and deadlocks.
	Attempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// DefaultTxOptions runs at read committed and relies on row locks.
var DefaultTxOptions = TxOptions{IsoLevel: pgx.ReadCommitted, Attempts: 3, Backoff: 20 * time.Millisecond}

// WithTx executes fn within a transaction, committing when it returns nil.
// Serialization failures and deadlocks restart fn from scratch.
func WithTx(ctx context.Context, pool Beginner, opts TxOptions, fn func(pgx.Tx) error) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runTx(ctx, pool, opts.IsoLevel, fn)
		if err == nil || !Retryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Backoff * time.Duration(attempt)):
		}
	}
	return err
}

func runTx(ctx context.Context, pool Beginner, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
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

// Retryable reports serialization failures (40001) and deadlocks (40P01).
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsUniqueViolation reports a 23505 error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
