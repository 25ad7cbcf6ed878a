package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/pagescan/internal/platform/logger"
)

// TxFn is a function that executes within a database transaction.
// The transaction is committed if it returns nil and rolled back otherwise.
// A TxRunner may call it more than once, so it must reset any state it
// accumulates outside the transaction.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction executes fn within a single transaction on db, rolling
// back on error or panic.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if txErr := tx.Rollback(); txErr != nil {
				log.Error("failed to roll back transaction after panic",
					slog.String("error", txErr.Error()),
					slog.Any("panic", p))
			} else {
				log.Error("rolled back transaction after panic",
					slog.Any("panic", p))
			}
			// ALLOW-PANIC: Propagating caught panic from transaction
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			log.Error("failed to roll back transaction",
				slog.String("rollback_error", rollbackErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf(
				"error rolling back transaction: %v (original error: %w)",
				rollbackErr,
				err,
			)
		}
		log.Debug("rolled back transaction due to error",
			slog.String("error", err.Error()))
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TxRunner runs a function inside a transaction. Services depend on this
// instead of *sql.DB so they can be exercised without a database.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn TxFn) error
}

// DBTxRunner is the *sql.DB backed TxRunner. With a retry policy it reruns
// the whole transaction when it fails with an error the policy deems
// transient, such as a deadlock between a submit and a worker callback.
type DBTxRunner struct {
	db          *sql.DB
	maxAttempts int
	retryable   func(error) bool
}

// TxRunnerOption configures a DBTxRunner.
type TxRunnerOption func(*DBTxRunner)

// WithRetry allows up to attempts runs of a transaction whose error
// satisfies retryable.
func WithRetry(attempts int, retryable func(error) bool) TxRunnerOption {
	return func(r *DBTxRunner) {
		if attempts > 0 && retryable != nil {
			r.maxAttempts = attempts
			r.retryable = retryable
		}
	}
}

// NewDBTxRunner returns a TxRunner that opens transactions on db. Without
// options every transaction runs once.
func NewDBTxRunner(db *sql.DB, opts ...TxRunnerOption) *DBTxRunner {
	r := &DBTxRunner{db: db, maxAttempts: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInTransaction runs fn in a transaction, retrying transient failures.
func (r *DBTxRunner) RunInTransaction(ctx context.Context, fn TxFn) error {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = RunInTransaction(ctx, r.db, fn)
		if err == nil || r.retryable == nil || !r.retryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
		logger.FromContext(ctx).Warn("transient transaction failure, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return err
}
