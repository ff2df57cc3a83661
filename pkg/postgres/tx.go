package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jakechorley/volunteer-rota/pkg/db"
)

// Postgres error codes reported for uniqueness rules and lost races
const (
	foreignKeyViolation  = "23503"
	uniqueViolation      = "23505"
	exclusionViolation   = "23P01"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// mapError converts storage errors into the typed errors of package db
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation, exclusionViolation:
			return &db.ConflictError{Constraint: pgErr.ConstraintName, Detail: pgErr.Detail}
		case serializationFailure, deadlockDetected:
			// The server aborted this transaction in favour of a concurrent one
			return &db.ConflictError{Constraint: "concurrent_update", Detail: pgErr.Message}
		}
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// WithTx runs fn in a transaction and commits if it returns nil.
// Deferred constraints are checked on commit, so a conflict may surface there.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	pgTx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &tx{q: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}

	return nil
}

// tx implements db.Tx on an open pgx transaction
type tx struct {
	q querier
}

// LockGroup takes a transaction-scoped advisory lock keyed on the group,
// released when the transaction ends
func (t *tx) LockGroup(ctx context.Context, groupID string) error {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "group:"+groupID); err != nil {
		return fmt.Errorf("failed to lock group %s: %w", groupID, mapError(err))
	}
	return nil
}
