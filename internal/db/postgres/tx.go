package postgres

import (
	"Fedipub/internal/core/events"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// InsertOutcome tells whether an insert created the row or found one with the
// same unique key already in place.
type InsertOutcome int

const (
	Created InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already-exists"
	default:
		return "unknown"
	}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertOrGet runs insertQuery, which must be an
// INSERT ... ON CONFLICT DO NOTHING RETURNING id. When the conflict path is
// taken no row comes back and the existing id is read with lookupQuery.
// Under READ COMMITTED the lookup sees the row committed by the concurrent
// writer that won the race.
func insertOrGet(ctx context.Context, q rowQuerier, insertQuery string, insertArgs []any, lookupQuery string, lookupArgs ...any) (int64, InsertOutcome, error) {
	var id int64
	err := q.QueryRowContext(ctx, insertQuery, insertArgs...).Scan(&id)
	if err == nil {
		return id, Created, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("failed to insert: %w", err)
	}

	if err := q.QueryRowContext(ctx, lookupQuery, lookupArgs...).Scan(&id); err != nil {
		return 0, 0, fmt.Errorf("failed to read existing row after conflict: %w", err)
	}
	return id, AlreadyExists, nil
}

// rollback is deferred right after BeginTx. After a successful commit it is
// a no-op.
func rollback(tx *sql.Tx, logger *slog.Logger, attrs ...any) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn("failed to rollback transaction", append(attrs, "error", err)...)
	}
}

// emitAll delivers events in order after a commit. Every event is emitted
// even when an earlier one fails; the failures are joined.
func emitAll(ctx context.Context, emitter events.Emitter, pending []events.Event) error {
	if emitter == nil {
		return nil
	}
	var errs []error
	for _, e := range pending {
		if err := emitter.EmitAsync(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
