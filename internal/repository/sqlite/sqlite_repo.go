package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/introdesk/internal/db"
	"github.com/garnizeh/introdesk/pkg/repository"
)

// SQLiteRepo implements the repository interfaces on the identifier-addressed
// SQLite store. Every mutating statement resolves the target row by its id
// column in the same round trip, so there is no positional race between
// locating a row and writing it.
type SQLiteRepo struct {
	conn *db.DB
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.ConnectionRepo = (*SQLiteRepo)(nil)
var _ repository.DealRepo = (*SQLiteRepo)(nil)
var _ repository.SignalRepo = (*SQLiteRepo)(nil)
var _ repository.ClientRepo = (*SQLiteRepo)(nil)

// New creates the repository and validates every declared table schema
// against the live database, failing fast on a missing column instead of
// silently dropping writes to it later.
func New(ctx context.Context, conn *db.DB) (*SQLiteRepo, error) {
	r := &SQLiteRepo{conn: conn}
	if err := r.validateSchemas(ctx); err != nil {
		return nil, fmt.Errorf("validate store schemas: %w", err)
	}
	return r, nil
}

// classify maps driver failures onto the shared error taxonomy before they
// can leak to a handler.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return repository.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", repository.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", repository.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// millisOrNil converts an optional timestamp for storage.
func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func timePtr(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := fromMillis(ns.Int64)
	return &t
}
