// Package postgres implements the store interfaces with hand-written SQL
// over pgx. All status and counter changes are single-row conditional
// updates so concurrent writers cannot corrupt the state machine or the
// quota counters.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halftone-io/halftone/internal/store"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx the stores query through.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Stores bundles the Postgres-backed repositories over one pool.
type Stores struct {
	Users         *UserStore
	Images        *ImageStore
	Tasks         *TaskStore
	Quotas        *QuotaStore
	Subscriptions *SubscriptionStore
}

func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Users:         &UserStore{db: pool},
		Images:        &ImageStore{db: pool},
		Tasks:         &TaskStore{pool: pool},
		Quotas:        &QuotaStore{db: pool},
		Subscriptions: &SubscriptionStore{db: pool},
	}
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
