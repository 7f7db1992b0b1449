package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool represents the subset of pgxpool.Pool used by the store.
//
// Tests supply a lightweight mock implementation; *pgxpool.Pool satisfies it
// in production.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// EventRepository holds canonical events and performs provider reconciliation.
type EventRepository interface {
	// ReplaceForSource atomically swaps every event of (userID, source) for events.
	ReplaceForSource(ctx context.Context, userID string, source Source, events []Event) (int, error)
	// ListByUser returns a user's events ordered by start; an empty source means all sources.
	ListByUser(ctx context.Context, userID string, source Source) ([]Event, error)
}

// HandoffRepository stores sealed token bundles between the OAuth callback and the client.
type HandoffRepository interface {
	Create(ctx context.Context, h Handoff) error
	Redeem(ctx context.Context, codeHash string, now time.Time) (*Handoff, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	pool PgxPool

	Events   EventRepository
	Handoffs HandoffRepository
}

// New wires concrete repository implementations with shared connection pool.
func New(pool PgxPool) *Store {
	return &Store{
		pool:     pool,
		Events:   &eventRepo{pool: pool},
		Handoffs: &handoffRepo{pool: pool},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}
