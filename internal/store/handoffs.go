package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// handoffRepo implements HandoffRepository.
type handoffRepo struct {
	pool PgxPool
}

func (r *handoffRepo) Create(ctx context.Context, h Handoff) error {
	defer observeDB(ctx, "handoffs.create")()

	const q = `INSERT INTO token_handoffs (code_hash, provider, sealed, expires_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, q, h.CodeHash, string(h.Provider), h.Sealed, h.ExpiresAt); err != nil {
		return fmt.Errorf("create handoff: %w", err)
	}
	return nil
}

// Redeem consumes a handoff. The row is deleted by the same statement that reads it,
// so a code can only ever be redeemed once.
func (r *handoffRepo) Redeem(ctx context.Context, codeHash string, now time.Time) (*Handoff, error) {
	defer observeDB(ctx, "handoffs.redeem")()

	const q = `DELETE FROM token_handoffs
WHERE code_hash = $1 AND expires_at > $2
RETURNING provider, sealed, expires_at, created_at`

	h := Handoff{CodeHash: codeHash}
	var provider string
	err := r.pool.QueryRow(ctx, q, codeHash, now).Scan(&provider, &h.Sealed, &h.ExpiresAt, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redeem handoff: %w", err)
	}
	h.Provider = Source(provider)
	return &h, nil
}

func (r *handoffRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	defer observeDB(ctx, "handoffs.purge_expired")()

	tag, err := r.pool.Exec(ctx, `DELETE FROM token_handoffs WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge handoffs: %w", err)
	}
	return tag.RowsAffected(), nil
}
