package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyCache on PostgreSQL for
// deployments without Redis.
type IdempotencyRepo struct {
	pool Pool
	now  func() time.Time
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool, now: time.Now}
}

// Get returns the payment ID stored under key, ports.IdempotencyPending for a
// reservation, or "" when absent or expired.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT COALESCE(payment_id::text, '') FROM idempotency_keys WHERE key = $1 AND expires_at > $2`

	var paymentID string
	err := r.pool.QueryRow(ctx, query, key, r.now().UTC()).Scan(&paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get idempotency key: %w", err)
	}
	if paymentID == "" {
		return ports.IdempotencyPending, nil
	}
	return paymentID, nil
}

// Reserve inserts a row without a payment ID. The primary key serializes
// concurrent reservations; an expired row is taken over.
func (r *IdempotencyRepo) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := r.now().UTC()
	query := `INSERT INTO idempotency_keys (key, payment_id, expires_at) VALUES ($1, NULL, $2)
		ON CONFLICT (key) DO UPDATE SET payment_id = NULL, expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= $3`

	tag, err := r.pool.Exec(ctx, query, key, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Set records the payment ID for key.
func (r *IdempotencyRepo) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	paymentID, err := uuid.Parse(value)
	if err != nil {
		return fmt.Errorf("idempotency value is not a payment id: %w", err)
	}

	query := `INSERT INTO idempotency_keys (key, payment_id, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payment_id = EXCLUDED.payment_id, expires_at = EXCLUDED.expires_at`

	if _, err := r.pool.Exec(ctx, query, key, paymentID, r.now().UTC().Add(ttl)); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

// Release deletes a reservation that never received a payment ID.
func (r *IdempotencyRepo) Release(ctx context.Context, key string) error {
	query := `DELETE FROM idempotency_keys WHERE key = $1 AND payment_id IS NULL`
	if _, err := r.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
