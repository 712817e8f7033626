package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpay/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository. Wallets are inserted by
// AgentRepo.Create together with their agent.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetByAgentID fetches the wallet owned by an agent.
func (r *WalletRepo) GetByAgentID(ctx context.Context, agentID string) (*domain.WalletRecord, error) {
	query := `SELECT agent_id, address, encrypted_key, balance, last_synced_at, imported, created_at
		FROM wallets WHERE agent_id = $1`

	w := &domain.WalletRecord{}
	err := r.pool.QueryRow(ctx, query, agentID).Scan(
		&w.AgentID, &w.Address, &w.EncryptedKey, &w.Balance,
		&w.LastSyncedAt, &w.Imported, &w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by agent id: %w", err)
	}
	return w, nil
}

// UpdateBalance stores a freshly observed ledger balance.
func (r *WalletRepo) UpdateBalance(ctx context.Context, agentID string, balance int64, syncedAt time.Time) error {
	query := `UPDATE wallets SET balance = $1, last_synced_at = $2 WHERE agent_id = $3`

	tag, err := r.pool.Exec(ctx, query, balance, syncedAt, agentID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", agentID)
	}
	return nil
}
