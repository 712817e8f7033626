package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// AgentRepo implements ports.AgentRepository.
type AgentRepo struct {
	pool Pool
}

// NewAgentRepo creates a new AgentRepo.
func NewAgentRepo(pool Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// Create inserts the agent and its wallet in one transaction.
func (r *AgentRepo) Create(ctx context.Context, a *domain.AgentAccount, w *domain.WalletRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO agents (id, address, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Address, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrConflict(fmt.Sprintf("agent %s already registered", a.ID))
		}
		return fmt.Errorf("insert agent: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (agent_id, address, encrypted_key, balance, last_synced_at, imported, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, w.Address, w.EncryptedKey, w.Balance, w.LastSyncedAt, w.Imported, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit agent: %w", err)
	}
	return nil
}

// GetByID fetches an agent by its identifier.
func (r *AgentRepo) GetByID(ctx context.Context, id string) (*domain.AgentAccount, error) {
	query := `SELECT id, address, is_active, created_at, updated_at FROM agents WHERE id = $1`

	a := &domain.AgentAccount{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Address, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent by id: %w", err)
	}
	return a, nil
}

// List returns all agents in registration order.
func (r *AgentRepo) List(ctx context.Context) ([]domain.AgentAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, address, is_active, created_at, updated_at FROM agents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.AgentAccount
	for rows.Next() {
		var a domain.AgentAccount
		if err := rows.Scan(&a.ID, &a.Address, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return agents, nil
}

// Deactivate flips is_active only on active rows.
func (r *AgentRepo) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND is_active`, at, id)
	if err != nil {
		return false, fmt.Errorf("deactivate agent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
