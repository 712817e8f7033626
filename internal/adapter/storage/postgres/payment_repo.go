package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, from_agent_id, to_agent_id, amount, memo, settlement_id, status,
		privacy_token, failure_reason, created_at, updated_at, completed_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.PaymentRecord) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.FromAgentID, p.ToAgentID, p.Amount, p.Memo, p.SettlementID, p.Status,
		p.PrivacyToken, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// TransitionStatus moves the row from one status to another only if it is
// still in from. The WHERE clause makes this a single-row compare-and-swap.
func (r *PaymentRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, at time.Time) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal payment transition %s -> %s", from, to)
	}

	query := `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	tag, err := r.pool.Exec(ctx, query, to, at, id, from)
	if err != nil {
		return false, fmt.Errorf("transition payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finalize writes the terminal fields of a record that is still PROCESSING.
func (r *PaymentRepo) Finalize(ctx context.Context, p *domain.PaymentRecord) (bool, error) {
	if !p.Status.IsTerminal() {
		return false, fmt.Errorf("finalize with non-terminal status %s", p.Status)
	}

	query := `UPDATE payments
		SET status = $1, settlement_id = $2, failure_reason = $3, completed_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7`

	tag, err := r.pool.Exec(ctx, query,
		p.Status, p.SettlementID, p.FailureReason, p.CompletedAt, p.UpdatedAt,
		p.ID, domain.PaymentStatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("finalize payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListForAgent fetches payments the agent sent or received.
func (r *PaymentRepo) ListForAgent(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("(from_agent_id = $%d OR to_agent_id = $%d)", argIdx, argIdx))
	args = append(args, params.AgentID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	order := "ASC"
	if params.Order == domain.SortDescending {
		order = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s ORDER BY created_at %s, id %s`,
		paymentColumns, strings.Join(conditions, " AND "), order, order)
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, params.Limit)
	}

	return r.list(ctx, query, args...)
}

// ListStale returns payments in status whose updated_at is before cutoff.
func (r *PaymentRepo) ListStale(ctx context.Context, status domain.PaymentStatus, cutoff time.Time) ([]domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`

	return r.list(ctx, query, status, cutoff)
}

func (r *PaymentRepo) list(ctx context.Context, query string, args ...any) ([]domain.PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	p := &domain.PaymentRecord{}
	err := row.Scan(
		&p.ID, &p.FromAgentID, &p.ToAgentID, &p.Amount, &p.Memo, &p.SettlementID, &p.Status,
		&p.PrivacyToken, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
