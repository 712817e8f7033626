package ports

import (
	"context"
	"time"

	"agentpay/internal/core/domain"

	"github.com/google/uuid"
)

// AgentRepository persists agent accounts together with their wallets.
type AgentRepository interface {
	// Create stores the account and its wallet atomically. A duplicate agent
	// ID yields an apperror Conflict.
	Create(ctx context.Context, agent *domain.AgentAccount, wallet *domain.WalletRecord) error
	GetByID(ctx context.Context, id string) (*domain.AgentAccount, error)
	// List returns every account in registration order.
	List(ctx context.Context) ([]domain.AgentAccount, error)
	// Deactivate flips an active account to inactive. It reports false when
	// the account is missing or already inactive.
	Deactivate(ctx context.Context, id string, at time.Time) (bool, error)
}

// WalletRepository defines persistence operations for wallets.
type WalletRepository interface {
	GetByAgentID(ctx context.Context, agentID string) (*domain.WalletRecord, error)
	UpdateBalance(ctx context.Context, agentID string, balance int64, syncedAt time.Time) error
}

// PaymentRepository is the payment-id to PaymentRecord table.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.PaymentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	// TransitionStatus is a compare-and-swap on the status column. It reports
	// true only for the single caller that observed from and wrote to.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, at time.Time) (bool, error)
	// Finalize writes the terminal fields of a PROCESSING record. It reports
	// false if the record was no longer PROCESSING.
	Finalize(ctx context.Context, payment *domain.PaymentRecord) (bool, error)
	ListForAgent(ctx context.Context, params PaymentListParams) ([]domain.PaymentRecord, error)
	// ListStale returns records in status whose last transition happened before cutoff.
	ListStale(ctx context.Context, status domain.PaymentStatus, cutoff time.Time) ([]domain.PaymentRecord, error)
}

// PaymentListParams filters the payments an agent participates in.
type PaymentListParams struct {
	AgentID string
	Status  *domain.PaymentStatus
	Order   domain.SortOrder // asc (default) or desc by creation time
	Limit   int              // 0 = no limit
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// IdempotencyPending is what IdempotencyCache.Get returns for a key that is
// reserved but whose payment has not been recorded yet.
const IdempotencyPending = "pending"

// IdempotencyCache maps send-payment idempotency keys to payment IDs. A send
// reserves its key before creating the payment, so at most one payment is
// ever created per key.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (string, error) // Returns "" on miss
	// Reserve atomically claims an absent or expired key. It reports false
	// when the key is already held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Set records the payment ID for a reserved key.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Release drops a reservation that never received a payment ID.
	Release(ctx context.Context, key string) error
}
