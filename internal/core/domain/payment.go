package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// IsTerminal returns true for COMPLETED and FAILED.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// Valid reports whether s is one of the four known states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo encodes PENDING -> PROCESSING -> COMPLETED | FAILED.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusProcessing
	case PaymentStatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// PaymentRecord is one agent-to-agent transfer and its settlement outcome.
type PaymentRecord struct {
	ID            uuid.UUID     `json:"id"`
	FromAgentID   string        `json:"from_agent_id"`
	ToAgentID     string        `json:"to_agent_id"`
	Amount        int64         `json:"amount"` // Smallest unit, always > 0
	Memo          *string       `json:"memo,omitempty"`
	SettlementID  *string       `json:"settlement_id,omitempty"` // Set iff COMPLETED
	Status        PaymentStatus `json:"status"`
	PrivacyToken  *string       `json:"privacy_token,omitempty"`
	FailureReason *string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"` // Last status transition
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the payment is in a final state.
func (p *PaymentRecord) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// InvolvesAgent reports whether agentID is the sender or the recipient.
func (p *PaymentRecord) InvolvesAgent(agentID string) bool {
	return p.FromAgentID == agentID || p.ToAgentID == agentID
}

// Complete records a confirmed settlement.
func (p *PaymentRecord) Complete(settlementID string, now time.Time) {
	p.Status = PaymentStatusCompleted
	p.SettlementID = &settlementID
	p.CompletedAt = &now
	p.UpdatedAt = now
}

// Fail records a failed settlement attempt.
func (p *PaymentRecord) Fail(reason string, now time.Time) {
	p.Status = PaymentStatusFailed
	p.FailureReason = &reason
	p.CompletedAt = &now
	p.UpdatedAt = now
}

// SortOrder selects the creation-time order of payment listings.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)
