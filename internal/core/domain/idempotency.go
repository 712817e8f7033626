package domain

import "github.com/google/uuid"

// IdempotencyEntry maps a caller's Idempotency-Key to the payment it created.
type IdempotencyEntry struct {
	Key       string    `json:"key"` // Format: "agent_id:idempotency_key"
	PaymentID uuid.UUID `json:"payment_id"`
}

// BuildIdempotencyKey scopes a client key to the sending agent.
func BuildIdempotencyKey(agentID, clientKey string) string {
	return agentID + ":" + clientKey
}
