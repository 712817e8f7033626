package domain

import (
	"regexp"
	"time"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidAgentID reports whether id is an acceptable agent identifier:
// 1-128 characters of letters, digits, '_', '.', '-', not starting with punctuation.
func ValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// AgentAccount is a registered autonomous agent. Accounts are never deleted;
// deactivation is the only lifecycle change.
type AgentAccount struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Deactivate marks the account inactive. It reports false, and leaves
// UpdatedAt untouched, when the account was already inactive.
func (a *AgentAccount) Deactivate(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	a.IsActive = false
	a.UpdatedAt = now
	return true
}
