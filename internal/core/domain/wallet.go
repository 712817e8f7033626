package domain

import "time"

// WalletRecord is the custodial wallet of exactly one agent.
// Imported is set when the public address was supplied by the caller; the
// sealed credential then does not control Address.
type WalletRecord struct {
	AgentID      string    `json:"agent_id"`
	Address      string    `json:"address"`
	EncryptedKey string    `json:"-"`       // Sealed signing credential, write-once, never expose
	Balance      int64     `json:"balance"` // Cached, smallest unit
	LastSyncedAt time.Time `json:"last_synced_at"`
	Imported     bool      `json:"imported"`
	CreatedAt    time.Time `json:"created_at"`
}

// SyncBalance records a fresh balance observed on the ledger.
func (w *WalletRecord) SyncBalance(balance int64, now time.Time) {
	w.Balance = balance
	w.LastSyncedAt = now
}
