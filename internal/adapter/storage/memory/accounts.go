// Package memory holds process-local implementations of the repository ports.
// Records are copied in and out so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/pkg/apperror"
)

// Accounts stores agents and their wallets. The index lock guards
// membership only; an agent and its wallet share one per-account lock, so
// registration is atomic and accounts never contend with each other.
type Accounts struct {
	mu      sync.RWMutex
	entries map[string]*accountEntry
	order   []string
}

type accountEntry struct {
	mu     sync.Mutex
	agent  domain.AgentAccount
	wallet domain.WalletRecord
}

// NewAccounts creates an empty account store.
func NewAccounts() *Accounts {
	return &Accounts{entries: make(map[string]*accountEntry)}
}

func (s *Accounts) lookup(id string) *accountEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// AgentRepo implements ports.AgentRepository over Accounts.
type AgentRepo struct{ s *Accounts }

// WalletRepo implements ports.WalletRepository over Accounts.
type WalletRepo struct{ s *Accounts }

// NewAgentRepo returns the agent view of s.
func NewAgentRepo(s *Accounts) *AgentRepo { return &AgentRepo{s: s} }

// NewWalletRepo returns the wallet view of s.
func NewWalletRepo(s *Accounts) *WalletRepo { return &WalletRepo{s: s} }

func (r *AgentRepo) Create(_ context.Context, a *domain.AgentAccount, w *domain.WalletRecord) error {
	e := &accountEntry{agent: *a, wallet: *w}
	e.wallet.AgentID = a.ID

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.entries[a.ID]; ok {
		return apperror.ErrConflict(fmt.Sprintf("agent %s already registered", a.ID))
	}
	r.s.entries[a.ID] = e
	r.s.order = append(r.s.order, a.ID)
	return nil
}

func (r *AgentRepo) GetByID(_ context.Context, id string) (*domain.AgentAccount, error) {
	e := r.s.lookup(id)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.agent
	return &out, nil
}

func (r *AgentRepo) List(_ context.Context) ([]domain.AgentAccount, error) {
	r.s.mu.RLock()
	entries := make([]*accountEntry, 0, len(r.s.order))
	for _, id := range r.s.order {
		entries = append(entries, r.s.entries[id])
	}
	r.s.mu.RUnlock()

	out := make([]domain.AgentAccount, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.agent)
		e.mu.Unlock()
	}
	return out, nil
}

func (r *AgentRepo) Deactivate(_ context.Context, id string, at time.Time) (bool, error) {
	e := r.s.lookup(id)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent.Deactivate(at), nil
}

func (r *WalletRepo) GetByAgentID(_ context.Context, agentID string) (*domain.WalletRecord, error) {
	e := r.s.lookup(agentID)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.wallet
	return &out, nil
}

func (r *WalletRepo) UpdateBalance(_ context.Context, agentID string, balance int64, syncedAt time.Time) error {
	e := r.s.lookup(agentID)
	if e == nil {
		return fmt.Errorf("wallet not found: %s", agentID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wallet.SyncBalance(balance, syncedAt)
	return nil
}
