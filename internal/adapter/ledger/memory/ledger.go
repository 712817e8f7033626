// Package memory is an in-process settlement network for development and tests.
// Balances are held per address and transfers settle immediately unless a
// latency is configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentpay/internal/core/ports"
	"agentpay/internal/signer"
	"agentpay/pkg/apperror"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

const (
	statusFinalized = "finalized"
	statusUnknown   = "unknown"
)

type settlement struct {
	from   string
	to     string
	amount int64
	memo   string
	at     time.Time
}

// Ledger implements ports.Ledger.
type Ledger struct {
	mu          sync.Mutex
	balances    map[string]int64
	settlements map[string]settlement
	latency     time.Duration
	timeout     time.Duration
	failNext    error
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLatency delays every transfer confirmation by d.
func WithLatency(d time.Duration) Option {
	return func(l *Ledger) { l.latency = d }
}

// WithConfirmTimeout bounds how long a transfer may wait for confirmation.
func WithConfirmTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		balances:    make(map[string]int64),
		settlements: make(map[string]settlement),
		timeout:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fund credits amount to address. It stands in for an airdrop or faucet.
func (l *Ledger) Fund(address string, amount int64) error {
	if !signer.ValidAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}
	if amount <= 0 {
		return fmt.Errorf("fund amount must be positive")
	}
	l.mu.Lock()
	l.balances[signer.NormalizeAddress(address)] += amount
	l.mu.Unlock()
	return nil
}

// InjectFailure makes the next SubmitTransfer return err before moving funds.
func (l *Ledger) InjectFailure(err error) {
	l.mu.Lock()
	l.failNext = err
	l.mu.Unlock()
}

// CurrentBalance returns the live balance of address. Unknown addresses hold zero.
func (l *Ledger) CurrentBalance(ctx context.Context, address string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperror.ErrLedgerUnavailable(err)
	}
	if !signer.ValidAddress(address) {
		return 0, apperror.InvalidRequest(fmt.Sprintf("invalid address %q", address))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[signer.NormalizeAddress(address)], nil
}

// SubmitTransfer moves amount from the credential's address to toAddress.
func (l *Ledger) SubmitTransfer(ctx context.Context, cred *signer.Credential, toAddress string, amount int64, memo *string) (string, error) {
	if cred == nil || cred.Address() == "" {
		return "", apperror.ErrLedgerRejected(signer.ErrZeroed)
	}
	if !signer.ValidAddress(toAddress) {
		return "", apperror.ErrLedgerRejected(fmt.Errorf("invalid recipient address %q", toAddress))
	}
	if amount <= 0 {
		return "", apperror.ErrLedgerRejected(errors.New("transfer amount must be positive"))
	}
	from := cred.Address()
	to := signer.NormalizeAddress(toAddress)

	l.mu.Lock()
	if injected := l.failNext; injected != nil {
		l.failNext = nil
		l.mu.Unlock()
		return "", injected
	}
	available := l.balances[from]
	if available < amount {
		l.mu.Unlock()
		return "", apperror.ErrInsufficientFunds(amount, available)
	}
	latency, timeout := l.latency, l.timeout
	l.mu.Unlock()

	if latency > 0 {
		if latency > timeout {
			select {
			case <-time.After(timeout):
			case <-ctx.Done():
			}
			return "", apperror.ErrLedgerUnavailable(fmt.Errorf("confirmation not observed within %s", timeout))
		}
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", apperror.ErrLedgerUnavailable(ctx.Err())
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check under the lock: a concurrent transfer may have drained the sender.
	if available = l.balances[from]; available < amount {
		return "", apperror.ErrInsufficientFunds(amount, available)
	}
	l.balances[from] -= amount
	l.balances[to] += amount

	id := crypto.Keccak256Hash([]byte(uuid.NewString())).Hex()
	s := settlement{from: from, to: to, amount: amount, at: time.Now().UTC()}
	if memo != nil {
		s.memo = *memo
	}
	l.settlements[id] = s
	return id, nil
}

// SettlementStatus reports whether settlementID was recorded by this ledger.
func (l *Ledger) SettlementStatus(ctx context.Context, settlementID string) (*ports.SettlementStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.ErrLedgerUnavailable(err)
	}
	l.mu.Lock()
	_, ok := l.settlements[settlementID]
	l.mu.Unlock()
	if !ok {
		return &ports.SettlementStatus{Confirmed: false, RawStatus: statusUnknown}, nil
	}
	return &ports.SettlementStatus{Confirmed: true, RawStatus: statusFinalized}, nil
}

// Ping implements ports.HealthChecker.
func (l *Ledger) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name returns the dependency name.
func (l *Ledger) Name() string {
	return "ledger"
}
