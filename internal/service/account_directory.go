package service

import (
	"context"
	"fmt"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountDirectoryService implements ports.AccountDirectory.
type AccountDirectoryService struct {
	agentRepo  ports.AgentRepository
	walletRepo ports.WalletRepository
	vault      ports.KeyVault
	ledger     ports.Ledger
	audit      ports.AuditService
	log        zerolog.Logger
}

// NewAccountDirectoryService creates a new AccountDirectoryService.
func NewAccountDirectoryService(
	agentRepo ports.AgentRepository,
	walletRepo ports.WalletRepository,
	vault ports.KeyVault,
	ledger ports.Ledger,
	audit ports.AuditService,
	log zerolog.Logger,
) *AccountDirectoryService {
	return &AccountDirectoryService{
		agentRepo:  agentRepo,
		walletRepo: walletRepo,
		vault:      vault,
		ledger:     ledger,
		audit:      audit,
		log:        log,
	}
}

// Register creates an active account and its wallet. A non-nil address takes
// the import path of the vault.
func (d *AccountDirectoryService) Register(ctx context.Context, agentID string, address *string) (*domain.AgentAccount, error) {
	if !domain.ValidAgentID(agentID) {
		return nil, apperror.InvalidRequest("agent id must be 1-128 characters of letters, digits, '_', '.' or '-'")
	}

	existing, err := d.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check agent: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrConflict(fmt.Sprintf("agent %s already registered", agentID))
	}

	var wallet *domain.WalletRecord
	if address != nil && *address != "" {
		wallet, err = d.vault.ImportAddress(ctx, agentID, *address)
	} else {
		wallet, err = d.vault.Generate(ctx, agentID)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	agent := &domain.AgentAccount{
		ID:        agentID,
		Address:   wallet.Address,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Create reports a Conflict itself when a concurrent registration won.
	if err := d.agentRepo.Create(ctx, agent, wallet); err != nil {
		if apperror.HasCode(err, apperror.CodeConflict) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("create agent: %w", err))
	}

	d.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		AgentID:      &agentID,
		Action:       domain.AuditActionRegister,
		ResourceType: "agent",
		ResourceID:   agentID,
		CreatedAt:    now,
	})

	d.log.Info().
		Str("agent_id", agentID).
		Str("address", agent.Address).
		Bool("imported", wallet.Imported).
		Msg("agent registered")

	return agent, nil
}

// Get returns the account or nil when unknown.
func (d *AccountDirectoryService) Get(ctx context.Context, agentID string) (*domain.AgentAccount, error) {
	agent, err := d.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get agent: %w", err))
	}
	return agent, nil
}

// List enumerates all accounts in registration order.
func (d *AccountDirectoryService) List(ctx context.Context) ([]domain.AgentAccount, error) {
	agents, err := d.agentRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list agents: %w", err))
	}
	return agents, nil
}

// ResolveAddress returns the wallet address of the agent.
func (d *AccountDirectoryService) ResolveAddress(ctx context.Context, agentID string) (string, error) {
	wallet, err := d.wallet(ctx, agentID)
	if err != nil {
		return "", err
	}
	return wallet.Address, nil
}

// Balance queries the ledger and refreshes the cached wallet balance.
func (d *AccountDirectoryService) Balance(ctx context.Context, agentID string) (int64, error) {
	wallet, err := d.wallet(ctx, agentID)
	if err != nil {
		return 0, err
	}

	balance, err := d.ledger.CurrentBalance(ctx, wallet.Address)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeLedgerUnavailable) {
			return 0, err
		}
		return 0, apperror.ErrLedgerUnavailable(err)
	}

	// The cached balance is a snapshot; a failed refresh does not invalidate
	// the live value.
	if err := d.walletRepo.UpdateBalance(ctx, agentID, balance, time.Now().UTC()); err != nil {
		d.log.Warn().Err(err).Str("agent_id", agentID).Msg("failed to cache wallet balance")
	}

	return balance, nil
}

// Deactivate marks the account inactive. Deactivating an inactive account
// succeeds without changes.
func (d *AccountDirectoryService) Deactivate(ctx context.Context, agentID string) error {
	agent, err := d.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if agent == nil {
		return apperror.ErrNotFound("Agent")
	}

	now := time.Now().UTC()
	changed, err := d.agentRepo.Deactivate(ctx, agentID, now)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("deactivate agent: %w", err))
	}
	if !changed {
		d.log.Debug().Str("agent_id", agentID).Msg("agent already inactive")
		return nil
	}

	d.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		AgentID:      &agentID,
		Action:       domain.AuditActionDeactivate,
		ResourceType: "agent",
		ResourceID:   agentID,
		CreatedAt:    now,
	})
	d.log.Info().Str("agent_id", agentID).Msg("agent deactivated")
	return nil
}

func (d *AccountDirectoryService) wallet(ctx context.Context, agentID string) (*domain.WalletRecord, error) {
	wallet, err := d.walletRepo.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return wallet, nil
}
