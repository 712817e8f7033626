package service

import (
	"context"
	"fmt"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/internal/signer"
	"agentpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// KeyVaultService implements ports.KeyVault. The sealing service is nil when
// no passphrase is configured; every operation that needs it then fails with
// a configuration error instead of falling back to plaintext.
type KeyVaultService struct {
	walletRepo ports.WalletRepository
	encSvc     ports.EncryptionService
	audit      ports.AuditService
	log        zerolog.Logger
}

// NewKeyVaultService creates a new KeyVaultService.
func NewKeyVaultService(
	walletRepo ports.WalletRepository,
	encSvc ports.EncryptionService,
	audit ports.AuditService,
	log zerolog.Logger,
) *KeyVaultService {
	return &KeyVaultService{
		walletRepo: walletRepo,
		encSvc:     encSvc,
		audit:      audit,
		log:        log,
	}
}

// Generate creates a fresh keypair for the agent and returns the unsaved
// wallet record holding the sealed private half.
func (v *KeyVaultService) Generate(ctx context.Context, agentID string) (*domain.WalletRecord, error) {
	address, blob, err := v.sealNewKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &domain.WalletRecord{
		AgentID:      agentID,
		Address:      address,
		EncryptedKey: blob,
		Balance:      0,
		LastSyncedAt: now,
		CreatedAt:    now,
	}, nil
}

// ImportAddress registers a caller-supplied address. The vault cannot take
// custody of a key it never saw, so it seals an unrelated keypair; transfers
// from this wallet are signed by that key, not by the owner of address.
func (v *KeyVaultService) ImportAddress(ctx context.Context, agentID, address string) (*domain.WalletRecord, error) {
	if !signer.ValidAddress(address) {
		return nil, apperror.InvalidRequest(fmt.Sprintf("invalid wallet address %q", address))
	}

	generated, blob, err := v.sealNewKey()
	if err != nil {
		return nil, err
	}

	normalized := signer.NormalizeAddress(address)
	v.log.Warn().
		Str("agent_id", agentID).
		Str("address", normalized).
		Str("vault_address", generated).
		Msg("imported address is not controlled by the vault key")

	now := time.Now().UTC()
	return &domain.WalletRecord{
		AgentID:      agentID,
		Address:      normalized,
		EncryptedKey: blob,
		Balance:      0,
		LastSyncedAt: now,
		Imported:     true,
		CreatedAt:    now,
	}, nil
}

// Reveal opens the agent's sealed credential. The caller must Zero it.
func (v *KeyVaultService) Reveal(ctx context.Context, agentID string) (*signer.Credential, error) {
	if v.encSvc == nil {
		return nil, apperror.ErrConfiguration("encryption passphrase is not configured")
	}

	wallet, err := v.walletRepo.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	v.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		AgentID:      &agentID,
		Action:       domain.AuditActionRevealCredential,
		ResourceType: "wallet",
		ResourceID:   wallet.Address,
		CreatedAt:    time.Now().UTC(),
	})

	raw, err := v.encSvc.Decrypt(wallet.EncryptedKey)
	if err != nil {
		return nil, apperror.ErrDecryption(err)
	}
	defer signer.Wipe(raw)

	cred, err := signer.Parse(raw)
	if err != nil {
		return nil, apperror.ErrDecryption(err)
	}
	if !wallet.Imported && cred.Address() != wallet.Address {
		cred.Zero()
		return nil, apperror.ErrDecryption(fmt.Errorf("credential does not match wallet address"))
	}

	v.log.Debug().Str("agent_id", agentID).Msg("credential revealed")
	return cred, nil
}

func (v *KeyVaultService) sealNewKey() (address, blob string, err error) {
	if v.encSvc == nil {
		return "", "", apperror.ErrConfiguration("encryption passphrase is not configured")
	}

	cred, err := signer.Generate()
	if err != nil {
		return "", "", apperror.InternalError(err)
	}
	defer cred.Zero()

	raw, err := cred.Bytes()
	if err != nil {
		return "", "", apperror.InternalError(err)
	}
	defer signer.Wipe(raw)

	blob, err = v.encSvc.Encrypt(raw)
	if err != nil {
		return "", "", apperror.InternalError(fmt.Errorf("seal credential: %w", err))
	}
	return cred.Address(), blob, nil
}
