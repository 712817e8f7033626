package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports/mocks"
	"agentpay/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type directoryTestDeps struct {
	dir        *AccountDirectoryService
	agentRepo  *mocks.MockAgentRepository
	walletRepo *mocks.MockWalletRepository
	vault      *mocks.MockKeyVault
	ledger     *mocks.MockLedger
	audit      *mocks.MockAuditService
}

func setupDirectory(t *testing.T) *directoryTestDeps {
	ctrl := gomock.NewController(t)
	d := &directoryTestDeps{
		agentRepo:  mocks.NewMockAgentRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		vault:      mocks.NewMockKeyVault(ctrl),
		ledger:     mocks.NewMockLedger(ctrl),
		audit:      mocks.NewMockAuditService(ctrl),
	}
	d.dir = NewAccountDirectoryService(d.agentRepo, d.walletRepo, d.vault, d.ledger, d.audit, newTestLogger())
	return d
}

const testAddrA = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func TestAccountDirectory_Register_Success(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()
	wallet := &domain.WalletRecord{AgentID: "agent-a", Address: testAddrA, EncryptedKey: "sealed"}

	d.agentRepo.EXPECT().GetByID(ctx, "agent-a").Return(nil, nil)
	d.vault.EXPECT().Generate(ctx, "agent-a").Return(wallet, nil)
	d.agentRepo.EXPECT().Create(ctx, gomock.Any(), wallet).DoAndReturn(
		func(_ context.Context, a *domain.AgentAccount, _ *domain.WalletRecord) error {
			assert.Equal(t, testAddrA, a.Address)
			assert.True(t, a.IsActive)
			return nil
		})
	d.audit.EXPECT().Log(ctx, gomock.Any())

	agent, err := d.dir.Register(ctx, "agent-a", nil)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", agent.ID)
	assert.True(t, agent.IsActive)
	assert.Equal(t, agent.CreatedAt, agent.UpdatedAt)
}

func TestAccountDirectory_Register_WithAddress(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()
	addr := testAddrA
	wallet := &domain.WalletRecord{AgentID: "agent-a", Address: addr, Imported: true}

	d.agentRepo.EXPECT().GetByID(ctx, "agent-a").Return(nil, nil)
	d.vault.EXPECT().ImportAddress(ctx, "agent-a", addr).Return(wallet, nil)
	d.agentRepo.EXPECT().Create(ctx, gomock.Any(), wallet).Return(nil)
	d.audit.EXPECT().Log(ctx, gomock.Any())

	agent, err := d.dir.Register(ctx, "agent-a", &addr)
	require.NoError(t, err)
	assert.Equal(t, addr, agent.Address)
}

func TestAccountDirectory_Register_Conflict(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.agentRepo.EXPECT().GetByID(ctx, "agent-a").Return(&domain.AgentAccount{ID: "agent-a"}, nil)

	_, err := d.dir.Register(ctx, "agent-a", nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
}

func TestAccountDirectory_Register_ConcurrentConflict(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.agentRepo.EXPECT().GetByID(ctx, "agent-a").Return(nil, nil)
	d.vault.EXPECT().Generate(ctx, "agent-a").Return(&domain.WalletRecord{Address: testAddrA}, nil)
	d.agentRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(apperror.ErrConflict("agent agent-a already registered"))

	_, err := d.dir.Register(ctx, "agent-a", nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
}

func TestAccountDirectory_Register_InvalidID(t *testing.T) {
	d := setupDirectory(t)

	for _, id := range []string{"", " ", "-leading", "has space", "colon:sep", string(make([]byte, 200))} {
		_, err := d.dir.Register(context.Background(), id, nil)
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidRequest), "id %q", id)
	}
}

func TestAccountDirectory_Register_VaultNotConfigured(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.agentRepo.EXPECT().GetByID(ctx, "agent-a").Return(nil, nil)
	d.vault.EXPECT().Generate(ctx, "agent-a").Return(nil, apperror.ErrConfiguration("encryption passphrase is not configured"))

	_, err := d.dir.Register(ctx, "agent-a", nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))
}

func TestAccountDirectory_ResolveAddress(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.walletRepo.EXPECT().GetByAgentID(ctx, "agent-a").Return(&domain.WalletRecord{Address: testAddrA}, nil)
	addr, err := d.dir.ResolveAddress(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, testAddrA, addr)

	d.walletRepo.EXPECT().GetByAgentID(ctx, "ghost").Return(nil, nil)
	_, err = d.dir.ResolveAddress(ctx, "ghost")
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestAccountDirectory_Balance_RefreshesCache(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.walletRepo.EXPECT().GetByAgentID(ctx, "agent-a").Return(&domain.WalletRecord{AgentID: "agent-a", Address: testAddrA}, nil)
	d.ledger.EXPECT().CurrentBalance(ctx, testAddrA).Return(int64(5000), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, "agent-a", int64(5000), gomock.Any()).Return(nil)

	bal, err := d.dir.Balance(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal)
}

func TestAccountDirectory_Balance_CacheWriteFailureIsNotFatal(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.walletRepo.EXPECT().GetByAgentID(ctx, "agent-a").Return(&domain.WalletRecord{AgentID: "agent-a", Address: testAddrA}, nil)
	d.ledger.EXPECT().CurrentBalance(ctx, testAddrA).Return(int64(7), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, "agent-a", int64(7), gomock.Any()).Return(errors.New("db down"))

	bal, err := d.dir.Balance(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), bal)
}

func TestAccountDirectory_Balance_LedgerErrorsBecomeUnavailable(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.walletRepo.EXPECT().GetByAgentID(ctx, "agent-a").Return(&domain.WalletRecord{Address: testAddrA}, nil)
	d.ledger.EXPECT().CurrentBalance(ctx, testAddrA).Return(int64(0), errors.New("dial tcp: timeout"))

	_, err := d.dir.Balance(ctx, "agent-a")
	assert.True(t, apperror.HasCode(err, apperror.CodeLedgerUnavailable))
}

func TestAccountDirectory_Balance_NotFound(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.walletRepo.EXPECT().GetByAgentID(ctx, "ghost").Return(nil, nil)

	_, err := d.dir.Balance(ctx, "ghost")
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestAccountDirectory_Deactivate(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.agentRepo.EXPECT().GetByID(ctx, "agent-a").Return(&domain.AgentAccount{ID: "agent-a", IsActive: true}, nil)
	d.agentRepo.EXPECT().Deactivate(ctx, "agent-a", gomock.AssignableToTypeOf(time.Time{})).Return(true, nil)
	d.audit.EXPECT().Log(ctx, gomock.Any())
	require.NoError(t, d.dir.Deactivate(ctx, "agent-a"))

	// Second call is accepted without a second audit entry.
	d.agentRepo.EXPECT().GetByID(ctx, "agent-a").Return(&domain.AgentAccount{ID: "agent-a"}, nil)
	d.agentRepo.EXPECT().Deactivate(ctx, "agent-a", gomock.Any()).Return(false, nil)
	require.NoError(t, d.dir.Deactivate(ctx, "agent-a"))
}

func TestAccountDirectory_Deactivate_NotFound(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.agentRepo.EXPECT().GetByID(ctx, "ghost").Return(nil, nil)

	err := d.dir.Deactivate(ctx, "ghost")
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestAccountDirectory_List(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()

	d.agentRepo.EXPECT().List(ctx).Return([]domain.AgentAccount{{ID: "a"}, {ID: "b"}}, nil)

	agents, err := d.dir.List(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}
