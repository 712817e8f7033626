package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentpay/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(agentID string) *domain.WalletRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.WalletRecord{
		AgentID:      agentID,
		Address:      "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		EncryptedKey: "sealed_credential_hex",
		Balance:      0,
		LastSyncedAt: now,
		CreatedAt:    now,
	}
}

func walletColumns() []string {
	return []string{"agent_id", "address", "encrypted_key", "balance", "last_synced_at", "imported", "created_at"}
}

func walletRow(w *domain.WalletRecord) *pgxmock.Rows {
	return pgxmock.NewRows(walletColumns()).AddRow(
		w.AgentID, w.Address, w.EncryptedKey, w.Balance,
		w.LastSyncedAt, w.Imported, w.CreatedAt,
	)
}

func TestWalletRepo_GetByAgentID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("agent-a")

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE agent_id").
		WithArgs("agent-a").
		WillReturnRows(walletRow(w))

	result, err := repo.GetByAgentID(context.Background(), "agent-a")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.Address, result.Address)
	assert.Equal(t, w.EncryptedKey, result.EncryptedKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAgentID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE agent_id").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(walletColumns()))

	result, err := repo.GetByAgentID(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByAgentID_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets").
		WithArgs("agent-a").
		WillReturnError(errors.New("connection reset"))

	_, err = repo.GetByAgentID(context.Background(), "agent-a")
	assert.ErrorContains(t, err, "get wallet by agent id")
}

func TestWalletRepo_UpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	syncedAt := time.Now().UTC()

	mock.ExpectExec("UPDATE wallets SET balance").
		WithArgs(int64(5000), syncedAt, "agent-a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.UpdateBalance(context.Background(), "agent-a", 5000, syncedAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_UpdateBalance_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	syncedAt := time.Now().UTC()

	mock.ExpectExec("UPDATE wallets SET balance").
		WithArgs(int64(1), syncedAt, "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.UpdateBalance(context.Background(), "ghost", 1, syncedAt)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
