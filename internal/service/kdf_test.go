package service

import (
	"testing"

	"agentpay/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveVaultKey_Deterministic(t *testing.T) {
	k1, err := DeriveVaultKey("passphrase", "agentpay-keyvault")
	require.NoError(t, err)
	k2, err := DeriveVaultKey("passphrase", "agentpay-keyvault")
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
}

func TestDeriveVaultKey_DependsOnInputs(t *testing.T) {
	base, err := DeriveVaultKey("passphrase", "agentpay-keyvault")
	require.NoError(t, err)
	otherPass, err := DeriveVaultKey("passphrase2", "agentpay-keyvault")
	require.NoError(t, err)
	otherSalt, err := DeriveVaultKey("passphrase", "agentpay-keyvault-2")
	require.NoError(t, err)

	assert.NotEqual(t, base, otherPass)
	assert.NotEqual(t, base, otherSalt)
	assert.NotEqual(t, []byte("passphrase"), base[:10], "key must not be the raw passphrase")
}

func TestDeriveVaultKey_MissingPassphrase(t *testing.T) {
	_, err := DeriveVaultKey("", "agentpay-keyvault")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))
}

func TestDeriveVaultKey_ShortSalt(t *testing.T) {
	_, err := DeriveVaultKey("passphrase", "abc")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))
}
