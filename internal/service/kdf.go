package service

import (
	"fmt"

	"agentpay/pkg/apperror"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the vault sealing key.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64MB
	argon2Threads = 4
	argon2KeyLen  = 32
	minSaltLen    = 8
)

// DeriveVaultKey stretches the configured passphrase into a 32-byte AES-256
// key. The salt is configuration, not secret, and must stay stable across
// restarts or every sealed credential becomes unreadable.
func DeriveVaultKey(passphrase, salt string) ([]byte, error) {
	if passphrase == "" {
		return nil, apperror.ErrConfiguration("encryption passphrase is not configured")
	}
	if len(salt) < minSaltLen {
		return nil, apperror.ErrConfiguration(fmt.Sprintf("kdf salt must be at least %d bytes", minSaltLen))
	}
	return argon2.IDKey([]byte(passphrase), []byte(salt), argon2Time, argon2Memory, argon2Threads, argon2KeyLen), nil
}
