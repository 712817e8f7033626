// Package signer wraps the secp256k1 keypairs that authorize ledger transfers.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrZeroed is returned when a credential is used after Zero.
var ErrZeroed = errors.New("signer: credential has been zeroed")

// Credential is an opened signing key. Callers hold it only for the duration
// of one transfer and call Zero when done.
type Credential struct {
	key *ecdsa.PrivateKey
}

// Generate creates a fresh keypair.
func Generate() (*Credential, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Credential{key: key}, nil
}

// Parse restores a credential from its raw 32-byte private scalar.
func Parse(raw []byte) (*Credential, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	return &Credential{key: key}, nil
}

// Address returns the checksummed hex address controlled by the credential.
func (c *Credential) Address() string {
	if c.key == nil {
		return ""
	}
	return crypto.PubkeyToAddress(c.key.PublicKey).Hex()
}

// Bytes returns the raw private scalar. The caller owns the returned slice.
func (c *Credential) Bytes() ([]byte, error) {
	if c.key == nil {
		return nil, ErrZeroed
	}
	return crypto.FromECDSA(c.key), nil
}

// PrivateKey exposes the key for transaction signing.
func (c *Credential) PrivateKey() (*ecdsa.PrivateKey, error) {
	if c.key == nil {
		return nil, ErrZeroed
	}
	return c.key, nil
}

// Zero clears the private scalar. The credential is unusable afterwards.
func (c *Credential) Zero() {
	if c == nil || c.key == nil {
		return
	}
	c.key.D.SetInt64(0)
	c.key = nil
}

// ValidAddress reports whether s is a 20-byte hex address, with or without 0x.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress returns the checksummed form of a valid address.
func NormalizeAddress(s string) string {
	return common.HexToAddress(s).Hex()
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
