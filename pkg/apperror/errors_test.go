package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("PAY_001", "Insufficient funds", http.StatusPaymentRequired),
			expected: "[PAY_001] Insufficient funds",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("PAY_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestTaxonomy(t *testing.T) {
	inner := errors.New("rpc: connection reset")
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidRequest", InvalidRequest("bad"), "REQ_001", 400},
		{"NotFound", ErrNotFound("Payment"), "RES_001", 404},
		{"Conflict", ErrConflict("dup"), "RES_002", 409},
		{"InsufficientFunds", ErrInsufficientFunds(1000, 0), "PAY_001", 402},
		{"InvalidState", ErrInvalidState("not pending"), "PAY_002", 409},
		{"LedgerRejected", ErrLedgerRejected(inner), "LED_001", 502},
		{"LedgerUnavailable", ErrLedgerUnavailable(inner), "LED_002", 503},
		{"Decryption", ErrDecryption(inner), "SEC_005", 500},
		{"InvalidToken", ErrInvalidToken(), "AUTH_003", 401},
		{"Forbidden", ErrForbidden("not yours"), "AUTH_004", 403},
		{"RateLimit", ErrRateLimitExceeded(), "RATE_001", 429},
		{"Configuration", ErrConfiguration("no passphrase"), "SYS_004", 500},
		{"Internal", InternalError(inner), "SYS_001", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestLedgerErrorsKeepReason(t *testing.T) {
	reason := errors.New("blockhash not found")
	err := ErrLedgerRejected(reason)
	assert.True(t, errors.Is(err, reason))
	assert.Contains(t, err.Error(), "blockhash not found")
}

func TestInsufficientFundsMessage(t *testing.T) {
	err := ErrInsufficientFunds(1000, 250)
	assert.Contains(t, err.Message, "1000")
	assert.Contains(t, err.Message, "250")
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("process payment: %w", ErrInvalidState("payment is not pending"))

	assert.Equal(t, "PAY_002", CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeInvalidState))
	assert.False(t, HasCode(wrapped, CodeNotFound))
	assert.Equal(t, "SYS_000", CodeOf(errors.New("plain")))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestNotFoundEntity(t *testing.T) {
	err := ErrNotFound("Wallet")
	assert.Contains(t, err.Message, "Wallet")
	assert.Equal(t, "RES_001", err.Code)
}
