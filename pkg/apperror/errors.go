package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes.
const (
	CodeInvalidRequest    = "REQ_001"
	CodeNotFound          = "RES_001"
	CodeConflict          = "RES_002"
	CodeInsufficientFunds = "PAY_001"
	CodeInvalidState      = "PAY_002"
	CodeLedgerRejected    = "LED_001"
	CodeLedgerUnavailable = "LED_002"
	CodeInvalidToken      = "AUTH_003"
	CodeForbidden         = "AUTH_004"
	CodeDecryption        = "SEC_005"
	CodeRateLimitExceeded = "RATE_001"
	CodeInternal          = "SYS_001"
	CodeConfiguration     = "SYS_004"
	codeUnknown           = "SYS_000"
)

// CodeOf returns the code of the first AppError in err's chain, or SYS_000.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return codeUnknown
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// ---- Request (REQ) ----

// InvalidRequest reports malformed caller input. Never retried automatically.
func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, http.StatusBadRequest)
}

// ---- Resources (RES) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrConflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// ---- Payment lifecycle (PAY) ----

func ErrInsufficientFunds(required, available int64) *AppError {
	return New(CodeInsufficientFunds,
		fmt.Sprintf("Insufficient balance: required %d, available %d", required, available),
		http.StatusPaymentRequired)
}

func ErrInvalidState(message string) *AppError {
	return New(CodeInvalidState, message, http.StatusConflict)
}

// ---- Ledger (LED) ----

func ErrLedgerRejected(reason error) *AppError {
	return Wrap(CodeLedgerRejected, "Ledger rejected the transfer", http.StatusBadGateway, reason)
}

func ErrLedgerUnavailable(err error) *AppError {
	return Wrap(CodeLedgerUnavailable, "Ledger unavailable", http.StatusServiceUnavailable, err)
}

// ---- Security (SEC) / Authentication (AUTH) ----

func ErrDecryption(err error) *AppError {
	return Wrap(CodeDecryption, "Failed to decrypt wallet credential", http.StatusInternalServerError, err)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ErrForbidden reports an authenticated agent acting on another agent's behalf.
func ErrForbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrConfiguration(message string) *AppError {
	return New(CodeConfiguration, message, http.StatusInternalServerError)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
