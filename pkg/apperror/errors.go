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

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Stable error codes.
const (
	CodeInvalidSignature    = "SEC_002"
	CodeInsufficientBalance = "PAY_001"
	CodeInvalidAmount       = "PAY_002"
	CodeDuplicateReference  = "PAY_003"
	CodeNotFound            = "PAY_004"
	CodeInvalidTransfer     = "PAY_005"
	CodeGateway             = "PAY_006"
	CodeKeyLimitExceeded    = "KEY_001"
	CodeKeyExpired          = "KEY_002"
	CodeKeyRevoked          = "KEY_003"
	CodeInvalidExpiry       = "KEY_004"
	CodeInvalidState        = "KEY_005"
	CodeUnauthorized        = "AUTH_001"
	CodeForbidden           = "AUTH_002"
	CodeRateLimitExceeded   = "RATE_001"
	CodeStorage             = "SYS_001"
	CodeLockTimeout         = "SYS_002"
)

// ---- Security (SEC) ----

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid signature", http.StatusUnauthorized)
}

// ---- Ledger (PAY) ----

func ErrInsufficientBalance(available, required string) *AppError {
	return New(CodeInsufficientBalance,
		fmt.Sprintf("Insufficient balance. Available: %s, Required: %s", available, required),
		http.StatusBadRequest)
}

func ErrInvalidAmount(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}

func ErrDuplicateReference(reference string) *AppError {
	return New(CodeDuplicateReference, fmt.Sprintf("Duplicate reference: %s", reference), http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrWalletNotFound() *AppError {
	return ErrNotFound("Wallet")
}

func ErrTransactionNotFound() *AppError {
	return ErrNotFound("Transaction")
}

func ErrInvalidTransfer(message string) *AppError {
	return New(CodeInvalidTransfer, message, http.StatusBadRequest)
}

func ErrGateway(err error) *AppError {
	return Wrap(CodeGateway, "Payment provider unavailable", http.StatusBadGateway, err)
}

// ---- API keys (KEY) ----

func ErrKeyLimitExceeded(max int) *AppError {
	return New(CodeKeyLimitExceeded,
		fmt.Sprintf("Maximum of %d active API keys allowed per user. Revoke an existing key before creating a new one.", max),
		http.StatusBadRequest)
}

func ErrKeyExpired() *AppError {
	return New(CodeKeyExpired, "API key has expired. Create a new key or roll over the expired one.", http.StatusUnauthorized)
}

func ErrKeyRevoked() *AppError {
	return New(CodeKeyRevoked, "API key has been revoked", http.StatusUnauthorized)
}

func ErrInvalidExpiry() *AppError {
	return New(CodeInvalidExpiry, "Invalid expiry format. Use 1H, 1D, 1M, or 1Y", http.StatusBadRequest)
}

func ErrInvalidState(message string) *AppError {
	return New(CodeInvalidState, message, http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrUnauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func ErrForbidden(permission string) *AppError {
	return New(CodeForbidden, fmt.Sprintf("Missing permission: %s", permission), http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// ErrStorage is the transient StorageError kind. Callers may retry with backoff.
func ErrStorage(err error) *AppError {
	return Wrap(CodeStorage, "Internal storage error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap(CodeLockTimeout, "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}
