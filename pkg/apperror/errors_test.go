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
			appErr:   New("PAY_002", "Invalid amount", http.StatusBadRequest),
			expected: "[PAY_002] Invalid amount",
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
	assert.Nil(t, New("PAY_001", "test", http.StatusBadRequest).Unwrap())
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("transfer: %w", ErrInsufficientBalance("1.00", "2.00"))
	assert.True(t, HasCode(err, CodeInsufficientBalance))
	assert.False(t, HasCode(err, CodeInvalidAmount))
	assert.False(t, HasCode(errors.New("plain"), CodeInvalidAmount))
}

func TestErrorKinds(t *testing.T) {
	inner := errors.New("pg: connection closed")

	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidSignature", ErrInvalidSignature(), "SEC_002", 401},
		{"InsufficientBalance", ErrInsufficientBalance("1", "2"), "PAY_001", 400},
		{"InvalidAmount", ErrInvalidAmount("bad"), "PAY_002", 400},
		{"DuplicateReference", ErrDuplicateReference("REF"), "PAY_003", 409},
		{"WalletNotFound", ErrWalletNotFound(), "PAY_004", 404},
		{"TransactionNotFound", ErrTransactionNotFound(), "PAY_004", 404},
		{"InvalidTransfer", ErrInvalidTransfer("self"), "PAY_005", 400},
		{"Gateway", ErrGateway(inner), "PAY_006", 502},
		{"KeyLimitExceeded", ErrKeyLimitExceeded(5), "KEY_001", 400},
		{"KeyExpired", ErrKeyExpired(), "KEY_002", 401},
		{"KeyRevoked", ErrKeyRevoked(), "KEY_003", 401},
		{"InvalidExpiry", ErrInvalidExpiry(), "KEY_004", 400},
		{"InvalidState", ErrInvalidState("not expired"), "KEY_005", 400},
		{"Unauthorized", ErrUnauthorized("no"), "AUTH_001", 401},
		{"Forbidden", ErrForbidden("TRANSFER"), "AUTH_002", 403},
		{"RateLimit", ErrRateLimitExceeded(), "RATE_001", 429},
		{"Storage", ErrStorage(inner), "SYS_001", 500},
		{"LockTimeout", ErrLockTimeout(inner), "SYS_002", 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestErrInsufficientBalance_Message(t *testing.T) {
	err := ErrInsufficientBalance("300.00", "500.00")
	assert.Contains(t, err.Message, "300.00")
	assert.Contains(t, err.Message, "500.00")
}

func TestErrKeyLimitExceeded_Message(t *testing.T) {
	assert.Contains(t, ErrKeyLimitExceeded(5).Message, "5")
}
