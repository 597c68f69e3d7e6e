package dto

import (
	"time"

	"wallet-service/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Amounts are major units (naira) and accept either a JSON number or a string.

// DepositRequest is the request body for deposit initiation.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"money"`
}

// DepositResponse carries the hosted checkout link.
type DepositResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// ReferenceURI binds the :reference path parameter.
type ReferenceURI struct {
	Reference string `uri:"reference" binding:"required,max=100,safe_id"`
}

// KeyIDURI binds the :id path parameter.
type KeyIDURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// DepositStatusResponse is the response for a deposit status query.
type DepositStatusResponse struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
type TransferRequest struct {
	WalletNumber string          `json:"wallet_number" binding:"required,wallet_number"`
	Amount       decimal.Decimal `json:"amount" binding:"money"`
}

// TransferResponse is the response body for a committed transfer.
type TransferResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	WalletNumber string          `json:"wallet_number"`
}

// TransactionResponse is one entry of the transaction history.
type TransactionResponse struct {
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	CreatedAt string          `json:"created_at"`
}

// CreateKeyRequest is the request body for API key issuance.
// Expiry is checked by the key service so that unknown codes map to KEY_004.
type CreateKeyRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Permissions []string `json:"permissions" binding:"required,min=1,dive,permission"`
	Expiry      string   `json:"expiry" binding:"required"`
}

// RolloverKeyRequest is the request body for replacing an expired key.
type RolloverKeyRequest struct {
	ExpiredKeyID string `json:"expired_key_id" binding:"required,uuid"`
	Expiry       string `json:"expiry" binding:"required"`
}

// APIKeyResponse carries a freshly issued secret. It is shown exactly once.
type APIKeyResponse struct {
	ID        string `json:"id"`
	APIKey    string `json:"api_key"`
	ExpiresAt string `json:"expires_at"`
}

// APIKeySummary is key metadata without the secret.
type APIKeySummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Prefix      string   `json:"prefix"`
	Permissions []string `json:"permissions"`
	Status      string   `json:"status"`
	Expired     bool     `json:"expired"`
	ExpiresAt   string   `json:"expires_at"`
	CreatedAt   string   `json:"created_at"`
}

// LoginResponse is the response body for a federated login.
type LoginResponse struct {
	Token        string `json:"token"`
	Expiry       int64  `json:"expiry"` // Unix timestamp
	Email        string `json:"email"`
	Name         string `json:"name"`
	WalletNumber string `json:"wallet_number"`
}

// ToTransactionResponse maps a ledger row for the history endpoint.
func ToTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		Type:      string(t.Type),
		Amount:    t.Amount,
		Status:    string(t.Status),
		Reference: t.Reference,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToAPIKeySummary maps stored key metadata, reporting expiry relative to now.
func ToAPIKeySummary(k domain.APIKey, now time.Time) APIKeySummary {
	perms := make([]string, len(k.Permissions))
	for i, p := range k.Permissions {
		perms[i] = string(p)
	}
	return APIKeySummary{
		ID:          k.ID.String(),
		Name:        k.Name,
		Prefix:      k.KeyPrefix,
		Permissions: perms,
		Status:      string(k.Status),
		Expired:     k.IsExpired(now),
		ExpiresAt:   k.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:   k.CreatedAt.UTC().Format(time.RFC3339),
	}
}
