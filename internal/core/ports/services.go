package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SignatureService handles HMAC-SHA512 signing and verification of webhook payloads.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles identity token operations.
type TokenService interface {
	Generate(userID int64, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed token claims.
type TokenClaims struct {
	UserID int64
	Email  string
}

// PaymentGateway initializes hosted-checkout deposits with the payment provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, req GatewayInitRequest) (*GatewayInitResult, error)
}

// GatewayInitRequest is the provider-facing deposit request. AmountMinor is in kobo.
type GatewayInitRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
}

// GatewayInitResult holds the checkout details returned by the provider.
type GatewayInitResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// DedupStore reserves one-shot keys, e.g. client idempotency keys.
type DedupStore interface {
	// Reserve returns true if key was not yet reserved within scope.
	Reserve(ctx context.Context, scope, key string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// WalletService owns wallet creation and lookup.
type WalletService interface {
	CreateWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	CreateWalletTx(ctx context.Context, tx pgx.Tx, userID int64) (*domain.Wallet, error)
	GetByUser(ctx context.Context, userID int64) (*domain.Wallet, error)
	GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// TransactionService records and reads ledger rows.
type TransactionService interface {
	Append(ctx context.Context, tx pgx.Tx, params AppendParams) (*domain.Transaction, error)
	History(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
}

// AppendParams holds the fields of a new ledger row.
type AppendParams struct {
	WalletID            uuid.UUID
	Type                domain.TransactionType
	Amount              decimal.Decimal
	Reference           string
	Status              domain.TransactionStatus
	CounterpartWalletID *uuid.UUID
}

// TransferService moves funds between wallets atomically.
type TransferService interface {
	Transfer(ctx context.Context, senderUserID int64, recipientWalletNumber string, amount decimal.Decimal) (*TransferResult, error)
}

// TransferResult identifies the committed ledger pair.
type TransferResult struct {
	Reference      string
	SenderWalletID uuid.UUID
	RecipientID    uuid.UUID
	Amount         decimal.Decimal
}

// DepositService initiates deposits and applies gateway settlement events.
type DepositService interface {
	InitiateDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*DepositInit, error)
	HandleSettlementEvent(ctx context.Context, event SettlementEvent) error
	GetDepositStatus(ctx context.Context, userID int64, reference string) (*domain.Transaction, error)
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// DepositInit is returned to the client after a deposit is initiated.
type DepositInit struct {
	Reference        string
	AuthorizationURL string
}

// Settlement event types sent by the gateway.
const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventChargeAbandoned = "charge.abandoned"
)

// SettlementEvent is a parsed gateway webhook.
type SettlementEvent struct {
	Type      string
	Reference string
	Status    string
}

// APIKeyService issues and verifies machine secret keys.
type APIKeyService interface {
	Issue(ctx context.Context, req IssueKeyRequest) (*IssuedKey, error)
	Verify(ctx context.Context, presented string) (*domain.APIKey, error)
	Rollover(ctx context.Context, userID int64, keyID uuid.UUID, expiry domain.ExpiryCode) (*IssuedKey, error)
	Revoke(ctx context.Context, userID int64, keyID uuid.UUID) error
	List(ctx context.Context, userID int64) ([]domain.APIKey, error)
}

// IssueKeyRequest holds validated input for key issuance.
type IssueKeyRequest struct {
	UserID      int64
	Name        string
	Permissions []domain.Permission
	Expiry      domain.ExpiryCode
}

// IssuedKey carries the raw secret, shown to the caller exactly once.
type IssuedKey struct {
	ID        uuid.UUID
	Secret    string
	ExpiresAt time.Time
}

// IdentityService resolves boundary principals into users.
type IdentityService interface {
	LoginFederated(ctx context.Context, principal domain.FederatedPrincipal) (*LoginResult, error)
	ResolveToken(ctx context.Context, principal domain.TokenPrincipal) (*domain.User, error)
}

// LoginResult is returned after a successful federated login.
type LoginResult struct {
	Token        string
	ExpiresAt    time.Time
	User         *domain.User
	WalletNumber string
}
