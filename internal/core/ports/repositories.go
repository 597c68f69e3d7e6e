package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Lookups return (nil, nil) when the row does not exist.

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByFederatedSubject(ctx context.Context, subject string) (*domain.User, error)
	// GetByIDForUpdate locks the user row; used to serialise per-user operations.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.User, error)
	SetFederatedSubject(ctx context.Context, tx pgx.Tx, id int64, subject string) error
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	ExistsByNumber(ctx context.Context, walletNumber string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)
	GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, walletNumber string) (*domain.Wallet, error)
	// UpdateBalance writes balance if the stored version still equals
	// expectedVersion and returns the new version. ErrVersionConflict otherwise.
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) (int64, error)
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	// Create inserts the row. A reference collision yields ErrUniqueViolation.
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error)
	// ListByWallet returns every row of the wallet, newest first.
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error)
	// UpdateStatus moves a PENDING row to status. ErrStatusConflict if it was not PENDING.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error)
}

// APIKeyRepository defines persistence operations for secret keys.
type APIKeyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	CountActive(ctx context.Context, tx pgx.Tx, userID int64) (int, error)
	// ListByPrefix returns every key stored under prefix regardless of status.
	ListByPrefix(ctx context.Context, prefix string) ([]domain.APIKey, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.APIKey, error)
	// Revoke moves an ACTIVE key to REVOKED. ErrStatusConflict if it was not ACTIVE.
	Revoke(ctx context.Context, id uuid.UUID) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
