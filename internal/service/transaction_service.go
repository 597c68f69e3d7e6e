package service

import (
	"context"
	"errors"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionServiceImpl implements ports.TransactionService.
type TransactionServiceImpl struct {
	txRepo ports.TransactionRepository
}

// NewTransactionService creates a new TransactionServiceImpl.
func NewTransactionService(txRepo ports.TransactionRepository) *TransactionServiceImpl {
	return &TransactionServiceImpl{txRepo: txRepo}
}

// Append inserts an immutable ledger row inside dbTx.
// Reference uniqueness is left to the store; a collision is PAY_003.
func (s *TransactionServiceImpl) Append(ctx context.Context, dbTx pgx.Tx, p ports.AppendParams) (*domain.Transaction, error) {
	if !p.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("Amount must be greater than zero")
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:                  uuid.New(),
		Reference:           p.Reference,
		WalletID:            p.WalletID,
		Type:                p.Type,
		Amount:              p.Amount,
		Status:              p.Status,
		CounterpartWalletID: p.CounterpartWalletID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return nil, apperror.ErrDuplicateReference(p.Reference)
		}
		return nil, storageErr("append transaction", err)
	}
	return txn, nil
}

// History returns every transaction of the wallet, newest first.
// Callers paginate.
func (s *TransactionServiceImpl) History(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	txns, err := s.txRepo.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	return txns, nil
}

// GetByReference returns the transaction with the given reference.
func (s *TransactionServiceImpl) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, storageErr("get transaction", err)
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	return txn, nil
}
