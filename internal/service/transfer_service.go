package service

import (
	"context"
	"errors"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransferServiceImpl implements ports.TransferService.
//
// Locks are taken sender first, then recipient. This is the only entry point
// that locks two wallets; a second one (batch transfers, reversals) must lock
// in domain.LockOrder instead, or the two can deadlock each other.
type TransferServiceImpl struct {
	walletRepo ports.WalletRepository
	txSvc      ports.TransactionService
	transactor ports.DBTransactor
	log        zerolog.Logger
	now        func() time.Time
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	walletRepo ports.WalletRepository,
	txSvc ports.TransactionService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		walletRepo: walletRepo,
		txSvc:      txSvc,
		transactor: transactor,
		log:        log,
		now:        time.Now,
	}
}

// Transfer moves amount from the sender's wallet to the wallet numbered
// recipientWalletNumber. Both balance writes and both ledger rows commit
// together or not at all.
func (s *TransferServiceImpl) Transfer(
	ctx context.Context,
	senderUserID int64,
	recipientWalletNumber string,
	amount decimal.Decimal,
) (*ports.TransferResult, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("Amount must be greater than zero")
	}
	if !domain.HasValidScale(amount) {
		return nil, apperror.ErrInvalidAmount("Amount must have at most 2 decimal places")
	}

	// Resolve sender (unlocked read, only the id is trusted)
	sender, err := s.walletRepo.GetByUserID(ctx, senderUserID)
	if err != nil {
		return nil, storageErr("resolve sender wallet", err)
	}
	if sender == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if sender.WalletNumber == recipientWalletNumber {
		return nil, apperror.ErrInvalidTransfer("Cannot transfer to your own wallet")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock sender and re-check balance under the lock
	sender, err = s.walletRepo.GetByIDForUpdate(ctx, dbTx, sender.ID)
	if err != nil {
		return nil, storageErr("lock sender wallet", err)
	}
	if sender == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if !sender.CanDebit(amount) {
		return nil, apperror.ErrInsufficientBalance(sender.Balance.StringFixed(domain.MoneyScale), amount.StringFixed(domain.MoneyScale))
	}

	// Lock recipient
	recipient, err := s.walletRepo.GetByNumberForUpdate(ctx, dbTx, recipientWalletNumber)
	if err != nil {
		return nil, storageErr("lock recipient wallet", err)
	}
	if recipient == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if recipient.ID == sender.ID {
		return nil, apperror.ErrInvalidTransfer("Cannot transfer to your own wallet")
	}

	if err := writeBalance(ctx, s.walletRepo, dbTx, sender, sender.Balance.Sub(amount)); err != nil {
		return nil, err
	}
	if err := writeBalance(ctx, s.walletRepo, dbTx, recipient, recipient.Balance.Add(amount)); err != nil {
		return nil, err
	}

	base := newReference("TRANSFER", senderUserID, s.now())
	senderID, recipientID := sender.ID, recipient.ID

	if _, err := s.txSvc.Append(ctx, dbTx, ports.AppendParams{
		WalletID:            sender.ID,
		Type:                domain.TransactionTypeTransferOut,
		Amount:              amount,
		Reference:           base + "_OUT",
		Status:              domain.TransactionStatusSuccess,
		CounterpartWalletID: &recipientID,
	}); err != nil {
		return nil, err
	}
	if _, err := s.txSvc.Append(ctx, dbTx, ports.AppendParams{
		WalletID:            recipient.ID,
		Type:                domain.TransactionTypeTransferIn,
		Amount:              amount,
		Reference:           base + "_IN",
		Status:              domain.TransactionStatusSuccess,
		CounterpartWalletID: &senderID,
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	s.log.Info().
		Str("reference", base).
		Str("sender_wallet_id", sender.ID.String()).
		Str("recipient_wallet_id", recipient.ID.String()).
		Str("amount", amount.StringFixed(domain.MoneyScale)).
		Msg("transfer completed")

	return &ports.TransferResult{
		Reference:      base,
		SenderWalletID: sender.ID,
		RecipientID:    recipient.ID,
		Amount:         amount,
	}, nil
}

// writeBalance is the single balance-mutation path shared by transfers and
// deposit settlement. A version mismatch means the row changed without the
// lock being held and is reported as a storage error.
func writeBalance(ctx context.Context, repo ports.WalletRepository, dbTx pgx.Tx, w *domain.Wallet, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return apperror.ErrInsufficientBalance(w.Balance.StringFixed(domain.MoneyScale), w.Balance.Sub(balance).StringFixed(domain.MoneyScale))
	}
	version, err := repo.UpdateBalance(ctx, dbTx, w.ID, balance, w.Version)
	if err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			return apperror.ErrStorage(err)
		}
		return storageErr("update balance", err)
	}
	w.Balance = balance
	w.Version = version
	return nil
}
