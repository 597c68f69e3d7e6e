package service

import (
	"context"
	"errors"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// gatewayStatusSuccess is the data.status Paystack reports for a paid charge.
const gatewayStatusSuccess = "success"

// DepositServiceImpl implements ports.DepositService.
type DepositServiceImpl struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	txSvc      ports.TransactionService
	gateway    ports.PaymentGateway
	transactor ports.DBTransactor
	minimum    decimal.Decimal
	log        zerolog.Logger
	now        func() time.Time
}

// NewDepositService creates a new DepositServiceImpl.
// minimum is the smallest accepted deposit in major units.
func NewDepositService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	txSvc ports.TransactionService,
	gateway ports.PaymentGateway,
	transactor ports.DBTransactor,
	minimum decimal.Decimal,
	log zerolog.Logger,
) *DepositServiceImpl {
	return &DepositServiceImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		txSvc:      txSvc,
		gateway:    gateway,
		transactor: transactor,
		minimum:    minimum,
		log:        log,
		now:        time.Now,
	}
}

// InitiateDeposit records a PENDING deposit and asks the gateway for a
// checkout URL. The balance is untouched until a settlement event arrives.
// If the gateway call fails the row stays PENDING for the sweeper.
func (s *DepositServiceImpl) InitiateDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*ports.DepositInit, error) {
	if amount.LessThan(s.minimum) {
		return nil, apperror.ErrInvalidAmount("Minimum deposit is " + s.minimum.StringFixed(domain.MoneyScale))
	}
	if !domain.HasValidScale(amount) {
		return nil, apperror.ErrInvalidAmount("Amount must have at most 2 decimal places")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storageErr("get user", err)
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageErr("get wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	reference := newReference("TXN", userID, s.now())

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if _, err := s.txSvc.Append(ctx, dbTx, ports.AppendParams{
		WalletID:  wallet.ID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    amount,
		Reference: reference,
		Status:    domain.TransactionStatusPending,
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	result, err := s.gateway.Initialize(ctx, ports.GatewayInitRequest{
		Email:       user.Email,
		AmountMinor: domain.ToMinorUnits(amount),
		Reference:   reference,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("gateway initialize failed, deposit left pending")
		return nil, apperror.ErrGateway(err)
	}

	s.log.Info().
		Str("reference", reference).
		Int64("user_id", userID).
		Str("amount", amount.StringFixed(domain.MoneyScale)).
		Msg("deposit initiated")

	return &ports.DepositInit{
		Reference:        reference,
		AuthorizationURL: result.AuthorizationURL,
	}, nil
}

// HandleSettlementEvent applies a gateway outcome to the PENDING deposit it
// names. Deliveries for an already settled reference are a successful no-op.
func (s *DepositServiceImpl) HandleSettlementEvent(ctx context.Context, event ports.SettlementEvent) error {
	var target domain.TransactionStatus
	switch event.Type {
	case ports.EventChargeSuccess:
		target = domain.TransactionStatusFailed
		if event.Status == gatewayStatusSuccess {
			target = domain.TransactionStatusSuccess
		}
	case ports.EventChargeFailed, ports.EventChargeAbandoned:
		target = domain.TransactionStatusFailed
	default:
		s.log.Debug().Str("event", event.Type).Msg("ignoring unhandled gateway event")
		return nil
	}

	_, err := s.settle(ctx, event.Reference, target)
	return err
}

// settle moves the deposit named by reference to target, crediting the wallet
// on SUCCESS. applied is false when the row was already terminal.
func (s *DepositServiceImpl) settle(ctx context.Context, reference string, target domain.TransactionStatus) (applied bool, err error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, storageErr("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.txRepo.GetByReferenceForUpdate(ctx, dbTx, reference)
	if err != nil {
		return false, storageErr("lock transaction", err)
	}
	if txn == nil {
		return false, apperror.ErrTransactionNotFound()
	}
	if txn.IsTerminal() {
		s.log.Info().
			Str("reference", reference).
			Str("status", string(txn.Status)).
			Msg("settlement already applied, skipping")
		return false, nil
	}
	if txn.Type != domain.TransactionTypeDeposit {
		return false, apperror.ErrInvalidState("Reference is not a deposit")
	}

	if target == domain.TransactionStatusSuccess {
		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, txn.WalletID)
		if err != nil {
			return false, storageErr("lock wallet", err)
		}
		if wallet == nil {
			return false, apperror.ErrWalletNotFound()
		}
		if err := writeBalance(ctx, s.walletRepo, dbTx, wallet, wallet.Balance.Add(txn.Amount)); err != nil {
			return false, err
		}
	}

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, target); err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			return false, nil
		}
		return false, storageErr("update transaction status", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return false, storageErr("commit tx", err)
	}

	s.log.Info().
		Str("reference", reference).
		Str("status", string(target)).
		Str("amount", txn.Amount.StringFixed(domain.MoneyScale)).
		Msg("deposit settled")
	return true, nil
}

// GetDepositStatus returns a deposit owned by userID.
// Deposits on another user's wallet are reported as not found.
func (s *DepositServiceImpl) GetDepositStatus(ctx context.Context, userID int64, reference string) (*domain.Transaction, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageErr("get wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, storageErr("get transaction", err)
	}
	if txn == nil || txn.WalletID != wallet.ID || txn.Type != domain.TransactionTypeDeposit {
		return nil, apperror.ErrTransactionNotFound()
	}
	return txn, nil
}

// ExpireStale fails deposits left PENDING for longer than olderThan.
// It returns how many rows it moved to FAILED.
func (s *DepositServiceImpl) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	stale, err := s.txRepo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, storageErr("list stale deposits", err)
	}

	expired := 0
	for _, txn := range stale {
		applied, err := s.settle(ctx, txn.Reference, domain.TransactionStatusFailed)
		if err != nil {
			s.log.Error().Err(err).Str("reference", txn.Reference).Msg("failed to expire stale deposit")
			continue
		}
		if applied {
			expired++
		}
	}
	return expired, nil
}
