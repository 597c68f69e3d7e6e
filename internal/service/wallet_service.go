package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// walletNumberAttempts bounds collisions tolerated at one width.
	walletNumberAttempts = 10
	// walletNumberWiden is added to the width once a round is exhausted.
	walletNumberWiden = 2
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
	genNumber  func(digits int) (string, error)
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		transactor: transactor,
		log:        log,
		genNumber:  randomDigits,
	}
}

// CreateWallet creates an empty wallet for userID in its own transaction.
func (s *WalletServiceImpl) CreateWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.CreateWalletTx(ctx, dbTx, userID)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}
	return w, nil
}

// CreateWalletTx creates an empty wallet for userID inside dbTx, or returns
// the one the user already owns.
// Wallet numbers are sampled uniformly from crypto/rand. After
// walletNumberAttempts collisions the width grows by walletNumberWiden and
// sampling continues for one more round.
func (s *WalletServiceImpl) CreateWalletTx(ctx context.Context, dbTx pgx.Tx, userID int64) (*domain.Wallet, error) {
	existing, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageErr("get wallet by user", err)
	}
	if existing != nil {
		return existing, nil
	}

	for _, digits := range []int{domain.WalletNumberLength, domain.WalletNumberLength + walletNumberWiden} {
		for attempt := 0; attempt < walletNumberAttempts; attempt++ {
			number, err := s.genNumber(digits)
			if err != nil {
				return nil, apperror.ErrStorage(fmt.Errorf("generate wallet number: %w", err))
			}

			taken, err := s.walletRepo.ExistsByNumber(ctx, number)
			if err != nil {
				return nil, storageErr("check wallet number", err)
			}
			if taken {
				continue
			}

			w := domain.NewWallet(userID, number)
			inserted, err := s.insert(ctx, dbTx, w)
			if err != nil {
				return nil, err
			}
			if !inserted {
				continue
			}

			s.log.Info().
				Int64("user_id", userID).
				Str("wallet_id", w.ID.String()).
				Msg("wallet created")
			return w, nil
		}
		s.log.Warn().Int("digits", digits).Msg("wallet number space congested, widening")
	}
	return nil, apperror.ErrStorage(errors.New("wallet number space exhausted"))
}

// insert runs the insert under a savepoint so a unique violation leaves dbTx usable.
// inserted is false when the number was taken concurrently.
func (s *WalletServiceImpl) insert(ctx context.Context, dbTx pgx.Tx, w *domain.Wallet) (inserted bool, err error) {
	sp, err := dbTx.Begin(ctx)
	if err != nil {
		return false, storageErr("savepoint", err)
	}
	if err := s.walletRepo.Create(ctx, sp, w); err != nil {
		_ = sp.Rollback(ctx)
		if errors.Is(err, ports.ErrUniqueViolation) {
			return false, nil
		}
		return false, storageErr("insert wallet", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return false, storageErr("release savepoint", err)
	}
	return true, nil
}

// GetByUser returns the wallet owned by userID.
func (s *WalletServiceImpl) GetByUser(ctx context.Context, userID int64) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageErr("get wallet by user", err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// GetByNumber returns the wallet with the given public number.
func (s *WalletServiceImpl) GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByNumber(ctx, walletNumber)
	if err != nil {
		return nil, storageErr("get wallet by number", err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// GetBalance reads the current balance of the user's wallet.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	w, err := s.GetByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

var ten = big.NewInt(10)

// randomDigits returns n uniformly random ASCII digits.
func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf), nil
}
