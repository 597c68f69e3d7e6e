package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/rs/zerolog"
)

// IdentityServiceImpl implements ports.IdentityService.
type IdentityServiceImpl struct {
	userRepo   ports.UserRepository
	walletSvc  ports.WalletService
	tokenSvc   ports.TokenService
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewIdentityService creates a new IdentityServiceImpl.
func NewIdentityService(
	userRepo ports.UserRepository,
	walletSvc ports.WalletService,
	tokenSvc ports.TokenService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *IdentityServiceImpl {
	return &IdentityServiceImpl{
		userRepo:   userRepo,
		walletSvc:  walletSvc,
		tokenSvc:   tokenSvc,
		transactor: transactor,
		log:        log,
	}
}

// LoginFederated finds the user behind a federated login, creating the user
// and wallet together on first sight, and issues an identity token.
func (s *IdentityServiceImpl) LoginFederated(ctx context.Context, p domain.FederatedPrincipal) (*ports.LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return nil, apperror.ErrUnauthorized("Federated identity carries no email")
	}
	p.Email = email

	user, err := s.findFederated(ctx, p)
	if err != nil {
		return nil, err
	}

	var wallet *domain.Wallet
	if user == nil {
		user, wallet, err = s.register(ctx, p)
		if err != nil {
			return nil, err
		}
	}

	if wallet == nil {
		wallet, err = s.walletSvc.GetByUser(ctx, user.ID)
		if apperror.HasCode(err, apperror.CodeNotFound) {
			// Users created before wallets were coupled to sign-up
			wallet, err = s.walletSvc.CreateWallet(ctx, user.ID)
		}
		if err != nil {
			return nil, err
		}
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.Email)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("generate token: %w", err))
	}

	s.log.Info().Int64("user_id", user.ID).Msg("federated login")

	return &ports.LoginResult{
		Token:        token,
		ExpiresAt:    expiresAt,
		User:         user,
		WalletNumber: wallet.WalletNumber,
	}, nil
}

// findFederated looks the user up by subject, then by email. A user found by
// email is linked to the subject. Returns (nil, nil) for a new identity.
func (s *IdentityServiceImpl) findFederated(ctx context.Context, p domain.FederatedPrincipal) (*domain.User, error) {
	if p.Subject != "" {
		user, err := s.userRepo.GetByFederatedSubject(ctx, p.Subject)
		if err != nil {
			return nil, storageErr("get user by subject", err)
		}
		if user != nil {
			return user, nil
		}
	}

	user, err := s.userRepo.GetByEmail(ctx, p.Email)
	if err != nil {
		return nil, storageErr("get user by email", err)
	}
	if user == nil || p.Subject == "" || user.FederatedSubject != nil {
		return user, nil
	}

	if err := s.linkSubject(ctx, user, p.Subject); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *IdentityServiceImpl) linkSubject(ctx context.Context, user *domain.User, subject string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.userRepo.SetFederatedSubject(ctx, dbTx, user.ID, subject); err != nil {
		return storageErr("link federated subject", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return storageErr("commit tx", err)
	}
	user.FederatedSubject = &subject
	return nil
}

// register creates the user and its wallet in one unit of work. If a
// concurrent login created the same email first, that user is returned.
func (s *IdentityServiceImpl) register(ctx context.Context, p domain.FederatedPrincipal) (*domain.User, *domain.Wallet, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, storageErr("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	user := &domain.User{
		Email:     p.Email,
		FullName:  p.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Subject != "" {
		subject := p.Subject
		user.FederatedSubject = &subject
	}

	if err := s.userRepo.Create(ctx, dbTx, user); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			_ = dbTx.Rollback(ctx)
			existing, lookupErr := s.userRepo.GetByEmail(ctx, p.Email)
			if lookupErr != nil {
				return nil, nil, storageErr("get user by email", lookupErr)
			}
			if existing != nil {
				return existing, nil, nil
			}
		}
		return nil, nil, storageErr("create user", err)
	}

	wallet, err := s.walletSvc.CreateWalletTx(ctx, dbTx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, storageErr("commit tx", err)
	}

	s.log.Info().
		Int64("user_id", user.ID).
		Str("wallet_number", wallet.WalletNumber).
		Msg("user registered")
	return user, wallet, nil
}

// ResolveToken maps a verified token to a live user.
func (s *IdentityServiceImpl) ResolveToken(ctx context.Context, p domain.TokenPrincipal) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, storageErr("get user", err)
	}
	if user == nil {
		return nil, apperror.ErrUnauthorized("User no longer exists")
	}
	return user, nil
}
