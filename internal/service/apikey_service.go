package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// secretBytes is the amount of random material in a secret key.
const secretBytes = 32

// APIKeyPolicy describes the shape of issued secrets.
// A secret is Tag followed by the base64url body; the stored prefix is Tag
// plus the first PrefixLength characters of the body.
type APIKeyPolicy struct {
	Tag          string
	PrefixLength int
	MaxActive    int
}

// APIKeyServiceImpl implements ports.APIKeyService.
type APIKeyServiceImpl struct {
	keyRepo    ports.APIKeyRepository
	userRepo   ports.UserRepository
	hashSvc    ports.HashService
	transactor ports.DBTransactor
	policy     APIKeyPolicy
	log        zerolog.Logger
	now        func() time.Time
}

// NewAPIKeyService creates a new APIKeyServiceImpl.
func NewAPIKeyService(
	keyRepo ports.APIKeyRepository,
	userRepo ports.UserRepository,
	hashSvc ports.HashService,
	transactor ports.DBTransactor,
	policy APIKeyPolicy,
	log zerolog.Logger,
) *APIKeyServiceImpl {
	return &APIKeyServiceImpl{
		keyRepo:    keyRepo,
		userRepo:   userRepo,
		hashSvc:    hashSvc,
		transactor: transactor,
		policy:     policy,
		log:        log,
		now:        time.Now,
	}
}

// Issue creates a new key for req.UserID and returns its secret.
// The secret is not recoverable afterwards.
func (s *APIKeyServiceImpl) Issue(ctx context.Context, req ports.IssueKeyRequest) (*ports.IssuedKey, error) {
	now := s.now().UTC()
	expiresAt, ok := req.Expiry.ExpiresAt(now)
	if !ok {
		return nil, apperror.ErrInvalidExpiry()
	}
	perms, err := normalizePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Serialise issuance per user so the count below cannot race
	user, err := s.userRepo.GetByIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, storageErr("lock user", err)
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	active, err := s.keyRepo.CountActive(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, storageErr("count active keys", err)
	}
	if active >= s.policy.MaxActive {
		return nil, apperror.ErrKeyLimitExceeded(s.policy.MaxActive)
	}

	body, err := generateSecretBody()
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("generate secret: %w", err))
	}
	hash, err := s.hashSvc.Hash(body)
	if err != nil {
		return nil, apperror.ErrStorage(fmt.Errorf("hash secret: %w", err))
	}

	key := &domain.APIKey{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Name:        req.Name,
		KeyPrefix:   s.policy.Tag + body[:s.policy.PrefixLength],
		KeyHash:     hash,
		Permissions: perms,
		Status:      domain.APIKeyStatusActive,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.keyRepo.Create(ctx, dbTx, key); err != nil {
		return nil, storageErr("create api key", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageErr("commit tx", err)
	}

	s.log.Info().
		Int64("user_id", req.UserID).
		Str("key_id", key.ID.String()).
		Str("key_prefix", key.KeyPrefix).
		Time("expires_at", expiresAt).
		Msg("api key issued")

	return &ports.IssuedKey{
		ID:        key.ID,
		Secret:    s.policy.Tag + body,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify resolves a presented secret to its key.
// Candidates come from the prefix index; each is checked with a constant-time hash comparison.
func (s *APIKeyServiceImpl) Verify(ctx context.Context, presented string) (*domain.APIKey, error) {
	body, ok := strings.CutPrefix(presented, s.policy.Tag)
	if !ok || len(body) < s.policy.PrefixLength {
		return nil, apperror.ErrUnauthorized("Invalid API key")
	}
	prefix := s.policy.Tag + body[:s.policy.PrefixLength]

	candidates, err := s.keyRepo.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, storageErr("list keys by prefix", err)
	}

	for i := range candidates {
		key := &candidates[i]
		match, err := s.hashSvc.Verify(body, key.KeyHash)
		if err != nil {
			s.log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("unreadable api key hash")
			continue
		}
		if !match {
			continue
		}
		if key.IsExpired(s.now()) {
			return nil, apperror.ErrKeyExpired()
		}
		if !key.IsActive() {
			return nil, apperror.ErrKeyRevoked()
		}
		return key, nil
	}
	return nil, apperror.ErrUnauthorized("Invalid API key")
}

// Rollover replaces an expired key with a fresh one carrying the same name
// and permissions. Keys that have not yet expired are rejected.
func (s *APIKeyServiceImpl) Rollover(ctx context.Context, userID int64, keyID uuid.UUID, expiry domain.ExpiryCode) (*ports.IssuedKey, error) {
	key, err := s.ownedKey(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}
	if !key.IsExpired(s.now()) {
		return nil, apperror.ErrInvalidState("API key has not expired yet")
	}

	return s.Issue(ctx, ports.IssueKeyRequest{
		UserID:      userID,
		Name:        key.Name,
		Permissions: key.Permissions,
		Expiry:      expiry,
	})
}

// Revoke moves an owned ACTIVE key to REVOKED.
func (s *APIKeyServiceImpl) Revoke(ctx context.Context, userID int64, keyID uuid.UUID) error {
	if _, err := s.ownedKey(ctx, userID, keyID); err != nil {
		return err
	}
	if err := s.keyRepo.Revoke(ctx, keyID); err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			return apperror.ErrInvalidState("API key is already revoked")
		}
		return storageErr("revoke api key", err)
	}

	s.log.Info().
		Int64("user_id", userID).
		Str("key_id", keyID.String()).
		Msg("api key revoked")
	return nil
}

// List returns the user's keys without their hashes.
func (s *APIKeyServiceImpl) List(ctx context.Context, userID int64) ([]domain.APIKey, error) {
	keys, err := s.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list api keys", err)
	}
	return keys, nil
}

func (s *APIKeyServiceImpl) ownedKey(ctx context.Context, userID int64, keyID uuid.UUID) (*domain.APIKey, error) {
	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return nil, storageErr("get api key", err)
	}
	if key == nil {
		return nil, apperror.ErrNotFound("API key")
	}
	if key.UserID != userID {
		return nil, apperror.ErrUnauthorized("API key does not belong to you")
	}
	return key, nil
}

// generateSecretBody returns 32 random bytes as unpadded base64url.
func generateSecretBody() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// normalizePermissions validates and de-duplicates perms, keeping their order.
func normalizePermissions(perms []domain.Permission) ([]domain.Permission, error) {
	if len(perms) == 0 {
		return nil, apperror.Validation("At least one permission is required")
	}
	seen := make(map[domain.Permission]bool, len(perms))
	out := make([]domain.Permission, 0, len(perms))
	for _, p := range perms {
		if !p.IsValid() {
			return nil, apperror.Validation(fmt.Sprintf("Unknown permission: %s", p))
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}
