package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const apiKeyColumns = `id, user_id, name, key_prefix, key_hash, permissions, status, expires_at, created_at, updated_at`

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// Create inserts a new key within a database transaction.
func (r *APIKeyRepo) Create(ctx context.Context, tx pgx.Tx, k *domain.APIKey) error {
	query := `INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		k.ID, k.UserID, k.Name, k.KeyPrefix, k.KeyHash, permissionStrings(k.Permissions),
		k.Status, k.ExpiresAt, k.CreatedAt, k.UpdatedAt,
	)
	if err != nil {
		return mapError("insert api key", err)
	}
	return nil
}

// GetByID fetches a key by id.
func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	k, err := scanAPIKey(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key by id: %w", err)
	}
	return k, nil
}

// CountActive counts a user's ACTIVE keys. Call it after locking the user row.
func (r *APIKeyRepo) CountActive(ctx context.Context, tx pgx.Tx, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND status = 'ACTIVE'`

	var n int
	if err := tx.QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, mapError("count active api keys", err)
	}
	return n, nil
}

// ListByPrefix returns all keys stored under a prefix, any status.
func (r *APIKeyRepo) ListByPrefix(ctx context.Context, prefix string) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("list api keys by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

// ListByUser returns a user's keys, newest first.
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID int64) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys by user: %w", err)
	}
	return collectAPIKeys(rows)
}

// Revoke marks an ACTIVE key as REVOKED.
func (r *APIKeyRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE api_keys SET status = 'REVOKED', updated_at = NOW() WHERE id = $1 AND status = 'ACTIVE'`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("revoke api key %s: %w", id, ports.ErrStatusConflict)
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]domain.APIKey, error) {
	defer rows.Close()

	keys := make([]domain.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}
	return keys, nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	var perms []string
	err := row.Scan(
		&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &k.KeyHash, &perms,
		&k.Status, &k.ExpiresAt, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	k.Permissions = make([]domain.Permission, 0, len(perms))
	for _, p := range perms {
		k.Permissions = append(k.Permissions, domain.Permission(p))
	}
	return k, nil
}

func permissionStrings(perms []domain.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
