package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-service/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, full_name, federated_subject, created_at, updated_at`

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create inserts a user and sets u.ID from the generated key.
func (r *UserRepo) Create(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	query := `INSERT INTO users (email, full_name, federated_subject, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	err := tx.QueryRow(ctx, query,
		u.Email, u.FullName, u.FederatedSubject, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return mapError("insert user", err)
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id), "get user by id")
}

// GetByEmail fetches a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email), "get user by email")
}

// GetByFederatedSubject fetches a user by the identity provider subject.
func (r *UserRepo) GetByFederatedSubject(ctx context.Context, subject string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE federated_subject = $1`
	return scanUser(r.pool.QueryRow(ctx, query, subject), "get user by subject")
}

// GetByIDForUpdate locks the user row for the rest of the transaction.
func (r *UserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(tx.QueryRow(ctx, query, id), "get user for update")
}

// SetFederatedSubject links an existing user to an identity provider subject.
func (r *UserRepo) SetFederatedSubject(ctx context.Context, tx pgx.Tx, id int64, subject string) error {
	query := `UPDATE users SET federated_subject = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, subject, id)
	if err != nil {
		return mapError("set federated subject", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %d", id)
	}
	return nil
}

func scanUser(row pgx.Row, op string) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.FederatedSubject, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(op, err)
	}
	return u, nil
}
