package postgres

import (
	"errors"
	"fmt"

	"wallet-service/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

// mapError wraps err with op and, for known SQLSTATEs, the matching ports sentinel.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, ports.ErrUniqueViolation, pgErr.ConstraintName)
		case pgLockNotAvailable:
			return fmt.Errorf("%s: %w", op, ports.ErrLockTimeout)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
