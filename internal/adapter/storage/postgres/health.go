package postgres

import (
	"context"
	"errors"
	"fmt"
)

// HealthCheck implements ports.HealthChecker for PostgreSQL.
// A reachable database without the ledger tables reports unhealthy.
type HealthCheck struct {
	pool Pool
}

// NewHealthCheck creates a PostgreSQL health checker.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping checks connectivity and that the schema has been migrated.
func (h *HealthCheck) Ping(ctx context.Context) error {
	var migrated bool
	err := h.pool.QueryRow(ctx, `SELECT to_regclass('public.wallets') IS NOT NULL`).Scan(&migrated)
	if err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if !migrated {
		return errors.New("postgres schema not migrated")
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "postgresql"
}
