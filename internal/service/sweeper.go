package service

import (
	"context"
	"time"

	"wallet-service/internal/core/ports"

	"github.com/rs/zerolog"
)

const (
	sweepBatchSize  = 100
	sweepTimeout    = 30 * time.Second
	defaultInterval = 15 * time.Minute
	defaultTTL      = 24 * time.Hour
)

// DepositSweeper periodically fails deposits that never received a webhook.
type DepositSweeper struct {
	deposits ports.DepositService
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// NewDepositSweeper creates a sweeper. Non-positive values fall back to a
// 24 hour TTL and a 15 minute interval.
func NewDepositSweeper(deposits ports.DepositService, ttl, interval time.Duration, log zerolog.Logger) *DepositSweeper {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &DepositSweeper{
		deposits: deposits,
		ttl:      ttl,
		interval: interval,
		log:      log,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *DepositSweeper) Run(ctx context.Context) {
	w.log.Info().
		Dur("ttl", w.ttl).
		Dur("interval", w.interval).
		Msg("deposit sweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			w.log.Info().Msg("deposit sweeper stopped")
			return
		}
	}
}

func (w *DepositSweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := w.deposits.ExpireStale(ctx, w.ttl, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("stale deposit sweep failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("expired stale deposits")
	}
}
