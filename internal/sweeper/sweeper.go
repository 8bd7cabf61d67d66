// Package sweeper periodically retries deferred payouts. It is the safety
// net behind the event-triggered nudge: both are plain clients of the same
// idempotent retry operation and share no state.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tutorhive/payments/internal/service"
	"github.com/tutorhive/payments/internal/storage"
)

// Sweeper runs a payout retry pass for every payee with unsettled payouts,
// on a fixed interval.
type Sweeper struct {
	store    storage.SettlementStore
	payouts  *service.PayoutService
	interval time.Duration
	logger   *slog.Logger
}

// New creates a sweeper.
func New(store storage.SettlementStore, payouts *service.PayoutService, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{store: store, payouts: payouts, interval: interval, logger: logger}
}

// Start begins the sweep loop and blocks until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass. Exported for operator tooling and
// tests.
func (s *Sweeper) RunOnce(ctx context.Context) {
	payees, err := s.store.PayeesWithUnsettledPayouts(ctx)
	if err != nil {
		s.logger.Error("sweep failed to list payees", "error", err)
		return
	}
	if len(payees) == 0 {
		return
	}

	s.logger.Info("payout sweep starting", "payees", len(payees))
	for _, payeeID := range payees {
		outcome, err := s.payouts.RetryForPayee(ctx, payeeID)
		if err != nil {
			// Ineligible payees are the normal reason payouts defer; they
			// stay parked until eligibility turns on.
			if errors.Is(err, service.ErrPayeeNotEligible) || errors.Is(err, service.ErrPayeeNotOnboarded) {
				s.logger.Debug("sweep skipping ineligible payee", "payee_id", payeeID, "error", err)
				continue
			}
			s.logger.Error("sweep retry failed", "payee_id", payeeID, "error", err)
			continue
		}
		if outcome.Succeeded > 0 || outcome.Failed > 0 {
			s.logger.Info("sweep retry finished",
				"payee_id", payeeID,
				"succeeded", outcome.Succeeded,
				"failed", outcome.Failed,
				"total_transferred", outcome.TotalTransferred,
			)
		}
	}
}
