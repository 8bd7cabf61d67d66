package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/processor"
	"github.com/tutorhive/payments/internal/storage"
)

// Nudger enqueues an asynchronous payout retry for a payee. Enqueue must
// never block; dropping under pressure is acceptable because the scheduled
// sweep is the safety net for missed nudges.
type Nudger interface {
	Enqueue(payeeID string) bool
}

// EligibilityService refreshes a payee's account capability flags from the
// processor and nudges the payout retry when eligibility newly turns on.
type EligibilityService struct {
	store   storage.Store
	gateway processor.Gateway
	nudger  Nudger
	logger  *slog.Logger
}

// NewEligibilityService creates an eligibility service. The nudger is
// optional; without it the check only refreshes flags.
func NewEligibilityService(store storage.Store, gateway processor.Gateway, nudger Nudger, logger *slog.Logger) *EligibilityService {
	return &EligibilityService{store: store, gateway: gateway, nudger: nudger, logger: logger}
}

// CheckAndMaybeTriggerRetry queries the processor for the payee's current
// flags, persists them, and on the not-eligible to eligible transition
// enqueues a payout retry. The nudge is fire-and-forget: its failure never
// fails the check itself.
func (e *EligibilityService) CheckAndMaybeTriggerRetry(ctx context.Context, payeeID string) (models.EligibilityFlags, error) {
	account, err := e.store.GetPayeeAccount(ctx, payeeID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return models.EligibilityFlags{}, fmt.Errorf("%w: %s", ErrPayeeNotOnboarded, payeeID)
		}
		return models.EligibilityFlags{}, fmt.Errorf("failed to load payee account: %w", err)
	}
	if !account.Onboarded() {
		return models.EligibilityFlags{}, fmt.Errorf("%w: %s", ErrPayeeNotOnboarded, payeeID)
	}

	wasEligible := account.Flags.Eligible()

	flags, err := e.gateway.GetAccountFlags(ctx, account.AccountRef)
	if err != nil {
		return models.EligibilityFlags{}, fmt.Errorf("failed to fetch account flags: %w", err)
	}

	if err := e.store.UpdateEligibilityFlags(ctx, payeeID, flags); err != nil {
		return models.EligibilityFlags{}, fmt.Errorf("failed to persist eligibility flags: %w", err)
	}

	if !wasEligible && flags.Eligible() && e.nudger != nil {
		if e.nudger.Enqueue(payeeID) {
			e.logger.Info("payee became eligible, payout retry nudged", "payee_id", payeeID)
		} else {
			e.logger.Warn("payee became eligible but nudge queue is full, deferring to sweep",
				"payee_id", payeeID)
		}
	}

	return flags, nil
}
