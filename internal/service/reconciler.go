package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/observability/metrics"
	"github.com/tutorhive/payments/internal/processor"
	"github.com/tutorhive/payments/internal/storage"
)

// Reconciler consumes verified processor notifications and advances local
// settlement state. It is idempotent by construction: the only writes are
// compare-and-swap transitions out of pending, so redelivering an event any
// number of times, in any order, converges on the same terminal state.
type Reconciler struct {
	store       storage.Store
	eligibility *EligibilityService
	logger      *slog.Logger
}

// NewReconciler creates an event reconciler. The eligibility service is
// optional; without it, account update notifications are acknowledged and
// dropped.
func NewReconciler(store storage.Store, eligibility *EligibilityService, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, eligibility: eligibility, logger: logger}
}

// HandleNotification dispatches a verified notification. Signature
// verification has already happened at the transport boundary. A returned
// error means the event was not durably processed and should be
// redelivered; unknown references are not errors.
func (r *Reconciler) HandleNotification(ctx context.Context, n *processor.Notification) error {
	switch n.Kind {
	case processor.ChargeSucceeded:
		return r.reconcileCharge(ctx, n, models.SettlementCompleted)
	case processor.ChargeFailed, processor.ChargeCanceled:
		return r.reconcileCharge(ctx, n, models.SettlementFailed)
	case processor.AccountUpdated:
		return r.reconcileAccount(ctx, n)
	default:
		metrics.ObserveNotification(string(n.Kind), metrics.ResultNoop)
		return nil
	}
}

func (r *Reconciler) reconcileCharge(ctx context.Context, n *processor.Notification, to models.SettlementStatus) error {
	record, err := r.store.GetSettlementByChargeRef(ctx, n.ChargeRef)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			// Stale or foreign event; may reference another environment.
			// Acknowledged, never an error.
			r.logger.Debug("notification for unknown charge ref",
				"event_id", n.EventID, "charge_ref", n.ChargeRef)
			metrics.ObserveNotification(string(n.Kind), metrics.ResultNoop)
			return nil
		}
		metrics.ObserveNotification(string(n.Kind), metrics.ResultError)
		return fmt.Errorf("failed to look up charge ref: %w", err)
	}

	ok, err := r.store.TransitionStatus(ctx, record.ID, models.SettlementPending, to)
	if err != nil {
		metrics.ObserveNotification(string(n.Kind), metrics.ResultError)
		return fmt.Errorf("failed to transition settlement %s: %w", record.ID, err)
	}
	if !ok {
		// Expected under redelivery: the record already left pending.
		r.logger.Debug("settlement already transitioned",
			"event_id", n.EventID, "record_id", record.ID, "target", to)
		metrics.ObserveNotification(string(n.Kind), metrics.ResultNoop)
		return nil
	}

	var projErr error
	if to == models.SettlementCompleted {
		projErr = r.store.MarkPaid(ctx, record.EngagementID)
	} else {
		projErr = r.store.MarkPaymentFailed(ctx, record.EngagementID)
	}
	if projErr != nil {
		// The settlement transition already committed; the stale projection
		// is an anomaly for operators, not a reason to unwind money state.
		r.logger.Error("settlement transitioned but engagement projection update failed",
			"event_id", n.EventID,
			"record_id", record.ID,
			"engagement_id", record.EngagementID,
			"target", to,
			"error", projErr,
		)
	}

	metrics.ObserveNotification(string(n.Kind), metrics.ResultSuccess)
	r.logger.Info("settlement reconciled",
		"event_id", n.EventID, "record_id", record.ID, "status", to)
	return nil
}

func (r *Reconciler) reconcileAccount(ctx context.Context, n *processor.Notification) error {
	if r.eligibility == nil {
		metrics.ObserveNotification(string(n.Kind), metrics.ResultNoop)
		return nil
	}

	account, err := r.store.GetPayeeAccountByAccountRef(ctx, n.AccountRef)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			r.logger.Debug("account notification for unknown account ref",
				"event_id", n.EventID, "account_ref", n.AccountRef)
			metrics.ObserveNotification(string(n.Kind), metrics.ResultNoop)
			return nil
		}
		metrics.ObserveNotification(string(n.Kind), metrics.ResultError)
		return fmt.Errorf("failed to look up account ref: %w", err)
	}

	if _, err := r.eligibility.CheckAndMaybeTriggerRetry(ctx, account.PayeeID); err != nil {
		metrics.ObserveNotification(string(n.Kind), metrics.ResultError)
		return fmt.Errorf("failed to refresh eligibility for payee %s: %w", account.PayeeID, err)
	}

	metrics.ObserveNotification(string(n.Kind), metrics.ResultSuccess)
	return nil
}
