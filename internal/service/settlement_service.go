package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tutorhive/payments/internal/fees"
	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/observability/metrics"
	"github.com/tutorhive/payments/internal/processor"
	"github.com/tutorhive/payments/internal/storage"
)

// SettlementService opens settlements: it validates the request, computes
// the fee split, authorizes the charge at the processor and records the
// attempt locally.
type SettlementService struct {
	store    storage.Store
	gateway  processor.Gateway
	rateBps  int64
	currency string
	logger   *slog.Logger
}

// NewSettlementService creates a settlement service with the given fee rate
// in basis points.
func NewSettlementService(store storage.Store, gateway processor.Gateway, rateBps int64, currency string, logger *slog.Logger) *SettlementService {
	return &SettlementService{
		store:    store,
		gateway:  gateway,
		rateBps:  rateBps,
		currency: currency,
		logger:   logger,
	}
}

// CreateResult is returned to the paying client.
type CreateResult struct {
	RecordID string

	// ClientHandle lets the payer's client confirm the charge.
	ClientHandle string
}

// CreateSettlement charges the payer on behalf of the payee for an
// engagement. The external authorization is created before the local
// record; if the local write then fails, the orphaned authorization is
// surfaced as ErrPartialFailure and logged for manual reconciliation (no
// automatic external rollback is attempted).
func (s *SettlementService) CreateSettlement(ctx context.Context, engagementID string, amount int64, payeeID, callerID string) (*CreateResult, error) {
	engagement, err := s.store.GetEngagement(ctx, engagementID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEngagementNotFound, engagementID)
		}
		return nil, fmt.Errorf("failed to load engagement: %w", err)
	}

	if callerID != engagement.PayerID {
		return nil, fmt.Errorf("%w: caller %s", ErrUnauthorized, callerID)
	}
	if payeeID != engagement.PayeeID {
		return nil, fmt.Errorf("%w: payee %s, engagement %s", ErrPayeeMismatch, payeeID, engagementID)
	}

	account, err := s.store.GetPayeeAccount(ctx, payeeID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPayeeNotOnboarded, payeeID)
		}
		return nil, fmt.Errorf("failed to load payee account: %w", err)
	}
	if !account.Onboarded() {
		return nil, fmt.Errorf("%w: %s", ErrPayeeNotOnboarded, payeeID)
	}

	platformFee, payeePayout, err := fees.Split(amount, s.rateBps)
	if err != nil {
		return nil, err
	}

	authorization, err := s.gateway.CreateDestinationCharge(ctx, processor.ChargeParams{
		Amount:             amount,
		PlatformFee:        platformFee,
		Currency:           s.currency,
		DestinationAccount: account.AccountRef,
		EngagementID:       engagementID,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The request may have reached the processor before the deadline:
			// an authorization could exist with no local record.
			metrics.ObserveOrphanedAuthorization()
			s.logger.Error("charge authorization outcome unknown",
				"engagement_id", engagementID,
				"amount", amount,
				"error", err,
			)
			return nil, fmt.Errorf("%w: charge authorization timed out: %v", ErrPartialFailure, err)
		}
		return nil, fmt.Errorf("failed to authorize charge: %w", err)
	}

	record := &models.SettlementRecord{
		EngagementID: engagementID,
		Amount:       amount,
		PlatformFee:  platformFee,
		PayeePayout:  payeePayout,
		Status:       models.SettlementPending,
		ChargeRef:    authorization.ChargeRef,
	}
	if err := s.store.CreateSettlement(ctx, record); err != nil {
		// The external authorization exists with no local record. Nothing
		// here rolls it back; the charge ref in the log is the handle for
		// manual reconciliation.
		metrics.ObserveOrphanedAuthorization()
		s.logger.Error("charge authorized but local record creation failed",
			"engagement_id", engagementID,
			"charge_ref", authorization.ChargeRef,
			"amount", amount,
			"error", err,
		)
		return nil, fmt.Errorf("%w (charge ref %s): %v", ErrPartialFailure, authorization.ChargeRef, err)
	}

	metrics.ObserveSettlementCreated()
	s.logger.Info("settlement created",
		"record_id", record.ID,
		"engagement_id", engagementID,
		"amount", amount,
		"platform_fee", platformFee,
		"payee_payout", payeePayout,
		"charge_ref", authorization.ChargeRef,
	)

	return &CreateResult{
		RecordID:     record.ID,
		ClientHandle: authorization.ClientHandle,
	}, nil
}

// ListForPayee returns the caller's own settlement history, newest first.
func (s *SettlementService) ListForPayee(ctx context.Context, payeeID string) ([]*models.SettlementRecord, error) {
	return s.store.ListSettlementsByPayee(ctx, payeeID)
}

// GetSettlement returns a record if the caller is the engagement's payer or
// payee.
func (s *SettlementService) GetSettlement(ctx context.Context, recordID, callerID string) (*models.SettlementRecord, error) {
	record, err := s.store.GetSettlement(ctx, recordID)
	if err != nil {
		return nil, err
	}
	engagement, err := s.store.GetEngagement(ctx, record.EngagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load engagement: %w", err)
	}
	if callerID != engagement.PayerID && callerID != engagement.PayeeID {
		return nil, fmt.Errorf("%w: caller %s", ErrUnauthorized, callerID)
	}
	return record, nil
}
