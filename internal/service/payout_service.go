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

// PayoutService executes deferred payout transfers for completed
// settlements that have none yet. It is safe to invoke from any number of
// concurrent callers (scheduled sweep, eligibility nudge, operator): the
// transfer carries the record ID as a processor-side idempotency key, and
// the transfer ref write is first-wins at the store.
type PayoutService struct {
	store    storage.Store
	gateway  processor.Gateway
	currency string
	logger   *slog.Logger
}

// NewPayoutService creates a payout service.
func NewPayoutService(store storage.Store, gateway processor.Gateway, currency string, logger *slog.Logger) *PayoutService {
	return &PayoutService{store: store, gateway: gateway, currency: currency, logger: logger}
}

// RecordOutcome is the per-record result of a payout attempt.
type RecordOutcome struct {
	RecordID    string `json:"record_id"`
	Success     bool   `json:"success"`
	TransferRef string `json:"transfer_ref,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

// RetryOutcome aggregates a retry pass over one payee.
type RetryOutcome struct {
	PayeeID          string          `json:"payee_id"`
	Results          []RecordOutcome `json:"results"`
	Succeeded        int             `json:"succeeded"`
	Failed           int             `json:"failed"`
	TotalTransferred int64           `json:"total_transferred"`
}

// RetryForPayee attempts a payout transfer for every completed, unsettled
// record of the payee. A single record's failure never aborts the loop; the
// failed record stays selectable for the next pass. Calling this twice in a
// row moves no extra money: settled records drop out of the query.
func (p *PayoutService) RetryForPayee(ctx context.Context, payeeID string) (*RetryOutcome, error) {
	account, err := p.eligibleAccount(ctx, payeeID)
	if err != nil {
		return nil, err
	}

	outcome := &RetryOutcome{PayeeID: payeeID}

	// Drain the scan before transferring: settleOne writes transfer refs to
	// the same table, and the store cannot accept those writes while the
	// read cursor is still open.
	var records []*models.SettlementRecord
	for record, err := range p.store.UnsettledPayouts(ctx, payeeID) {
		if err != nil {
			return outcome, fmt.Errorf("failed to scan unsettled payouts: %w", err)
		}
		records = append(records, record)
	}

	for _, record := range records {
		result := p.settleOne(ctx, record, account)
		outcome.Results = append(outcome.Results, result)
		if result.Success {
			outcome.Succeeded++
			outcome.TotalTransferred += record.PayeePayout
		} else {
			outcome.Failed++
		}
	}

	p.logger.Info("payout retry pass finished",
		"payee_id", payeeID,
		"succeeded", outcome.Succeeded,
		"failed", outcome.Failed,
		"total_transferred", outcome.TotalTransferred,
	)
	return outcome, nil
}

// RetrySingle runs the same transfer-then-record logic for one record, for
// operator-triggered recovery.
func (p *PayoutService) RetrySingle(ctx context.Context, recordID string) (*RecordOutcome, error) {
	record, err := p.store.GetSettlement(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Transferred() {
		return nil, fmt.Errorf("%w: %s has %s", ErrAlreadyTransferred, recordID, record.TransferRef)
	}
	if record.Status != models.SettlementCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotYetCompleted, recordID, record.Status)
	}

	engagement, err := p.store.GetEngagement(ctx, record.EngagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load engagement: %w", err)
	}
	account, err := p.eligibleAccount(ctx, engagement.PayeeID)
	if err != nil {
		return nil, err
	}

	result := p.settleOne(ctx, record, account)
	return &result, nil
}

func (p *PayoutService) eligibleAccount(ctx context.Context, payeeID string) (*models.PayeeAccount, error) {
	account, err := p.store.GetPayeeAccount(ctx, payeeID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPayeeNotOnboarded, payeeID)
		}
		return nil, fmt.Errorf("failed to load payee account: %w", err)
	}
	if !account.Onboarded() {
		return nil, fmt.Errorf("%w: %s", ErrPayeeNotOnboarded, payeeID)
	}
	if !account.Flags.Eligible() {
		return nil, fmt.Errorf("%w: %s", ErrPayeeNotEligible, payeeID)
	}
	return account, nil
}

// settleOne executes transfer-then-record for a single settlement. The
// order matters: a local record claiming a transfer that never happened is
// the worse failure mode than a real transfer not yet reflected locally,
// which the next pass reconciles.
func (p *PayoutService) settleOne(ctx context.Context, record *models.SettlementRecord, account *models.PayeeAccount) RecordOutcome {
	transfer, err := p.gateway.CreateTransfer(ctx, processor.TransferParams{
		Amount:             record.PayeePayout,
		Currency:           p.currency,
		DestinationAccount: account.AccountRef,
		RecordID:           record.ID,
	})
	if err != nil {
		metrics.ObserveTransfer(metrics.ResultError, 0)
		p.logger.Warn("payout transfer failed",
			"record_id", record.ID,
			"payee_id", account.PayeeID,
			"amount", record.PayeePayout,
			"error", err,
		)
		return RecordOutcome{RecordID: record.ID, ErrorKind: "transfer_failed"}
	}

	ok, err := p.store.SetTransferRef(ctx, record.ID, transfer.TransferRef)
	if err != nil {
		// The transfer went through but the local write failed. The record
		// stays selectable; the idempotency key makes the next pass's
		// resubmission collapse into this transfer at the processor.
		metrics.ObserveTransfer(metrics.ResultError, 0)
		p.logger.Error("transfer executed but recording failed",
			"record_id", record.ID,
			"transfer_ref", transfer.TransferRef,
			"error", err,
		)
		return RecordOutcome{RecordID: record.ID, ErrorKind: "record_failed"}
	}
	if !ok {
		// A concurrent retry recorded a transfer between our query and our
		// write: two transfers may exist for one record. Reconciliation
		// anomaly, not a crash.
		metrics.ObserveDuplicateTransferSuspected()
		p.logger.Warn("duplicate transfer suspected",
			"record_id", record.ID,
			"transfer_ref", transfer.TransferRef,
		)
	}

	metrics.ObserveTransfer(metrics.ResultSuccess, record.PayeePayout)
	p.logger.Info("payout transferred",
		"record_id", record.ID,
		"payee_id", account.PayeeID,
		"amount", record.PayeePayout,
		"transfer_ref", transfer.TransferRef,
	)
	return RecordOutcome{RecordID: record.ID, Success: true, TransferRef: transfer.TransferRef}
}
