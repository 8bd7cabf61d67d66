// Package processor wraps the external payment processor behind a small
// capability interface: open a destination charge, execute a payout
// transfer, read account capability flags, verify an inbound event.
package processor

import (
	"context"
	"errors"

	"github.com/tutorhive/payments/internal/models"
)

var (
	// ErrInvalidSignature is returned when an inbound event fails
	// authenticity verification. Nothing may be read or written after it.
	ErrInvalidSignature = errors.New("event signature verification failed")

	// ErrMalformedEvent is returned when a verified event cannot be parsed.
	ErrMalformedEvent = errors.New("malformed event payload")
)

// NotificationKind classifies inbound processor events.
type NotificationKind string

const (
	ChargeSucceeded NotificationKind = "charge_succeeded"
	ChargeFailed    NotificationKind = "charge_failed"
	ChargeCanceled  NotificationKind = "charge_canceled"
	AccountUpdated  NotificationKind = "account_updated"

	// KindIgnored covers event types the engine does not react to. The
	// notification endpoint still acknowledges them.
	KindIgnored NotificationKind = "ignored"
)

// Notification is a verified, parsed processor event.
type Notification struct {
	// EventID is the processor's event identifier, for log correlation.
	EventID string

	Kind NotificationKind

	// ChargeRef is set for charge-lifecycle kinds.
	ChargeRef string

	// AccountRef is set for AccountUpdated.
	AccountRef string
}

// ChargeParams describes a destination charge: the processor routes the
// payee's share to their connected account and retains the platform fee.
type ChargeParams struct {
	Amount             int64
	PlatformFee        int64
	Currency           string
	DestinationAccount string
	EngagementID       string
}

// ChargeAuthorization is the result of opening a charge.
type ChargeAuthorization struct {
	// ChargeRef is the processor-side reference persisted on the record.
	ChargeRef string

	// ClientHandle is handed to the paying client to confirm the charge.
	ClientHandle string
}

// TransferParams describes a payout transfer for one settlement record.
type TransferParams struct {
	Amount             int64
	Currency           string
	DestinationAccount string

	// RecordID doubles as the processor-side idempotency key, so a
	// resubmitted transfer for the same record collapses into one.
	RecordID string
}

// TransferResult is the outcome of an executed transfer.
type TransferResult struct {
	TransferRef string
}

// Gateway is the processor capability used by the settlement engine.
// Implementations must bound every call with a timeout; an ambiguous
// outcome (timeout) surfaces as an error and is resolved by the next
// reconciliation pass, never guessed at.
type Gateway interface {
	CreateDestinationCharge(ctx context.Context, params ChargeParams) (*ChargeAuthorization, error)
	CreateTransfer(ctx context.Context, params TransferParams) (*TransferResult, error)
	GetAccountFlags(ctx context.Context, accountRef string) (models.EligibilityFlags, error)

	// VerifyNotification checks the event signature over the raw payload
	// bytes and parses the event. Returns ErrInvalidSignature or
	// ErrMalformedEvent without touching any state.
	VerifyNotification(payload []byte, sigHeader string) (*Notification, error)
}
