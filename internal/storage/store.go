// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"iter"

	"github.com/tutorhive/payments/internal/models"
)

var (
	// ErrRecordNotFound is returned when a lookup matches nothing.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateActiveRecord is returned when a settlement is created for
	// an engagement that already has a non-failed record.
	ErrDuplicateActiveRecord = errors.New("engagement already has an active settlement record")
)

// SettlementStore is the authoritative store of settlement records.
//
// The two conditional writes, TransitionStatus and SetTransferRef, are the
// engine's only concurrency primitives: they must be implemented as single
// compare-and-swap statements at the database, never as read-then-write,
// because multiple process instances may run them concurrently.
type SettlementStore interface {
	// CreateSettlement persists a new record and populates its ID and
	// CreatedAt if unset. Returns ErrDuplicateActiveRecord when the
	// engagement already has an active (non-failed) record.
	CreateSettlement(ctx context.Context, rec *models.SettlementRecord) error

	// GetSettlement retrieves a record by ID.
	GetSettlement(ctx context.Context, id string) (*models.SettlementRecord, error)

	// GetSettlementByChargeRef retrieves a record by its processor charge
	// reference. Returns ErrRecordNotFound when no record matches.
	GetSettlementByChargeRef(ctx context.Context, chargeRef string) (*models.SettlementRecord, error)

	// UnsettledPayouts yields completed records with no transfer reference
	// for the given payee, lazily. Ranging over the sequence again re-runs
	// the query, so records settled in between are no longer yielded.
	// The sequence holds a read cursor open while being ranged; callers
	// must finish ranging before writing back to the settlement table.
	UnsettledPayouts(ctx context.Context, payeeID string) iter.Seq2[*models.SettlementRecord, error]

	// TransitionStatus conditionally moves a record from one status to
	// another. Returns false (not an error) when the record's current
	// status does not equal from; LastTransitionAt changes only on success.
	TransitionStatus(ctx context.Context, id string, from, to models.SettlementStatus) (bool, error)

	// SetTransferRef records the payout transfer reference, but only if no
	// reference is set yet. Returns false when one already is. This is the
	// sole guard against paying a record out twice.
	SetTransferRef(ctx context.Context, id, transferRef string) (bool, error)

	// ListSettlementsByPayee returns the payee's settlement history,
	// newest first.
	ListSettlementsByPayee(ctx context.Context, payeeID string) ([]*models.SettlementRecord, error)

	// PayeesWithUnsettledPayouts returns the distinct payees that have at
	// least one completed record awaiting transfer. Feeds the sweep.
	PayeesWithUnsettledPayouts(ctx context.Context) ([]string, error)
}

// EngagementStore is the collaborator boundary into the lesson subsystem.
// The engine only ever writes the payment-status projection.
type EngagementStore interface {
	GetEngagement(ctx context.Context, id string) (*models.Engagement, error)
	MarkPaid(ctx context.Context, id string) error
	MarkPaymentFailed(ctx context.Context, id string) error
}

// PayeeAccountStore is the collaborator boundary into the onboarding
// subsystem.
type PayeeAccountStore interface {
	GetPayeeAccount(ctx context.Context, payeeID string) (*models.PayeeAccount, error)

	// GetPayeeAccountByAccountRef resolves a processor account reference
	// back to the payee, for routing account.updated notifications.
	GetPayeeAccountByAccountRef(ctx context.Context, accountRef string) (*models.PayeeAccount, error)

	UpdateEligibilityFlags(ctx context.Context, payeeID string, flags models.EligibilityFlags) error
}

// Store aggregates the three stores; the SQLite implementation backs all of
// them with one database.
type Store interface {
	SettlementStore
	EngagementStore
	PayeeAccountStore

	// Close releases any resources held by the store.
	Close() error
}
