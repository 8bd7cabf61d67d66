package models

// SettlementStatus is the lifecycle state of a settlement record.
type SettlementStatus string

const (
	// SettlementPending means the charge authorization exists but the
	// processor has not yet confirmed the outcome.
	SettlementPending SettlementStatus = "pending"

	// SettlementCompleted means the processor confirmed the charge succeeded.
	// Terminal for status, though the payout transfer may still be owed.
	SettlementCompleted SettlementStatus = "completed"

	// SettlementFailed means the charge failed or was canceled. Terminal.
	SettlementFailed SettlementStatus = "failed"
)

// SettlementRecord is the local record of one charge-and-split attempt.
// It is created in pending by the settlement service, moved to a terminal
// status only by the event reconciler, and has its TransferRef set at most
// once by the payout service.
type SettlementRecord struct {
	// ID is the unique identifier for the record (UUID format).
	ID string

	// EngagementID references the engagement being settled. At most one
	// active (non-failed) record may exist per engagement.
	EngagementID string

	// Amount is the face amount charged to the payer, in minor units.
	Amount int64

	// PlatformFee is the platform's cut in minor units.
	// Invariant: PlatformFee + PayeePayout == Amount, in every state.
	PlatformFee int64

	// PayeePayout is the payee's share in minor units.
	PayeePayout int64

	// Status is the charge lifecycle state.
	Status SettlementStatus

	// ChargeRef is the processor-side charge authorization reference.
	// Set at creation, immutable thereafter.
	ChargeRef string

	// TransferRef is the processor-side payout transfer reference. Empty
	// until a transfer is actually executed; once set, never overwritten.
	// This field is the sole idempotency guard against double payout.
	TransferRef string

	// CreatedAt is the Unix timestamp when the record was created.
	CreatedAt int64

	// LastTransitionAt is the Unix timestamp of the last status change.
	LastTransitionAt int64
}

// Transferred reports whether a payout transfer has been recorded.
func (r *SettlementRecord) Transferred() bool {
	return r.TransferRef != ""
}

// Terminal reports whether the record's status admits no further transitions.
func (r *SettlementRecord) Terminal() bool {
	return r.Status == SettlementCompleted || r.Status == SettlementFailed
}
