package models

// PaymentStatus is the engagement's payment-status projection, the only
// part of an engagement this engine is allowed to write.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "payment_failed"
)

// Engagement identifies the transaction context being settled: who pays
// whom, for how much. Owned by the marketplace's lesson subsystem; the
// engine only reads it and projects payment status onto it.
type Engagement struct {
	// ID is the unique identifier for the engagement (UUID format).
	ID string

	// PayerID is the student being charged.
	PayerID string

	// PayeeID is the tutor receiving the payout.
	PayeeID string

	// Amount is the agreed lesson price in minor units.
	Amount int64

	// PaymentStatus is the engine-maintained projection.
	PaymentStatus PaymentStatus

	// CreatedAt is the Unix timestamp when the engagement was created.
	CreatedAt int64
}
