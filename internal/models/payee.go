package models

// EligibilityFlags are the payee's processor-account capabilities as last
// observed. Both must be true for the payee to receive a payout transfer.
type EligibilityFlags struct {
	CanReceiveCharges bool
	CanReceivePayouts bool
}

// Eligible reports whether the payee can currently be paid out.
func (f EligibilityFlags) Eligible() bool {
	return f.CanReceiveCharges && f.CanReceivePayouts
}

// PayeeAccount holds a payee's connected processor account reference and
// the last-known eligibility flags. Owned by the onboarding subsystem; the
// engine reads it and refreshes the flags.
type PayeeAccount struct {
	// PayeeID is the marketplace user ID of the payee.
	PayeeID string

	// AccountRef is the external connected-account reference at the
	// processor. Empty means the payee has not completed onboarding.
	AccountRef string

	// Flags are the last-observed eligibility flags.
	Flags EligibilityFlags

	// UpdatedAt is the Unix timestamp when the flags were last refreshed.
	UpdatedAt int64
}

// Onboarded reports whether the payee has a connected account at all.
func (p *PayeeAccount) Onboarded() bool {
	return p.AccountRef != ""
}
