package service

import "errors"

var (
	// ErrEngagementNotFound is returned when the engagement being settled
	// does not exist.
	ErrEngagementNotFound = errors.New("engagement not found")

	// ErrUnauthorized is returned when the caller is not the engagement's
	// payer.
	ErrUnauthorized = errors.New("caller is not the engagement payer")

	// ErrPayeeMismatch is returned when the requested payee is not the
	// engagement's payee.
	ErrPayeeMismatch = errors.New("payee does not belong to the engagement")

	// ErrPayeeNotOnboarded is returned when the payee has no connected
	// processor account.
	ErrPayeeNotOnboarded = errors.New("payee has no connected account")

	// ErrPayeeNotEligible is returned when the payee's connected account is
	// not enabled for both charges and payouts.
	ErrPayeeNotEligible = errors.New("payee account is not eligible for payouts")

	// ErrPartialFailure is returned when an external charge authorization
	// was created but the local record could not be. The orphaned
	// authorization needs manual reconciliation.
	ErrPartialFailure = errors.New("charge authorized externally but local record creation failed")

	// ErrAlreadyTransferred is returned by single-record retry when the
	// record already carries a transfer reference.
	ErrAlreadyTransferred = errors.New("settlement already has a payout transfer")

	// ErrNotYetCompleted is returned by single-record retry when the charge
	// has not reached completed status.
	ErrNotYetCompleted = errors.New("settlement charge is not completed")
)
