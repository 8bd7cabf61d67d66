// Package fees computes the platform-fee split for a charge amount.
package fees

import (
	"errors"
	"fmt"
)

// ErrInvalidAmount is returned when the charge amount is not positive.
var ErrInvalidAmount = errors.New("amount must be a positive number of minor units")

// DefaultRateBasisPoints is the platform's standard cut (15%).
const DefaultRateBasisPoints = 1500

// Split divides amount (minor units) into a platform fee and a payee payout.
// The fee is rounded half-up; the payout is derived by subtraction so the
// two always sum exactly to amount. Rounding each half independently is the
// classic source of off-by-one-cent splits and is deliberately avoided.
func Split(amount, rateBasisPoints int64) (platformFee, payeePayout int64, err error) {
	if amount <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if rateBasisPoints < 0 || rateBasisPoints > 10000 {
		return 0, 0, fmt.Errorf("fee rate out of range: %d basis points", rateBasisPoints)
	}

	platformFee = (amount*rateBasisPoints + 5000) / 10000
	payeePayout = amount - platformFee
	return platformFee, payeePayout, nil
}
