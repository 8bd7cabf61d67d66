package fees

import (
	"errors"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		rateBps    int64
		wantFee    int64
		wantPayout int64
		wantErr    bool
	}{
		{
			name:       "hundred dollars at 15 percent",
			amount:     10000,
			rateBps:    1500,
			wantFee:    1500,
			wantPayout: 8500,
		},
		{
			name:       "rounds half up",
			amount:     3,     // 3 * 1500 / 10000 = 0.45 -> 0
			rateBps:    1500,
			wantFee:    0,
			wantPayout: 3,
		},
		{
			name:       "exact half rounds up",
			amount:     10,    // 10 * 500 / 10000 = 0.5 -> 1
			rateBps:    500,
			wantFee:    1,
			wantPayout: 9,
		},
		{
			name:       "one cent",
			amount:     1,
			rateBps:    1500,
			wantFee:    0,
			wantPayout: 1,
		},
		{
			name:    "zero amount rejected",
			amount:  0,
			rateBps: 1500,
			wantErr: true,
		},
		{
			name:    "negative amount rejected",
			amount:  -500,
			rateBps: 1500,
			wantErr: true,
		},
		{
			name:    "rate above 100 percent rejected",
			amount:  10000,
			rateBps: 10001,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, payout, err := Split(tt.amount, tt.rateBps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Split() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if fee != tt.wantFee {
				t.Errorf("fee = %d, want %d", fee, tt.wantFee)
			}
			if payout != tt.wantPayout {
				t.Errorf("payout = %d, want %d", payout, tt.wantPayout)
			}
		})
	}
}

func TestSplit_InvalidAmountSentinel(t *testing.T) {
	_, _, err := Split(-1, DefaultRateBasisPoints)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

// The invariant that matters: fee + payout == amount, for every amount and
// rate, regardless of rounding.
func TestSplit_SumInvariant(t *testing.T) {
	rates := []int64{0, 1, 500, 1500, 3333, 9999, 10000}
	for _, rate := range rates {
		for amount := int64(1); amount <= 2000; amount++ {
			fee, payout, err := Split(amount, rate)
			if err != nil {
				t.Fatalf("Split(%d, %d) unexpected error: %v", amount, rate, err)
			}
			if fee+payout != amount {
				t.Fatalf("Split(%d, %d): fee %d + payout %d != amount", amount, rate, fee, payout)
			}
			if fee < 0 || payout < 0 {
				t.Fatalf("Split(%d, %d): negative half (fee=%d payout=%d)", amount, rate, fee, payout)
			}
		}
	}
}
