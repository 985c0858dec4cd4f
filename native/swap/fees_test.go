package swap

import (
	"errors"
	"math/big"
	"testing"
)

func TestSplitFee(t *testing.T) {
	cases := []struct {
		name          string
		amount        int64
		bps           uint32
		wantFee       int64
		wantRemainder int64
	}{
		{"five percent", 1000, 500, 50, 950},
		{"floors toward zero", 999, 500, 49, 950},
		{"small amount floors to zero", 3, 100, 0, 3},
		{"zero bps", 1000, 0, 0, 1000},
		{"full fee", 1000, 10_000, 1000, 0},
		{"zero amount", 0, 500, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, remainder, err := SplitFee(big.NewInt(tc.amount), tc.bps)
			if err != nil {
				t.Fatalf("split fee: %v", err)
			}
			if fee.Cmp(big.NewInt(tc.wantFee)) != 0 {
				t.Fatalf("fee: got %s want %d", fee, tc.wantFee)
			}
			if remainder.Cmp(big.NewInt(tc.wantRemainder)) != 0 {
				t.Fatalf("remainder: got %s want %d", remainder, tc.wantRemainder)
			}
			if new(big.Int).Add(fee, remainder).Cmp(big.NewInt(tc.amount)) != 0 {
				t.Fatalf("fee %s + remainder %s != amount %d", fee, remainder, tc.amount)
			}
		})
	}
}

func TestSplitFeeLargeAmounts(t *testing.T) {
	amount, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	if !ok {
		t.Fatalf("parse amount")
	}
	fee, remainder, err := SplitFee(amount, 250)
	if err != nil {
		t.Fatalf("split fee: %v", err)
	}
	if new(big.Int).Add(fee, remainder).Cmp(amount) != 0 {
		t.Fatalf("split does not sum back to amount")
	}
	if fee.Sign() <= 0 || fee.Cmp(amount) >= 0 {
		t.Fatalf("fee out of range: %s", fee)
	}
}

func TestSplitFeeRejectsBadInputs(t *testing.T) {
	if _, _, err := SplitFee(nil, 100); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := SplitFee(big.NewInt(-1), 100); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := SplitFee(big.NewInt(100), 10_001); !errors.Is(err, ErrArithmetic) {
		t.Fatalf("bps over range: expected ErrArithmetic, got %v", err)
	}
}
