package swap

import "math/big"

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10_000

var bpsDivisor = big.NewInt(BpsDenominator)

// SplitFee computes the protocol fee and the remainder for one leg amount:
// fee = floor(amount * bps / 10000), remainder = amount - fee. The fee can
// never exceed the amount for bps within range, but the invariant is still
// checked and surfaces as ErrArithmetic.
func SplitFee(amount *big.Int, bps uint32) (*big.Int, *big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}
	if bps > BpsDenominator {
		return nil, nil, ErrArithmetic
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	fee.Div(fee, bpsDivisor)
	if fee.Cmp(amount) > 0 {
		return nil, nil, ErrArithmetic
	}
	remainder := new(big.Int).Sub(amount, fee)
	return fee, remainder, nil
}
