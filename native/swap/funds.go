package swap

import "math/big"

// CheckSingleCoin validates that the attached payment is exactly one coin
// matching the expected leg: same amount, same denom. Order of checks matches
// the error taxonomy: presence, then amount, then denom.
func CheckSingleCoin(funds []Coin, expected AssetLeg) error {
	if len(funds) != 1 {
		return ErrFundsNotFound
	}
	got := funds[0]
	if got.Amount == nil || expected.Amount == nil || got.Amount.Cmp(expected.Amount) != 0 {
		return ErrInvalidAmount
	}
	if got.Denom != expected.Denom {
		return ErrInvalidDenom
	}
	return nil
}

// CheckExternalDeposit validates a custodian-delivered deposit notification
// against the expected external leg: the notifying custodian must be the
// leg's custodian and the notified amount must match exactly. The token
// symbol itself is validated by whoever originated the notification.
func CheckExternalDeposit(token string, amount *big.Int, expected AssetLeg) error {
	if !expected.Kind.Valid() || expected.Kind == AssetNative {
		return ErrInvalidFunds
	}
	if expected.Custodian == "" || token != expected.Custodian {
		return ErrInvalidCustodianRef
	}
	if amount == nil || expected.Amount == nil || amount.Cmp(expected.Amount) != 0 {
		return ErrInvalidFunds
	}
	return nil
}
