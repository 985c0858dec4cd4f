package swap

import "errors"

// Error taxonomy shared by the swap engine and the controller. Each value maps
// to one user-visible failure class; callers match with errors.Is.
var (
	// ErrUnauthorized rejects a caller that is not permitted to run the
	// operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSwapLocked rejects Accept/Cancel on an instance that already
	// settled, or Accept on one whose deadline passed.
	ErrSwapLocked = errors.New("swap is not active")
	// ErrSwapNotFound reports a missing instance record.
	ErrSwapNotFound = errors.New("swap not found")
	// ErrSameDenoms rejects terms whose legs share a denom.
	ErrSameDenoms = errors.New("denoms cannot be the same")
	// ErrSameUsers rejects terms naming the same identity on both sides.
	ErrSameUsers = errors.New("users cannot be the same")
	// ErrInvalidExpiration rejects a deadline already in the past at
	// creation time.
	ErrInvalidExpiration = errors.New("invalid expiration")
	// ErrInvalidCustodianRef reports a missing or mismatched custodian
	// reference on an external leg.
	ErrInvalidCustodianRef = errors.New("custodian address is not valid")
	// ErrFundsNotFound reports an attached payment that is absent or not a
	// single coin.
	ErrFundsNotFound = errors.New("funds are not found")
	// ErrInvalidAmount reports an attached payment amount mismatch.
	ErrInvalidAmount = errors.New("amount is not the same")
	// ErrInvalidDenom reports an attached payment or reported symbol denom
	// mismatch.
	ErrInvalidDenom = errors.New("denom is not the same")
	// ErrInvalidFunds reports an externally notified deposit that does not
	// match the expected leg.
	ErrInvalidFunds = errors.New("invalid funds")
	// ErrArithmetic guards the fee split against a fee exceeding the
	// amount.
	ErrArithmetic = errors.New("fee arithmetic overflow")
	// ErrSwapInstantiate reports a failed second phase of the two-phase
	// creation protocol.
	ErrSwapInstantiate = errors.New("swap instantiation failed")
)
