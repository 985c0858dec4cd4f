package swap

import (
	"fmt"
	"math/big"
	"strings"
)

// AssetKind discriminates how one side of a swap settles.
type AssetKind uint8

const (
	// AssetNative settles through the host ledger's built-in transfer.
	AssetNative AssetKind = iota
	// AssetExternal settles through a separate token custodian that accepts
	// explicit transfer commands and delivers deposit notifications.
	AssetExternal
)

// Valid reports whether the kind value is within the supported range.
func (k AssetKind) Valid() bool {
	return k == AssetNative || k == AssetExternal
}

// Coin is a single attached payment of a natively settled denom.
type Coin struct {
	Denom  string
	Amount *big.Int
}

// Clone returns a deep copy of the coin.
func (c Coin) Clone() Coin {
	out := Coin{Denom: c.Denom, Amount: big.NewInt(0)}
	if c.Amount != nil {
		out.Amount = new(big.Int).Set(c.Amount)
	}
	return out
}

// AssetLeg describes one side of a swap: the denom and amount plus, for
// externally custodied assets, the custodian contract reference.
type AssetLeg struct {
	Kind      AssetKind
	Denom     string
	Amount    *big.Int
	Custodian string
}

// IsNative reports whether the leg settles through the host ledger.
func (l AssetLeg) IsNative() bool { return l.Kind == AssetNative }

// Clone returns a deep copy of the leg.
func (l AssetLeg) Clone() AssetLeg {
	out := l
	if l.Amount != nil {
		out.Amount = new(big.Int).Set(l.Amount)
	} else {
		out.Amount = big.NewInt(0)
	}
	return out
}

// Validate checks the structural leg invariants: a positive amount, a denom,
// and a custodian reference present exactly when the leg is external.
func (l AssetLeg) Validate() error {
	if !l.Kind.Valid() {
		return fmt.Errorf("swap: invalid asset kind %d", l.Kind)
	}
	if strings.TrimSpace(l.Denom) == "" {
		return fmt.Errorf("swap: leg denom must not be empty")
	}
	if l.Amount == nil || l.Amount.Sign() <= 0 {
		return fmt.Errorf("swap: leg amount must be positive")
	}
	if l.Kind == AssetExternal {
		if strings.TrimSpace(l.Custodian) == "" {
			return ErrInvalidCustodianRef
		}
	} else if l.Custodian != "" {
		return fmt.Errorf("swap: native leg must not carry a custodian reference")
	}
	return nil
}

// settler is the transfer surface a leg settles through. Native legs use the
// host ledger transfer, external legs issue a command to their custodian.
type settler interface {
	Transfer(from, to [20]byte, denom string, amount *big.Int) error
	TokenTransfer(token string, from, to [20]byte, amount *big.Int) error
}

// settle moves amount of the leg's asset between the two parties using the
// transfer primitive matching the leg kind.
func (l AssetLeg) settle(s settler, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if l.Kind == AssetNative {
		return s.Transfer(from, to, l.Denom, amount)
	}
	return s.TokenTransfer(l.Custodian, from, to, amount)
}

// Expiration is the deadline after which Accept is no longer permitted. The
// zero value never expires. Height and Time may be combined; whichever is
// reached first expires the swap.
type Expiration struct {
	Height uint64
	Time   int64
}

// IsZero reports whether no deadline is configured.
func (e Expiration) IsZero() bool { return e.Height == 0 && e.Time == 0 }

// Validate rejects a negative timestamp deadline. Expired never fires for a
// time before the epoch, so accepting one would silently create a swap that
// never expires.
func (e Expiration) Validate() error {
	if e.Time < 0 {
		return ErrInvalidExpiration
	}
	return nil
}

// Expired reports whether the deadline has been reached at the supplied host
// height and timestamp.
func (e Expiration) Expired(height uint64, now int64) bool {
	if e.Height > 0 && height >= e.Height {
		return true
	}
	if e.Time > 0 && now >= e.Time {
		return true
	}
	return false
}

// SwapTerms fixes the counterparties, assets and deadline of one swap at
// creation time.
type SwapTerms struct {
	User1      [20]byte
	User2      [20]byte
	Leg1       AssetLeg
	Leg2       AssetLeg
	Expiration Expiration
}

// Clone returns a deep copy of the terms.
func (t SwapTerms) Clone() SwapTerms {
	out := t
	out.Leg1 = t.Leg1.Clone()
	out.Leg2 = t.Leg2.Clone()
	return out
}

// Validate checks the per-leg invariants. Cross-leg rules (distinct denoms,
// distinct users) belong to the controller which is the only creation path.
func (t SwapTerms) Validate() error {
	if t.User1 == ([20]byte{}) || t.User2 == ([20]byte{}) {
		return fmt.Errorf("swap: terms users must be set")
	}
	if err := t.Leg1.Validate(); err != nil {
		return err
	}
	if err := t.Leg2.Validate(); err != nil {
		return err
	}
	return t.Expiration.Validate()
}

// FeeConfig is the protocol fee captured into each swap at creation. The
// percentage is expressed in basis points so the split stays exact integer
// arithmetic.
type FeeConfig struct {
	Bps       uint32
	Recipient [20]byte
}

// Validate checks the fee stays within [0, 100%].
func (f FeeConfig) Validate() error {
	if f.Bps > BpsDenominator {
		return fmt.Errorf("swap: fee bps out of range: %d", f.Bps)
	}
	return nil
}

// Swap is the full state of one escrow instance: the immutable terms and fee
// snapshot plus the single-write lock flag.
type Swap struct {
	Address   [20]byte
	Admin     [20]byte
	Terms     SwapTerms
	Fee       FeeConfig
	Locked    bool
	CreatedAt int64
}

// Clone returns a deep copy of the swap so callers can safely mutate the copy
// without affecting the stored instance.
func (s *Swap) Clone() *Swap {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Terms = s.Terms.Clone()
	return &clone
}

// SanitizeSwap validates the supplied swap record and returns a cloned
// instance with non-nil amount fields. The original value is not mutated.
func SanitizeSwap(s *Swap) (*Swap, error) {
	if s == nil {
		return nil, fmt.Errorf("swap: nil swap")
	}
	clone := s.Clone()
	if err := clone.Terms.Validate(); err != nil {
		return nil, err
	}
	if err := clone.Fee.Validate(); err != nil {
		return nil, err
	}
	return clone, nil
}

// DepositPayload selects the action an externally custodied deposit intends.
type DepositPayload uint8

const (
	DepositAccept DepositPayload = iota
	DepositCancel
)

// Valid reports whether the payload value is within the supported range.
func (p DepositPayload) Valid() bool {
	return p == DepositAccept || p == DepositCancel
}
