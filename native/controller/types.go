package controller

import (
	"fmt"
	"math/big"

	"github.com/Tabellio/cosmoswap/core/types"
	"github.com/Tabellio/cosmoswap/native/swap"
)

// Config holds the controller's administrative state: who may reconfigure it
// and which code template new instances are created from.
type Config struct {
	Admin      [20]byte
	SwapCodeID uint64
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// PendingCreation is the saga record for a two-phase creation: it is
// persisted under its correlation id before the instantiate request is
// issued, and looked up exactly once by the completion handler. The fee is
// snapshotted here so a later UpdateFeeConfig cannot leak into an in-flight
// creation.
type PendingCreation struct {
	ID        uint64
	Address   [20]byte
	Token     string
	Sender    [20]byte
	Amount    *big.Int
	Terms     swap.SwapTerms
	Fee       swap.FeeConfig
	CreatedAt int64
}

// Clone returns a deep copy of the pending record.
func (p *PendingCreation) Clone() *PendingCreation {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	clone.Terms = p.Terms.Clone()
	return &clone
}

// SanitizePending validates a pending-creation record read back from storage.
func SanitizePending(p *PendingCreation) (*PendingCreation, error) {
	if p == nil {
		return nil, fmt.Errorf("controller: nil pending creation")
	}
	clone := p.Clone()
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("controller: pending amount must be positive")
	}
	if err := clone.Terms.Validate(); err != nil {
		return nil, err
	}
	if err := clone.Fee.Validate(); err != nil {
		return nil, err
	}
	return clone, nil
}

// InstantiateResult carries the outcome of one instantiate request back into
// the completion handler: the error, if any, and the events the instantiation
// emitted. The new instance address travels in the event attributes.
type InstantiateResult struct {
	Err    error
	Events []*types.Event
}

// Instantiator executes an instantiate request on behalf of the controller.
// The host implements it by running the swap engine inside the same atomic
// unit as the controller call.
type Instantiator interface {
	InstantiateSwap(addr [20]byte, terms swap.SwapTerms, fee swap.FeeConfig, admin [20]byte, funds []swap.Coin) InstantiateResult
}
