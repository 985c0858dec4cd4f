package swap

import (
	"encoding/hex"
	"strconv"

	"github.com/Tabellio/cosmoswap/core/types"
)

const (
	EventTypeSwapInstantiated = "swap.instantiated"
	EventTypeSwapAccepted     = "swap.accepted"
	EventTypeSwapCancelled    = "swap.cancelled"
)

// Attribute keys shared with the controller, which reads the instantiation
// event to learn the new instance address and the external first-leg deposit.
const (
	AttrAddress       = "addr"
	AttrUser1         = "user1"
	AttrUser2         = "user2"
	AttrLeg1Denom     = "leg1Denom"
	AttrLeg1Amount    = "leg1Amount"
	AttrLeg1Custodian = "leg1Custodian"
	AttrLeg2Denom     = "leg2Denom"
	AttrLeg2Amount    = "leg2Amount"
	AttrLeg2Custodian = "leg2Custodian"
	AttrFeeBps        = "feeBps"
	AttrCreatedAt     = "createdAt"
)

// NewInstantiatedEvent returns the canonical event payload for a newly stored
// swap instance.
func NewInstantiatedEvent(s *Swap) *types.Event {
	return newSwapEvent(EventTypeSwapInstantiated, s)
}

// NewAcceptedEvent returns the canonical event payload emitted when the swap
// settles in favour of both parties.
func NewAcceptedEvent(s *Swap) *types.Event {
	return newSwapEvent(EventTypeSwapAccepted, s)
}

// NewCancelledEvent returns the canonical event payload emitted when user1
// reclaims the first-leg deposit.
func NewCancelledEvent(s *Swap) *types.Event {
	return newSwapEvent(EventTypeSwapCancelled, s)
}

func newSwapEvent(eventType string, s *Swap) *types.Event {
	attrs := make(map[string]string)
	if s == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeSwap(s)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs[AttrAddress] = hex.EncodeToString(sanitized.Address[:])
	attrs[AttrUser1] = hex.EncodeToString(sanitized.Terms.User1[:])
	attrs[AttrUser2] = hex.EncodeToString(sanitized.Terms.User2[:])
	attrs[AttrLeg1Denom] = sanitized.Terms.Leg1.Denom
	attrs[AttrLeg1Amount] = sanitized.Terms.Leg1.Amount.String()
	attrs[AttrLeg2Denom] = sanitized.Terms.Leg2.Denom
	attrs[AttrLeg2Amount] = sanitized.Terms.Leg2.Amount.String()
	attrs[AttrFeeBps] = strconv.FormatUint(uint64(sanitized.Fee.Bps), 10)
	attrs[AttrCreatedAt] = strconv.FormatInt(sanitized.CreatedAt, 10)
	if sanitized.Terms.Leg1.Custodian != "" {
		attrs[AttrLeg1Custodian] = sanitized.Terms.Leg1.Custodian
	}
	if sanitized.Terms.Leg2.Custodian != "" {
		attrs[AttrLeg2Custodian] = sanitized.Terms.Leg2.Custodian
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
