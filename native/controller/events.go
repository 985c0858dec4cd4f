package controller

import (
	"encoding/hex"
	"strconv"

	"github.com/Tabellio/cosmoswap/core/types"
)

const (
	EventTypeSwapCreated      = "controller.swap_created"
	EventTypeConfigUpdated    = "controller.config_updated"
	EventTypeFeeConfigUpdated = "controller.fee_config_updated"
)

// NewSwapCreatedEvent returns the canonical payload emitted once a new
// instance exists and holds its first-leg deposit.
func NewSwapCreatedEvent(addr, creator [20]byte, correlationID uint64) *types.Event {
	attrs := map[string]string{
		"addr":    hex.EncodeToString(addr[:]),
		"creator": hex.EncodeToString(creator[:]),
	}
	if correlationID > 0 {
		attrs["correlationId"] = strconv.FormatUint(correlationID, 10)
	}
	return &types.Event{Type: EventTypeSwapCreated, Attributes: attrs}
}

// NewConfigUpdatedEvent returns the payload emitted after UpdateConfig.
func NewConfigUpdatedEvent(cfg *Config) *types.Event {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["admin"] = hex.EncodeToString(cfg.Admin[:])
		attrs["swapCodeId"] = strconv.FormatUint(cfg.SwapCodeID, 10)
	}
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: attrs}
}

// NewFeeConfigUpdatedEvent returns the payload emitted after UpdateFeeConfig.
func NewFeeConfigUpdatedEvent(bps uint32, recipient [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeFeeConfigUpdated,
		Attributes: map[string]string{
			"feeBps":       strconv.FormatUint(uint64(bps), 10),
			"feeRecipient": hex.EncodeToString(recipient[:]),
		},
	}
}
