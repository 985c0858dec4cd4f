package state

import (
	"fmt"
	"math/big"

	"github.com/Tabellio/cosmoswap/native/controller"
	"github.com/Tabellio/cosmoswap/native/swap"
)

// Stored record shapes mirror the engine types with RLP-encodable fields:
// signed ints travel as big.Int, enums as uint8.

type storedLeg struct {
	Kind      uint8
	Denom     string
	Amount    *big.Int
	Custodian string
}

func newStoredLeg(l swap.AssetLeg) storedLeg {
	amount := big.NewInt(0)
	if l.Amount != nil {
		amount = new(big.Int).Set(l.Amount)
	}
	return storedLeg{Kind: uint8(l.Kind), Denom: l.Denom, Amount: amount, Custodian: l.Custodian}
}

func (s storedLeg) toLeg() swap.AssetLeg {
	amount := big.NewInt(0)
	if s.Amount != nil {
		amount = new(big.Int).Set(s.Amount)
	}
	return swap.AssetLeg{Kind: swap.AssetKind(s.Kind), Denom: s.Denom, Amount: amount, Custodian: s.Custodian}
}

type storedTerms struct {
	User1     [20]byte
	User2     [20]byte
	Leg1      storedLeg
	Leg2      storedLeg
	ExpHeight uint64
	ExpTime   *big.Int
}

func newStoredTerms(t swap.SwapTerms) storedTerms {
	return storedTerms{
		User1:     t.User1,
		User2:     t.User2,
		Leg1:      newStoredLeg(t.Leg1),
		Leg2:      newStoredLeg(t.Leg2),
		ExpHeight: t.Expiration.Height,
		ExpTime:   big.NewInt(t.Expiration.Time),
	}
}

func (s storedTerms) toTerms() swap.SwapTerms {
	terms := swap.SwapTerms{
		User1:      s.User1,
		User2:      s.User2,
		Leg1:       s.Leg1.toLeg(),
		Leg2:       s.Leg2.toLeg(),
		Expiration: swap.Expiration{Height: s.ExpHeight},
	}
	if s.ExpTime != nil {
		terms.Expiration.Time = s.ExpTime.Int64()
	}
	return terms
}

type storedSwap struct {
	Address      [20]byte
	Admin        [20]byte
	Terms        storedTerms
	FeeBps       uint32
	FeeRecipient [20]byte
	Locked       bool
	CreatedAt    *big.Int
}

func swapRecordKey(addr [20]byte) []byte {
	return append(append([]byte{}, swapRecordPrefix...), addr[:]...)
}

// SwapPut persists a sanitized clone of the swap record.
func (m *Manager) SwapPut(s *swap.Swap) error {
	sanitized, err := swap.SanitizeSwap(s)
	if err != nil {
		return err
	}
	record := &storedSwap{
		Address:      sanitized.Address,
		Admin:        sanitized.Admin,
		Terms:        newStoredTerms(sanitized.Terms),
		FeeBps:       sanitized.Fee.Bps,
		FeeRecipient: sanitized.Fee.Recipient,
		Locked:       sanitized.Locked,
		CreatedAt:    big.NewInt(sanitized.CreatedAt),
	}
	return m.KVPut(swapRecordKey(sanitized.Address), record)
}

// SwapGet loads the swap instance stored at addr.
func (m *Manager) SwapGet(addr [20]byte) (*swap.Swap, bool) {
	record := new(storedSwap)
	ok, err := m.KVGet(swapRecordKey(addr), record)
	if err != nil || !ok {
		return nil, false
	}
	out := &swap.Swap{
		Address: record.Address,
		Admin:   record.Admin,
		Terms:   record.Terms.toTerms(),
		Fee:     swap.FeeConfig{Bps: record.FeeBps, Recipient: record.FeeRecipient},
		Locked:  record.Locked,
	}
	if record.CreatedAt != nil {
		out.CreatedAt = record.CreatedAt.Int64()
	}
	return out, true
}

// --- Controller records ---

type storedControllerConfig struct {
	Admin      [20]byte
	SwapCodeID uint64
}

// ControllerConfigPut persists the controller configuration.
func (m *Manager) ControllerConfigPut(cfg *controller.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil controller config")
	}
	return m.KVPut(controllerConfigKey, &storedControllerConfig{Admin: cfg.Admin, SwapCodeID: cfg.SwapCodeID})
}

// ControllerConfigGet loads the controller configuration.
func (m *Manager) ControllerConfigGet() (*controller.Config, bool) {
	record := new(storedControllerConfig)
	ok, err := m.KVGet(controllerConfigKey, record)
	if err != nil || !ok {
		return nil, false
	}
	return &controller.Config{Admin: record.Admin, SwapCodeID: record.SwapCodeID}, true
}

type storedFeeConfig struct {
	Bps       uint32
	Recipient [20]byte
}

// ControllerFeePut persists the global fee configuration.
func (m *Manager) ControllerFeePut(fee *swap.FeeConfig) error {
	if fee == nil {
		return fmt.Errorf("state: nil fee config")
	}
	if err := fee.Validate(); err != nil {
		return err
	}
	return m.KVPut(controllerFeeKey, &storedFeeConfig{Bps: fee.Bps, Recipient: fee.Recipient})
}

// ControllerFeeGet loads the global fee configuration.
func (m *Manager) ControllerFeeGet() (*swap.FeeConfig, bool) {
	record := new(storedFeeConfig)
	ok, err := m.KVGet(controllerFeeKey, record)
	if err != nil || !ok {
		return nil, false
	}
	return &swap.FeeConfig{Bps: record.Bps, Recipient: record.Recipient}, true
}

type storedPending struct {
	ID        uint64
	Address   [20]byte
	Token     string
	Sender    [20]byte
	Amount    *big.Int
	Terms     storedTerms
	FeeBps    uint32
	FeeRecip  [20]byte
	CreatedAt *big.Int
}

func pendingKey(id uint64) []byte {
	return append(append([]byte{}, controllerPendingPrefix...), uint64Key(id)...)
}

func uint64Key(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// PendingPut persists a pending two-phase creation under its correlation id.
func (m *Manager) PendingPut(p *controller.PendingCreation) error {
	sanitized, err := controller.SanitizePending(p)
	if err != nil {
		return err
	}
	record := &storedPending{
		ID:        sanitized.ID,
		Address:   sanitized.Address,
		Token:     sanitized.Token,
		Sender:    sanitized.Sender,
		Amount:    sanitized.Amount,
		Terms:     newStoredTerms(sanitized.Terms),
		FeeBps:    sanitized.Fee.Bps,
		FeeRecip:  sanitized.Fee.Recipient,
		CreatedAt: big.NewInt(sanitized.CreatedAt),
	}
	return m.KVPut(pendingKey(sanitized.ID), record)
}

// PendingGet loads a pending creation by correlation id.
func (m *Manager) PendingGet(id uint64) (*controller.PendingCreation, bool) {
	record := new(storedPending)
	ok, err := m.KVGet(pendingKey(id), record)
	if err != nil || !ok {
		return nil, false
	}
	amount := big.NewInt(0)
	if record.Amount != nil {
		amount = new(big.Int).Set(record.Amount)
	}
	out := &controller.PendingCreation{
		ID:      record.ID,
		Address: record.Address,
		Token:   record.Token,
		Sender:  record.Sender,
		Amount:  amount,
		Terms:   record.Terms.toTerms(),
		Fee:     swap.FeeConfig{Bps: record.FeeBps, Recipient: record.FeeRecip},
	}
	if record.CreatedAt != nil {
		out.CreatedAt = record.CreatedAt.Int64()
	}
	return out, true
}

// PendingDelete removes the pending creation record, making the completion
// single-shot.
func (m *Manager) PendingDelete(id uint64) error {
	return m.KVDelete(pendingKey(id))
}

// NextSwapSequence increments and returns the controller's creation sequence.
// The returned value doubles as the correlation id for two-phase creations,
// so it is never reused.
func (m *Manager) NextSwapSequence() (uint64, error) {
	var current uint64
	if _, err := m.KVGet(controllerSeqKey, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := m.KVPut(controllerSeqKey, next); err != nil {
		return 0, err
	}
	return next, nil
}
