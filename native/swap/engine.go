package swap

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Tabellio/cosmoswap/core/events"
	"github.com/Tabellio/cosmoswap/core/types"
)

var errNilState = errors.New("swap engine: state not configured")

type engineState interface {
	SwapPut(*Swap) error
	SwapGet(addr [20]byte) (*Swap, bool)
	Transfer(from, to [20]byte, denom string, amount *big.Int) error
	TokenTransfer(token string, from, to [20]byte, amount *big.Int) error
}

type swapEvent struct {
	evt *types.Event
}

func (e swapEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e swapEvent) Event() *types.Event { return e.evt }

// Engine owns the lifecycle of escrow swap instances. Each instance is keyed
// by its address and moves Open -> Accepted | Cancelled exactly once; the
// Locked flag records that a terminal transition ran. Deposits held by an
// instance live on the instance address in the host ledgers, so every
// settlement is a transfer out of that address.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	nowFn    func() int64
	heightFn func() uint64
}

// NewEngine creates a swap engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetHeightFunc overrides the host height source used for height-based
// expirations.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(swapEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) loadSwap(addr [20]byte) (*Swap, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, ok := e.state.SwapGet(addr)
	if !ok {
		return nil, ErrSwapNotFound
	}
	return s, nil
}

// Instantiate stores a new swap instance with the lock cleared. When the
// first leg is native the call must carry exactly one attached coin equal to
// that leg; an external first leg was already validated and escrowed by the
// controller, so no payment check runs here.
func (e *Engine) Instantiate(addr [20]byte, terms SwapTerms, fee FeeConfig, admin [20]byte, funds []Coin) (*Swap, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if _, ok := e.state.SwapGet(addr); ok {
		return nil, fmt.Errorf("swap: instance already exists at %x", addr)
	}
	if terms.Leg1.IsNative() {
		if err := CheckSingleCoin(funds, terms.Leg1); err != nil {
			return nil, err
		}
	}
	s := &Swap{
		Address:   addr,
		Admin:     admin,
		Terms:     terms.Clone(),
		Fee:       fee,
		Locked:    false,
		CreatedAt: e.now(),
	}
	if err := e.state.SwapPut(s); err != nil {
		return nil, err
	}
	e.emit(NewInstantiatedEvent(s))
	return s.Clone(), nil
}

// Accept settles the swap in favour of both parties. Only user2 may accept, a
// locked or expired instance rejects the call, and the attached payment must
// equal the second leg exactly. The lock is written before any transfer so a
// settled instance can never settle twice.
func (e *Engine) Accept(addr [20]byte, caller [20]byte, funds []Coin) error {
	s, err := e.loadSwap(addr)
	if err != nil {
		return err
	}
	if s.Locked {
		return ErrSwapLocked
	}
	if s.Terms.Expiration.Expired(e.height(), e.now()) {
		return ErrSwapLocked
	}
	if caller != s.Terms.User2 {
		return ErrUnauthorized
	}
	if !s.Terms.Leg2.IsNative() {
		// An external second leg arrives through NotifyDeposit.
		return ErrFundsNotFound
	}
	if err := CheckSingleCoin(funds, s.Terms.Leg2); err != nil {
		return err
	}
	return e.settleAccept(s)
}

// Cancel returns the full first-leg deposit to user1 and locks the instance.
// Cancellation is not gated by expiration: user1 may reclaim at any time
// before settlement, including after the deadline passed. No fee is charged.
func (e *Engine) Cancel(addr [20]byte, caller [20]byte) error {
	s, err := e.loadSwap(addr)
	if err != nil {
		return err
	}
	if s.Locked {
		return ErrSwapLocked
	}
	if caller != s.Terms.User1 {
		return ErrUnauthorized
	}
	return e.settleCancel(s, "", nil)
}

// NotifyDeposit handles a custodian-delivered deposit aimed at this instance.
// The deposited tokens were already credited to the instance address by the
// custodian before the notification is delivered.
func (e *Engine) NotifyDeposit(addr [20]byte, token string, sender [20]byte, amount *big.Int, payload DepositPayload) error {
	s, err := e.loadSwap(addr)
	if err != nil {
		return err
	}
	if s.Locked {
		return ErrSwapLocked
	}
	if !payload.Valid() {
		return ErrInvalidFunds
	}
	if payload == DepositCancel {
		if sender != s.Terms.User1 {
			return ErrUnauthorized
		}
		// Cancel needs no payment; hand the stray deposit back along
		// with the first-leg refund instead of stranding it.
		return e.settleCancel(s, token, amount)
	}
	if s.Terms.Expiration.Expired(e.height(), e.now()) {
		return ErrSwapLocked
	}
	if sender != s.Terms.User2 {
		return ErrUnauthorized
	}
	if err := CheckExternalDeposit(token, amount, s.Terms.Leg2); err != nil {
		return err
	}
	return e.settleAccept(s)
}

func (e *Engine) settleAccept(s *Swap) error {
	s.Locked = true
	if err := e.state.SwapPut(s); err != nil {
		return err
	}
	fee1, rem1, err := SplitFee(s.Terms.Leg1.Amount, s.Fee.Bps)
	if err != nil {
		return err
	}
	fee2, rem2, err := SplitFee(s.Terms.Leg2.Amount, s.Fee.Bps)
	if err != nil {
		return err
	}
	if err := s.Terms.Leg1.settle(e.state, s.Address, s.Fee.Recipient, fee1); err != nil {
		return err
	}
	if err := s.Terms.Leg2.settle(e.state, s.Address, s.Fee.Recipient, fee2); err != nil {
		return err
	}
	if err := s.Terms.Leg1.settle(e.state, s.Address, s.Terms.User2, rem1); err != nil {
		return err
	}
	if err := s.Terms.Leg2.settle(e.state, s.Address, s.Terms.User1, rem2); err != nil {
		return err
	}
	e.emit(NewAcceptedEvent(s))
	return nil
}

func (e *Engine) settleCancel(s *Swap, strayToken string, strayAmount *big.Int) error {
	s.Locked = true
	if err := e.state.SwapPut(s); err != nil {
		return err
	}
	if strayAmount != nil && strayAmount.Sign() > 0 {
		if err := e.state.TokenTransfer(strayToken, s.Address, s.Terms.User1, strayAmount); err != nil {
			return err
		}
	}
	if err := s.Terms.Leg1.settle(e.state, s.Address, s.Terms.User1, s.Terms.Leg1.Amount); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(s))
	return nil
}

// InstanceConfig is the administrative slice of an instance's state.
type InstanceConfig struct {
	Admin [20]byte
}

// GetSwap returns the full state of the instance at addr.
func (e *Engine) GetSwap(addr [20]byte) (*Swap, error) {
	return e.loadSwap(addr)
}

// GetConfig returns the instance admin.
func (e *Engine) GetConfig(addr [20]byte) (InstanceConfig, error) {
	s, err := e.loadSwap(addr)
	if err != nil {
		return InstanceConfig{}, err
	}
	return InstanceConfig{Admin: s.Admin}, nil
}

// GetFeeConfig returns the fee snapshot captured at creation.
func (e *Engine) GetFeeConfig(addr [20]byte) (FeeConfig, error) {
	s, err := e.loadSwap(addr)
	if err != nil {
		return FeeConfig{}, err
	}
	return s.Fee, nil
}
