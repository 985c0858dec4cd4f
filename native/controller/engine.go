package controller

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Tabellio/cosmoswap/core/events"
	"github.com/Tabellio/cosmoswap/core/types"
	"github.com/Tabellio/cosmoswap/native/swap"
)

var (
	errNilState       = errors.New("controller engine: state not configured")
	errNotConfigured  = errors.New("controller engine: config not initialised")
	errNilInstantiate = errors.New("controller engine: instantiator not configured")
)

type engineState interface {
	ControllerConfigPut(*Config) error
	ControllerConfigGet() (*Config, bool)
	ControllerFeePut(*swap.FeeConfig) error
	ControllerFeeGet() (*swap.FeeConfig, bool)
	PendingPut(*PendingCreation) error
	PendingGet(id uint64) (*PendingCreation, bool)
	PendingDelete(id uint64) error
	NextSwapSequence() (uint64, error)
	Transfer(from, to [20]byte, denom string, amount *big.Int) error
	TokenTransfer(token string, from, to [20]byte, amount *big.Int) error
	TokenSymbol(token string) (string, error)
}

// Engine is the swap factory. It owns the global fee configuration and the
// code template reference, creates instances on demand, and runs the
// two-phase creation protocol when the first deposited asset is custodied by
// an external token contract rather than the host ledger.
type Engine struct {
	state        engineState
	instantiator Instantiator
	emitter      events.Emitter
	address      [20]byte
	nowFn        func() int64
	heightFn     func() uint64
}

// NewEngine creates a controller engine bound to its own host address, which
// is where externally custodied deposits are held between the two phases.
func NewEngine(address [20]byte) *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		address:  address,
		nowFn:    func() int64 { return time.Now().Unix() },
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetInstantiator configures the host callback that executes instantiate
// requests.
func (e *Engine) SetInstantiator(inst Instantiator) { e.instantiator = inst }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetHeightFunc overrides the host height source used for expiration checks.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

// Address returns the controller's host address.
func (e *Engine) Address() [20]byte { return e.address }

type controllerEvent struct {
	evt *types.Event
}

func (e controllerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e controllerEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(controllerEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Init stores the initial controller configuration. The code id starts at
// zero and must be set through UpdateConfig before swaps can be created.
func (e *Engine) Init(admin [20]byte, feeBps uint32, feeRecipient [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok := e.state.ControllerConfigGet(); ok {
		return fmt.Errorf("controller: already initialised")
	}
	fee := swap.FeeConfig{Bps: feeBps, Recipient: feeRecipient}
	if err := fee.Validate(); err != nil {
		return err
	}
	if err := e.state.ControllerConfigPut(&Config{Admin: admin}); err != nil {
		return err
	}
	return e.state.ControllerFeePut(&fee)
}

// UpdateConfig replaces the swap code template reference. Admin only.
func (e *Engine) UpdateConfig(caller [20]byte, swapCodeID uint64) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if caller != cfg.Admin {
		return swap.ErrUnauthorized
	}
	cfg.SwapCodeID = swapCodeID
	if err := e.state.ControllerConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent(cfg))
	return nil
}

// UpdateFeeConfig replaces the global fee configuration. Admin only. Open
// swaps keep the snapshot captured at their creation.
func (e *Engine) UpdateFeeConfig(caller [20]byte, bps uint32, recipient [20]byte) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	if caller != cfg.Admin {
		return swap.ErrUnauthorized
	}
	fee := swap.FeeConfig{Bps: bps, Recipient: recipient}
	if err := fee.Validate(); err != nil {
		return err
	}
	if err := e.state.ControllerFeePut(&fee); err != nil {
		return err
	}
	e.emit(NewFeeConfigUpdatedEvent(bps, recipient))
	return nil
}

// CreateSwap validates the terms and synchronously instantiates a new
// instance for a natively settled first leg, forwarding the attached payment
// into it. An externally custodied first leg cannot attach funds; its deposit
// arrives through ReceiveDeposit instead.
func (e *Engine) CreateSwap(caller [20]byte, terms swap.SwapTerms, funds []swap.Coin) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	if e.instantiator == nil {
		return [20]byte{}, errNilInstantiate
	}
	if caller != terms.User1 {
		return [20]byte{}, swap.ErrUnauthorized
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return [20]byte{}, err
	}
	fee, err := e.loadFee()
	if err != nil {
		return [20]byte{}, err
	}
	if err := e.validateTerms(terms); err != nil {
		return [20]byte{}, err
	}
	if !terms.Leg1.IsNative() {
		return [20]byte{}, swap.ErrFundsNotFound
	}
	if err := swap.CheckSingleCoin(funds, terms.Leg1); err != nil {
		return [20]byte{}, err
	}
	seq, err := e.state.NextSwapSequence()
	if err != nil {
		return [20]byte{}, err
	}
	addr := e.instanceAddress(cfg.SwapCodeID, seq)
	// Forward the attached payment into the new instance before it is
	// created; the whole call commits or rolls back as one unit.
	if err := e.state.Transfer(e.address, addr, terms.Leg1.Denom, terms.Leg1.Amount); err != nil {
		return [20]byte{}, err
	}
	res := e.instantiator.InstantiateSwap(addr, terms, *fee, e.address, funds)
	if res.Err != nil {
		return [20]byte{}, res.Err
	}
	e.emit(NewSwapCreatedEvent(addr, caller, 0))
	return addr, nil
}

// ReceiveDeposit is the first phase of a two-phase creation: an external
// token custodian reports that sender transferred amount to the controller,
// carrying the intended swap terms. The deposit is validated against the
// first leg and a pending-creation record is persisted under a fresh
// correlation id before any instantiate request is issued.
func (e *Engine) ReceiveDeposit(token string, sender [20]byte, amount *big.Int, terms swap.SwapTerms) (*PendingCreation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if sender != terms.User1 {
		return nil, swap.ErrUnauthorized
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	fee, err := e.loadFee()
	if err != nil {
		return nil, err
	}
	if err := e.validateTerms(terms); err != nil {
		return nil, err
	}
	if terms.Leg1.IsNative() {
		return nil, swap.ErrInvalidFunds
	}
	if token == "" || terms.Leg1.Custodian != token {
		return nil, swap.ErrInvalidCustodianRef
	}
	symbol, err := e.state.TokenSymbol(token)
	if err != nil {
		return nil, err
	}
	if symbol != terms.Leg1.Denom {
		return nil, swap.ErrInvalidDenom
	}
	if amount == nil || terms.Leg1.Amount.Cmp(amount) != 0 {
		return nil, swap.ErrInvalidFunds
	}
	seq, err := e.state.NextSwapSequence()
	if err != nil {
		return nil, err
	}
	pending := &PendingCreation{
		ID:        seq,
		Address:   e.instanceAddress(cfg.SwapCodeID, seq),
		Token:     token,
		Sender:    sender,
		Amount:    new(big.Int).Set(amount),
		Terms:     terms.Clone(),
		Fee:       *fee,
		CreatedAt: e.now(),
	}
	if err := e.state.PendingPut(pending); err != nil {
		return nil, err
	}
	return pending.Clone(), nil
}

// OnInstantiateComplete is the continuation of a two-phase creation. The
// correlation id must match an outstanding pending record, which is cleared
// so the completion is processed at most once. On success the new instance
// address and the deposited amount are read out of the instantiation's event
// attributes and the held tokens are forwarded from the controller to the
// instance.
func (e *Engine) OnInstantiateComplete(correlationID uint64, res InstantiateResult) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	stored, ok := e.state.PendingGet(correlationID)
	if !ok {
		return swap.ErrUnauthorized
	}
	pending, err := SanitizePending(stored)
	if err != nil {
		return err
	}
	if err := e.state.PendingDelete(correlationID); err != nil {
		return err
	}
	if res.Err != nil {
		return fmt.Errorf("%w: %v", swap.ErrSwapInstantiate, res.Err)
	}
	addr, token, amount, err := parseInstantiated(res.Events)
	if err != nil {
		return fmt.Errorf("%w: %v", swap.ErrSwapInstantiate, err)
	}
	if token != pending.Token || amount.Cmp(pending.Amount) != 0 {
		return fmt.Errorf("%w: deposit does not match instantiated swap", swap.ErrSwapInstantiate)
	}
	if err := e.state.TokenTransfer(pending.Token, e.address, addr, amount); err != nil {
		return err
	}
	e.emit(NewSwapCreatedEvent(addr, pending.Sender, correlationID))
	return nil
}

// GetConfig returns the controller configuration.
func (e *Engine) GetConfig() (*Config, error) {
	return e.loadConfig()
}

// GetFeeConfig returns the current global fee configuration.
func (e *Engine) GetFeeConfig() (*swap.FeeConfig, error) {
	return e.loadFee()
}

func (e *Engine) loadConfig() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok := e.state.ControllerConfigGet()
	if !ok {
		return nil, errNotConfigured
	}
	return cfg, nil
}

func (e *Engine) loadFee() (*swap.FeeConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	fee, ok := e.state.ControllerFeeGet()
	if !ok {
		return nil, errNotConfigured
	}
	return fee, nil
}

func (e *Engine) validateTerms(terms swap.SwapTerms) error {
	if err := terms.Validate(); err != nil {
		return err
	}
	if terms.Leg1.Denom == terms.Leg2.Denom {
		return swap.ErrSameDenoms
	}
	if terms.User1 == terms.User2 {
		return swap.ErrSameUsers
	}
	exp := terms.Expiration
	if !exp.IsZero() && exp.Expired(e.heightFn(), e.now()) {
		return swap.ErrInvalidExpiration
	}
	return nil
}

// instanceAddress derives a deterministic host address for a new instance
// from the controller address, the code template and the creation sequence.
func (e *Engine) instanceAddress(codeID, seq uint64) [20]byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], codeID)
	binary.BigEndian.PutUint64(buf[8:], seq)
	hash := ethcrypto.Keccak256Hash(e.address[:], buf)
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func parseInstantiated(evts []*types.Event) ([20]byte, string, *big.Int, error) {
	for _, evt := range evts {
		if evt == nil || evt.Type != swap.EventTypeSwapInstantiated {
			continue
		}
		rawAddr, ok := evt.Attribute(swap.AttrAddress)
		if !ok {
			return [20]byte{}, "", nil, fmt.Errorf("instantiate event missing address")
		}
		decoded, err := hex.DecodeString(rawAddr)
		if err != nil || len(decoded) != 20 {
			return [20]byte{}, "", nil, fmt.Errorf("invalid instance address %q", rawAddr)
		}
		var addr [20]byte
		copy(addr[:], decoded)
		token, _ := evt.Attribute(swap.AttrLeg1Custodian)
		rawAmount, _ := evt.Attribute(swap.AttrLeg1Amount)
		amount, ok := new(big.Int).SetString(rawAmount, 10)
		if !ok {
			return [20]byte{}, "", nil, fmt.Errorf("invalid leg1 amount %q", rawAmount)
		}
		return addr, token, amount, nil
	}
	return [20]byte{}, "", nil, fmt.Errorf("instantiate event not emitted")
}
