package core

import (
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Tabellio/cosmoswap/core/events"
	"github.com/Tabellio/cosmoswap/core/state"
	"github.com/Tabellio/cosmoswap/core/types"
	"github.com/Tabellio/cosmoswap/native/controller"
	"github.com/Tabellio/cosmoswap/native/swap"
	"github.com/Tabellio/cosmoswap/observability"
	"github.com/Tabellio/cosmoswap/storage"
)

// ErrNotInitialized is returned by queries that run before the controller has
// been configured.
var ErrNotInitialized = errors.New("controller not initialised")

// NodeConfig seeds the controller on first start.
type NodeConfig struct {
	Admin        [20]byte
	SwapCodeID   uint64
	FeeBps       uint32
	FeeRecipient [20]byte
}

// Node is the host. It sequences inbound calls one at a time and applies each
// call's state writes and emitted events as a single atomic unit: the call
// runs against a state overlay that only commits when the whole call
// succeeded. Attached payments and custodian deposits move inside the same
// unit, so a failing call leaves no partial transfer behind.
type Node struct {
	mu             sync.Mutex
	db             storage.Database
	controllerAddr [20]byte
	height         uint64
	nowFn          func() int64
	logger         *slog.Logger
	metrics        *observability.SwapMetrics
}

// NewNode opens the host over the supplied database and initialises the
// controller on first start.
func NewNode(db storage.Database, cfg NodeConfig, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		db:             db,
		controllerAddr: controllerAddress(),
		nowFn:          func() int64 { return time.Now().Unix() },
		logger:         logger.With("component", "node"),
		metrics:        observability.Swap(),
	}
	height, err := state.NewManager(db).Height()
	if err != nil {
		return nil, err
	}
	n.height = height
	if err := n.initController(cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// controllerAddress derives the fixed host address the controller lives at.
func controllerAddress() [20]byte {
	hash := ethcrypto.Keccak256Hash([]byte("cosmoswap/controller"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// ControllerAddress returns the controller's host address.
func (n *Node) ControllerAddress() [20]byte { return n.controllerAddr }

// SetNowFunc overrides the host time source, primarily for tests.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// Height returns the number of committed host units; it doubles as the block
// height for height-based expirations.
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

func (n *Node) initController(cfg NodeConfig) error {
	if _, ok := state.NewManager(n.db).ControllerConfigGet(); ok {
		return nil
	}
	return n.withUnit("init", func(u *unit) error {
		if err := u.ctrl.Init(cfg.Admin, cfg.FeeBps, cfg.FeeRecipient); err != nil {
			return err
		}
		if cfg.SwapCodeID == 0 {
			return nil
		}
		return u.ctrl.UpdateConfig(cfg.Admin, cfg.SwapCodeID)
	})
}

// unitInstantiator executes instantiate requests for the controller inside
// the current unit, capturing the sub-call's events so the completion handler
// can read the new instance address out of them.
type unitInstantiator struct {
	swaps *swap.Engine
	rec   *events.Recorder
}

func (u unitInstantiator) InstantiateSwap(addr [20]byte, terms swap.SwapTerms, fee swap.FeeConfig, admin [20]byte, funds []swap.Coin) controller.InstantiateResult {
	sub := events.NewRecorder()
	u.swaps.SetEmitter(sub)
	_, err := u.swaps.Instantiate(addr, terms, fee, admin, funds)
	u.swaps.SetEmitter(u.rec)
	recorded := sub.Events()
	for _, evt := range recorded {
		u.rec.Emit(evt)
	}
	return controller.InstantiateResult{Err: err, Events: toTypedEvents(recorded)}
}

func toTypedEvents(evts []events.Event) []*types.Event {
	out := make([]*types.Event, 0, len(evts))
	for _, evt := range evts {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok {
			continue
		}
		out = append(out, carrier.Event())
	}
	return out
}

// unit bundles the per-call overlay-backed manager, both engines and the
// instantiator that routes sub-calls between them.
type unit struct {
	mgr   *state.Manager
	ctrl  *controller.Engine
	swaps *swap.Engine
	inst  unitInstantiator
	rec   *events.Recorder
}

// withUnit runs fn against a fresh overlay and commits writes, events and the
// height bump only when fn succeeds.
func (n *Node) withUnit(op string, fn func(u *unit) error) error {
	start := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()

	overlay := state.NewOverlay(n.db)
	mgr := state.NewManager(overlay)
	rec := events.NewRecorder()

	eng := swap.NewEngine()
	eng.SetState(mgr)
	eng.SetEmitter(rec)
	eng.SetNowFunc(n.nowFn)
	eng.SetHeightFunc(func() uint64 { return n.height })

	ctrl := controller.NewEngine(n.controllerAddr)
	ctrl.SetState(mgr)
	ctrl.SetEmitter(rec)
	ctrl.SetNowFunc(n.nowFn)
	ctrl.SetHeightFunc(func() uint64 { return n.height })
	inst := unitInstantiator{swaps: eng, rec: rec}
	ctrl.SetInstantiator(inst)

	err := fn(&unit{mgr: mgr, ctrl: ctrl, swaps: eng, inst: inst, rec: rec})
	if err == nil {
		err = mgr.SetHeight(n.height + 1)
	}
	if err == nil {
		err = overlay.Commit()
	}
	if err != nil {
		overlay.Discard()
		n.logger.Warn("unit rejected", "op", op, "err", err)
		n.metrics.Record(op, start, err)
		return err
	}
	n.height++
	for _, evt := range toTypedEvents(rec.Events()) {
		n.logger.Info("event", "op", op, "type", evt.Type, "attributes", evt.Attributes)
	}
	n.metrics.Record(op, start, nil)
	return nil
}

// CreateSwap validates and creates a swap with a natively settled first leg.
// The attached payment moves with the call: caller -> controller -> instance.
func (n *Node) CreateSwap(caller [20]byte, terms swap.SwapTerms, funds []swap.Coin) ([20]byte, error) {
	var addr [20]byte
	err := n.withUnit("create_swap", func(u *unit) error {
		for _, c := range funds {
			if err := u.mgr.Transfer(caller, n.controllerAddr, c.Denom, c.Amount); err != nil {
				return err
			}
		}
		created, err := u.ctrl.CreateSwap(caller, terms, funds)
		if err != nil {
			return err
		}
		addr = created
		return nil
	})
	return addr, err
}

// AcceptSwap settles the swap at addr. The attached payment is credited to
// the instance before the engine validates it; a failed call unwinds both.
func (n *Node) AcceptSwap(addr, caller [20]byte, funds []swap.Coin) error {
	return n.withUnit("accept", func(u *unit) error {
		for _, c := range funds {
			if err := u.mgr.Transfer(caller, addr, c.Denom, c.Amount); err != nil {
				return err
			}
		}
		return u.swaps.Accept(addr, caller, funds)
	})
}

// CancelSwap refunds the first leg to user1 and locks the instance.
func (n *Node) CancelSwap(addr, caller [20]byte) error {
	return n.withUnit("cancel", func(u *unit) error {
		return u.swaps.Cancel(addr, caller)
	})
}

// SendTokenToController is the custodian send carrying a CreateSwap payload:
// the tokens move to the controller and the deposit notification drives the
// two-phase creation to completion within the same unit. On instantiation
// failure the whole unit unwinds, so the deposit returns to the sender.
func (n *Node) SendTokenToController(token string, sender [20]byte, amount *big.Int, terms swap.SwapTerms) ([20]byte, error) {
	var addr [20]byte
	err := n.withUnit("create_swap_external", func(u *unit) error {
		if err := u.mgr.TokenTransfer(token, sender, n.controllerAddr, amount); err != nil {
			return err
		}
		pending, err := u.ctrl.ReceiveDeposit(token, sender, amount, terms)
		if err != nil {
			return err
		}
		res := u.inst.InstantiateSwap(pending.Address, pending.Terms, pending.Fee, n.controllerAddr, nil)
		if err := u.ctrl.OnInstantiateComplete(pending.ID, res); err != nil {
			return err
		}
		addr = pending.Address
		return nil
	})
	return addr, err
}

// SendTokenToSwap is the custodian send aimed at an existing instance,
// carrying an Accept or Cancel payload.
func (n *Node) SendTokenToSwap(token string, sender, addr [20]byte, amount *big.Int, payload swap.DepositPayload) error {
	return n.withUnit("notify_deposit", func(u *unit) error {
		if err := u.mgr.TokenTransfer(token, sender, addr, amount); err != nil {
			return err
		}
		return u.swaps.NotifyDeposit(addr, token, sender, amount, payload)
	})
}

// UpdateConfig replaces the controller's swap code template. Admin only.
func (n *Node) UpdateConfig(caller [20]byte, swapCodeID uint64) error {
	return n.withUnit("update_config", func(u *unit) error {
		return u.ctrl.UpdateConfig(caller, swapCodeID)
	})
}

// UpdateFeeConfig replaces the controller's global fee configuration. Admin
// only; open swaps keep their creation-time snapshot.
func (n *Node) UpdateFeeConfig(caller [20]byte, bps uint32, recipient [20]byte) error {
	return n.withUnit("update_fee_config", func(u *unit) error {
		return u.ctrl.UpdateFeeConfig(caller, bps, recipient)
	})
}

// RegisterToken records an external token custodian in the host ledger.
func (n *Node) RegisterToken(address, symbol string, decimals uint8) error {
	return n.withUnit("register_token", func(u *unit) error {
		return u.mgr.RegisterToken(address, symbol, decimals)
	})
}

// SetBalance seeds a native balance. Genesis and test helper.
func (n *Node) SetBalance(addr [20]byte, denom string, amount *big.Int) error {
	return n.withUnit("set_balance", func(u *unit) error {
		return u.mgr.SetBalance(addr, denom, amount)
	})
}

// SetTokenBalance seeds an external token balance. Genesis and test helper.
func (n *Node) SetTokenBalance(token string, holder [20]byte, amount *big.Int) error {
	return n.withUnit("set_token_balance", func(u *unit) error {
		return u.mgr.SetTokenBalance(token, holder, amount)
	})
}

// --- Queries ---

// withReader runs fn against the committed state under the node mutex, so a
// read never interleaves with a unit mid-commit.
func (n *Node) withReader(fn func(mgr *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(state.NewManager(n.db))
}

// GetSwap returns the full state of the instance at addr.
func (n *Node) GetSwap(addr [20]byte) (*swap.Swap, error) {
	var s *swap.Swap
	err := n.withReader(func(mgr *state.Manager) error {
		got, ok := mgr.SwapGet(addr)
		if !ok {
			return swap.ErrSwapNotFound
		}
		s = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetInstanceConfig returns the instance admin.
func (n *Node) GetInstanceConfig(addr [20]byte) (swap.InstanceConfig, error) {
	s, err := n.GetSwap(addr)
	if err != nil {
		return swap.InstanceConfig{}, err
	}
	return swap.InstanceConfig{Admin: s.Admin}, nil
}

// GetInstanceFeeConfig returns the fee snapshot captured at creation.
func (n *Node) GetInstanceFeeConfig(addr [20]byte) (swap.FeeConfig, error) {
	s, err := n.GetSwap(addr)
	if err != nil {
		return swap.FeeConfig{}, err
	}
	return s.Fee, nil
}

// GetControllerConfig returns the controller configuration.
func (n *Node) GetControllerConfig() (*controller.Config, error) {
	var cfg *controller.Config
	err := n.withReader(func(mgr *state.Manager) error {
		got, ok := mgr.ControllerConfigGet()
		if !ok {
			return ErrNotInitialized
		}
		cfg = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetFeeConfig returns the controller's current global fee configuration.
func (n *Node) GetFeeConfig() (*swap.FeeConfig, error) {
	var fee *swap.FeeConfig
	err := n.withReader(func(mgr *state.Manager) error {
		got, ok := mgr.ControllerFeeGet()
		if !ok {
			return ErrNotInitialized
		}
		fee = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}

// Balance returns a native balance.
func (n *Node) Balance(addr [20]byte, denom string) (*big.Int, error) {
	var bal *big.Int
	err := n.withReader(func(mgr *state.Manager) error {
		got, err := mgr.Balance(addr, denom)
		if err != nil {
			return err
		}
		bal = got
		return nil
	})
	return bal, err
}

// TokenBalance returns an external token balance.
func (n *Node) TokenBalance(token string, holder [20]byte) (*big.Int, error) {
	var bal *big.Int
	err := n.withReader(func(mgr *state.Manager) error {
		got, err := mgr.TokenBalance(token, holder)
		if err != nil {
			return err
		}
		bal = got
		return nil
	})
	return bal, err
}

// Token returns the metadata of a registered token custodian.
func (n *Node) Token(address string) (*state.TokenMetadata, error) {
	var meta *state.TokenMetadata
	err := n.withReader(func(mgr *state.Manager) error {
		got, err := mgr.Token(address)
		if err != nil {
			return err
		}
		meta = got
		return nil
	})
	return meta, err
}
