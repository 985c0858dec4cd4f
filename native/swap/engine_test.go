package swap

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/Tabellio/cosmoswap/core/events"
)

type mockState struct {
	swaps    map[[20]byte]*Swap
	balances map[string]map[[20]byte]*big.Int
	tokens   map[string]map[[20]byte]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		swaps:    make(map[[20]byte]*Swap),
		balances: make(map[string]map[[20]byte]*big.Int),
		tokens:   make(map[string]map[[20]byte]*big.Int),
	}
}

func (m *mockState) SwapPut(s *Swap) error {
	sanitized, err := SanitizeSwap(s)
	if err != nil {
		return err
	}
	m.swaps[sanitized.Address] = sanitized.Clone()
	return nil
}

func (m *mockState) SwapGet(addr [20]byte) (*Swap, bool) {
	s, ok := m.swaps[addr]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (m *mockState) ledger(denom string) map[[20]byte]*big.Int {
	l, ok := m.balances[denom]
	if !ok {
		l = make(map[[20]byte]*big.Int)
		m.balances[denom] = l
	}
	return l
}

func (m *mockState) tokenLedger(token string) map[[20]byte]*big.Int {
	l, ok := m.tokens[token]
	if !ok {
		l = make(map[[20]byte]*big.Int)
		m.tokens[token] = l
	}
	return l
}

func move(l map[[20]byte]*big.Int, from, to [20]byte, amount *big.Int) error {
	fromBal, ok := l[from]
	if !ok {
		fromBal = big.NewInt(0)
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	toBal, ok := l[to]
	if !ok {
		toBal = big.NewInt(0)
	}
	l[from] = new(big.Int).Sub(fromBal, amount)
	l[to] = new(big.Int).Add(toBal, amount)
	return nil
}

func (m *mockState) Transfer(from, to [20]byte, denom string, amount *big.Int) error {
	return move(m.ledger(denom), from, to, amount)
}

func (m *mockState) TokenTransfer(token string, from, to [20]byte, amount *big.Int) error {
	return move(m.tokenLedger(token), from, to, amount)
}

func (m *mockState) setBalance(addr [20]byte, denom string, amount int64) {
	m.ledger(denom)[addr] = big.NewInt(amount)
}

func (m *mockState) balance(addr [20]byte, denom string) *big.Int {
	bal, ok := m.ledger(denom)[addr]
	if !ok {
		return big.NewInt(0)
	}
	return bal
}

func (m *mockState) setTokenBalance(token string, addr [20]byte, amount int64) {
	m.tokenLedger(token)[addr] = big.NewInt(amount)
}

func (m *mockState) tokenBalance(token string, addr [20]byte) *big.Int {
	bal, ok := m.tokenLedger(token)[addr]
	if !ok {
		return big.NewInt(0)
	}
	return bal
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	testUser1     = newTestAddress(0x11)
	testUser2     = newTestAddress(0x22)
	testFeeTo     = newTestAddress(0x33)
	testAdmin     = newTestAddress(0x44)
	testInstance  = newTestAddress(0x55)
	testOutsider  = newTestAddress(0x66)
	testCustodian = "token-contract-1"
)

func nativeTerms() SwapTerms {
	return SwapTerms{
		User1: testUser1,
		User2: testUser2,
		Leg1:  AssetLeg{Kind: AssetNative, Denom: "denom-a", Amount: big.NewInt(1000)},
		Leg2:  AssetLeg{Kind: AssetNative, Denom: "denom-b", Amount: big.NewInt(5000)},
	}
}

func externalLeg2Terms() SwapTerms {
	terms := nativeTerms()
	terms.Leg2 = AssetLeg{Kind: AssetExternal, Denom: "TKB", Amount: big.NewInt(5000), Custodian: testCustodian}
	return terms
}

func newTestEngine(state *mockState) (*Engine, *capturingEmitter) {
	eng := NewEngine()
	eng.SetState(state)
	emitter := &capturingEmitter{}
	eng.SetEmitter(emitter)
	eng.SetNowFunc(func() int64 { return 1_000 })
	eng.SetHeightFunc(func() uint64 { return 10 })
	return eng, emitter
}

func mustInstantiate(t *testing.T, eng *Engine, state *mockState, terms SwapTerms, fee FeeConfig) *Swap {
	t.Helper()
	// The host escrows the first leg on the instance address before the
	// engine stores the record.
	if terms.Leg1.IsNative() {
		state.ledger(terms.Leg1.Denom)[testInstance] = new(big.Int).Set(terms.Leg1.Amount)
	} else {
		state.tokenLedger(terms.Leg1.Custodian)[testInstance] = new(big.Int).Set(terms.Leg1.Amount)
	}
	var funds []Coin
	if terms.Leg1.IsNative() {
		funds = []Coin{{Denom: terms.Leg1.Denom, Amount: new(big.Int).Set(terms.Leg1.Amount)}}
	}
	s, err := eng.Instantiate(testInstance, terms, fee, testAdmin, funds)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return s
}

func fundAccept(state *mockState, terms SwapTerms) []Coin {
	state.ledger(terms.Leg2.Denom)[testInstance] = new(big.Int).Set(terms.Leg2.Amount)
	return []Coin{{Denom: terms.Leg2.Denom, Amount: new(big.Int).Set(terms.Leg2.Amount)}}
}

func TestInstantiateValidations(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	fee := FeeConfig{Bps: 500, Recipient: testFeeTo}

	cases := []struct {
		name  string
		terms func() SwapTerms
		funds []Coin
		want  error
	}{
		{
			name: "missing funds",
			terms: func() SwapTerms {
				return nativeTerms()
			},
			funds: nil,
			want:  ErrFundsNotFound,
		},
		{
			name: "wrong amount",
			terms: func() SwapTerms {
				return nativeTerms()
			},
			funds: []Coin{{Denom: "denom-a", Amount: big.NewInt(999)}},
			want:  ErrInvalidAmount,
		},
		{
			name: "wrong denom",
			terms: func() SwapTerms {
				return nativeTerms()
			},
			funds: []Coin{{Denom: "denom-x", Amount: big.NewInt(1000)}},
			want:  ErrInvalidDenom,
		},
		{
			name: "external leg without custodian",
			terms: func() SwapTerms {
				terms := nativeTerms()
				terms.Leg1 = AssetLeg{Kind: AssetExternal, Denom: "TKA", Amount: big.NewInt(1000)}
				return terms
			},
			funds: nil,
			want:  ErrInvalidCustodianRef,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Instantiate(testInstance, tc.terms(), fee, testAdmin, tc.funds)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInstantiateRejectsDuplicateAddress(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	fee := FeeConfig{Bps: 0, Recipient: testFeeTo}
	mustInstantiate(t, eng, state, nativeTerms(), fee)

	funds := []Coin{{Denom: "denom-a", Amount: big.NewInt(1000)}}
	if _, err := eng.Instantiate(testInstance, nativeTerms(), fee, testAdmin, funds); err == nil {
		t.Fatalf("expected duplicate address error")
	}
}

func TestAcceptSettlesWithFees(t *testing.T) {
	state := newMockState()
	eng, emitter := newTestEngine(state)
	terms := nativeTerms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 500, Recipient: testFeeTo})

	funds := fundAccept(state, terms)
	if err := eng.Accept(testInstance, testUser2, funds); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// 5% of 1000 denom-a and 5000 denom-b goes to the fee recipient, the
	// remainders cross over.
	if got := state.balance(testUser2, "denom-a"); got.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("user2 denom-a: got %s want 950", got)
	}
	if got := state.balance(testUser1, "denom-b"); got.Cmp(big.NewInt(4750)) != 0 {
		t.Fatalf("user1 denom-b: got %s want 4750", got)
	}
	if got := state.balance(testFeeTo, "denom-a"); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("fee denom-a: got %s want 50", got)
	}
	if got := state.balance(testFeeTo, "denom-b"); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("fee denom-b: got %s want 250", got)
	}
	if got := state.balance(testInstance, "denom-a"); got.Sign() != 0 {
		t.Fatalf("instance denom-a not drained: %s", got)
	}
	if got := state.balance(testInstance, "denom-b"); got.Sign() != 0 {
		t.Fatalf("instance denom-b not drained: %s", got)
	}

	stored, ok := state.SwapGet(testInstance)
	if !ok || !stored.Locked {
		t.Fatalf("expected stored swap locked after accept")
	}
	types := emitter.types()
	if len(types) != 2 || types[1] != EventTypeSwapAccepted {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestAcceptZeroFeeRoundsDown(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	terms.Leg1.Amount = big.NewInt(3)
	terms.Leg2.Amount = big.NewInt(7)
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 100, Recipient: testFeeTo})

	funds := fundAccept(state, terms)
	if err := eng.Accept(testInstance, testUser2, funds); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// 1% of 3 and of 7 floors to zero, so the full amounts cross over.
	if got := state.balance(testUser2, "denom-a"); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("user2 denom-a: got %s want 3", got)
	}
	if got := state.balance(testUser1, "denom-b"); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("user1 denom-b: got %s want 7", got)
	}
	if got := state.balance(testFeeTo, "denom-a"); got.Sign() != 0 {
		t.Fatalf("fee denom-a: got %s want 0", got)
	}
}

func TestAcceptAuthorization(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})

	funds := fundAccept(state, terms)
	for _, caller := range [][20]byte{testUser1, testOutsider} {
		if err := eng.Accept(testInstance, caller, funds); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("caller %x: expected ErrUnauthorized, got %v", caller[:2], err)
		}
	}
}

func TestAcceptFundsValidation(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})

	cases := []struct {
		name  string
		funds []Coin
		want  error
	}{
		{"no funds", nil, ErrFundsNotFound},
		{"two coins", []Coin{
			{Denom: "denom-b", Amount: big.NewInt(2500)},
			{Denom: "denom-b", Amount: big.NewInt(2500)},
		}, ErrFundsNotFound},
		{"wrong amount", []Coin{{Denom: "denom-b", Amount: big.NewInt(4999)}}, ErrInvalidAmount},
		{"wrong denom", []Coin{{Denom: "denom-a", Amount: big.NewInt(5000)}}, ErrInvalidDenom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := eng.Accept(testInstance, testUser2, tc.funds); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLockedInstanceRejectsAllCallers(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})
	if err := eng.Cancel(testInstance, testUser1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	funds := fundAccept(state, terms)
	for _, caller := range [][20]byte{testUser1, testUser2, testOutsider} {
		if err := eng.Accept(testInstance, caller, funds); !errors.Is(err, ErrSwapLocked) {
			t.Fatalf("accept by %x: expected ErrSwapLocked, got %v", caller[:2], err)
		}
		if err := eng.Cancel(testInstance, caller); !errors.Is(err, ErrSwapLocked) {
			t.Fatalf("cancel by %x: expected ErrSwapLocked, got %v", caller[:2], err)
		}
	}
}

func TestAcceptExpiration(t *testing.T) {
	cases := []struct {
		name       string
		expiration Expiration
		height     uint64
		now        int64
		want       error
	}{
		{"height not reached", Expiration{Height: 11}, 10, 1_000, nil},
		{"height reached", Expiration{Height: 10}, 10, 1_000, ErrSwapLocked},
		{"time not reached", Expiration{Time: 1_001}, 10, 1_000, nil},
		{"time reached", Expiration{Time: 1_000}, 10, 1_000, ErrSwapLocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := newMockState()
			eng, _ := newTestEngine(state)
			eng.SetNowFunc(func() int64 { return tc.now })
			eng.SetHeightFunc(func() uint64 { return tc.height })
			terms := nativeTerms()
			terms.Expiration = tc.expiration
			mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})

			funds := fundAccept(state, terms)
			err := eng.Accept(testInstance, testUser2, funds)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("accept: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCancelRefundsDeposit(t *testing.T) {
	state := newMockState()
	eng, emitter := newTestEngine(state)
	terms := nativeTerms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 500, Recipient: testFeeTo})

	if err := eng.Cancel(testInstance, testOutsider); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := eng.Cancel(testInstance, testUser1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// No fee on cancel: the full first leg returns to user1.
	if got := state.balance(testUser1, "denom-a"); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("user1 refund: got %s want 1000", got)
	}
	if got := state.balance(testFeeTo, "denom-a"); got.Sign() != 0 {
		t.Fatalf("fee on cancel: got %s want 0", got)
	}
	types := emitter.types()
	if len(types) != 2 || types[1] != EventTypeSwapCancelled {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestCancelAfterExpirationStillWorks(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	terms.Expiration = Expiration{Time: 500}
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})

	// now=1000 is past the deadline; cancel must still succeed.
	if err := eng.Cancel(testInstance, testUser1); err != nil {
		t.Fatalf("cancel after expiry: %v", err)
	}
	if got := state.balance(testUser1, "denom-a"); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("user1 refund: got %s want 1000", got)
	}
}

func TestNotifyDepositAcceptSettlesExternalLeg(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := externalLeg2Terms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 500, Recipient: testFeeTo})

	// The custodian credited the instance before delivering the
	// notification.
	state.setTokenBalance(testCustodian, testInstance, 5000)
	if err := eng.NotifyDeposit(testInstance, testCustodian, testUser2, big.NewInt(5000), DepositAccept); err != nil {
		t.Fatalf("notify deposit: %v", err)
	}
	if got := state.balance(testUser2, "denom-a"); got.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("user2 denom-a: got %s want 950", got)
	}
	if got := state.tokenBalance(testCustodian, testUser1); got.Cmp(big.NewInt(4750)) != 0 {
		t.Fatalf("user1 tokens: got %s want 4750", got)
	}
	if got := state.tokenBalance(testCustodian, testFeeTo); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("fee tokens: got %s want 250", got)
	}
}

func TestNotifyDepositValidation(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := externalLeg2Terms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})

	cases := []struct {
		name   string
		token  string
		sender [20]byte
		amount *big.Int
		want   error
	}{
		{"wrong sender", testCustodian, testOutsider, big.NewInt(5000), ErrUnauthorized},
		{"wrong custodian", "other-token", testUser2, big.NewInt(5000), ErrInvalidCustodianRef},
		{"wrong amount", testCustodian, testUser2, big.NewInt(4999), ErrInvalidFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := eng.NotifyDeposit(testInstance, tc.token, tc.sender, tc.amount, DepositAccept)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNotifyDepositAcceptOnNativeLegRejected(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})

	err := eng.NotifyDeposit(testInstance, testCustodian, testUser2, big.NewInt(5000), DepositAccept)
	if !errors.Is(err, ErrInvalidFunds) {
		t.Fatalf("expected ErrInvalidFunds, got %v", err)
	}
}

func TestNotifyDepositCancelReturnsStrayTokens(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	mustInstantiate(t, eng, state, terms, FeeConfig{Bps: 0, Recipient: testFeeTo})

	state.setTokenBalance(testCustodian, testInstance, 40)
	if err := eng.NotifyDeposit(testInstance, testCustodian, testUser1, big.NewInt(40), DepositCancel); err != nil {
		t.Fatalf("notify cancel: %v", err)
	}
	if got := state.balance(testUser1, "denom-a"); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("user1 refund: got %s want 1000", got)
	}
	if got := state.tokenBalance(testCustodian, testUser1); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("stray tokens: got %s want 40", got)
	}
}

func TestQueries(t *testing.T) {
	state := newMockState()
	eng, _ := newTestEngine(state)
	terms := nativeTerms()
	fee := FeeConfig{Bps: 250, Recipient: testFeeTo}
	mustInstantiate(t, eng, state, terms, fee)

	s, err := eng.GetSwap(testInstance)
	if err != nil {
		t.Fatalf("get swap: %v", err)
	}
	if s.Locked || s.Terms.User1 != testUser1 {
		t.Fatalf("unexpected swap state: %+v", s)
	}
	cfg, err := eng.GetConfig(testInstance)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.Admin != testAdmin {
		t.Fatalf("unexpected admin: %x", cfg.Admin)
	}
	got, err := eng.GetFeeConfig(testInstance)
	if err != nil {
		t.Fatalf("get fee config: %v", err)
	}
	if got.Bps != fee.Bps || got.Recipient != fee.Recipient {
		t.Fatalf("unexpected fee config: %+v", got)
	}
	if _, err := eng.GetSwap(testOutsider); !errors.Is(err, ErrSwapNotFound) {
		t.Fatalf("expected ErrSwapNotFound, got %v", err)
	}
}
