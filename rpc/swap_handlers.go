package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/Tabellio/cosmoswap/core"
	"github.com/Tabellio/cosmoswap/core/state"
	"github.com/Tabellio/cosmoswap/native/swap"
)

const (
	codeSwapInvalidParams = -32021
	codeSwapNotFound      = -32022
	codeSwapForbidden     = -32023
	codeSwapConflict      = -32024
	codeSwapInternal      = -32025
)

type coinJSON struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type legJSON struct {
	Kind      string `json:"kind"`
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
	Custodian string `json:"custodian,omitempty"`
}

type expirationJSON struct {
	AtHeight uint64 `json:"atHeight,omitempty"`
	AtTime   int64  `json:"atTime,omitempty"`
}

type termsJSON struct {
	User1      string          `json:"user1"`
	User2      string          `json:"user2"`
	Leg1       legJSON         `json:"leg1"`
	Leg2       legJSON         `json:"leg2"`
	Expiration *expirationJSON `json:"expiration,omitempty"`
}

type swapJSON struct {
	Address   string          `json:"address"`
	Admin     string          `json:"admin"`
	User1     string          `json:"user1"`
	User2     string          `json:"user2"`
	Leg1      legJSON         `json:"leg1"`
	Leg2      legJSON         `json:"leg2"`
	Expires   *expirationJSON `json:"expiration,omitempty"`
	FeeBps    uint32          `json:"feeBps"`
	FeeTo     string          `json:"feeRecipient"`
	Locked    bool            `json:"locked"`
	CreatedAt int64           `json:"createdAt"`
}

type createSwapParams struct {
	Caller string     `json:"caller"`
	Terms  termsJSON  `json:"terms"`
	Funds  []coinJSON `json:"funds"`
}

type createFromDepositParams struct {
	Token  string    `json:"token"`
	Sender string    `json:"sender"`
	Amount string    `json:"amount"`
	Terms  termsJSON `json:"terms"`
}

type acceptParams struct {
	Address string     `json:"address"`
	Caller  string     `json:"caller"`
	Funds   []coinJSON `json:"funds"`
}

type cancelParams struct {
	Address string `json:"address"`
	Caller  string `json:"caller"`
}

type depositToSwapParams struct {
	Token   string `json:"token"`
	Sender  string `json:"sender"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Payload string `json:"payload"`
}

type updateConfigParams struct {
	Caller     string `json:"caller"`
	SwapCodeID uint64 `json:"swapCodeId"`
}

type updateFeeConfigParams struct {
	Caller       string `json:"caller"`
	FeeBps       uint32 `json:"feeBps"`
	FeeRecipient string `json:"feeRecipient"`
}

type addressParams struct {
	Address string `json:"address"`
}

type balanceParams struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
}

type tokenBalanceParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type createSwapResult struct {
	Address string `json:"address"`
}

type balanceResult struct {
	Amount string `json:"amount"`
}

func decodeParams(req RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q", raw)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d bytes", raw, len(addr))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func parseLeg(in legJSON) (swap.AssetLeg, error) {
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return swap.AssetLeg{}, err
	}
	leg := swap.AssetLeg{Denom: strings.TrimSpace(in.Denom), Amount: amount, Custodian: strings.TrimSpace(in.Custodian)}
	switch strings.ToLower(strings.TrimSpace(in.Kind)) {
	case "", "native":
		leg.Kind = swap.AssetNative
	case "external":
		leg.Kind = swap.AssetExternal
	default:
		return swap.AssetLeg{}, fmt.Errorf("invalid leg kind %q", in.Kind)
	}
	return leg, nil
}

func formatLeg(leg swap.AssetLeg) legJSON {
	kind := "native"
	if !leg.IsNative() {
		kind = "external"
	}
	amount := "0"
	if leg.Amount != nil {
		amount = leg.Amount.String()
	}
	return legJSON{Kind: kind, Denom: leg.Denom, Amount: amount, Custodian: leg.Custodian}
}

func parseTerms(in termsJSON) (swap.SwapTerms, error) {
	user1, err := parseAddress(in.User1)
	if err != nil {
		return swap.SwapTerms{}, err
	}
	user2, err := parseAddress(in.User2)
	if err != nil {
		return swap.SwapTerms{}, err
	}
	leg1, err := parseLeg(in.Leg1)
	if err != nil {
		return swap.SwapTerms{}, fmt.Errorf("leg1: %w", err)
	}
	leg2, err := parseLeg(in.Leg2)
	if err != nil {
		return swap.SwapTerms{}, fmt.Errorf("leg2: %w", err)
	}
	terms := swap.SwapTerms{User1: user1, User2: user2, Leg1: leg1, Leg2: leg2}
	if in.Expiration != nil {
		terms.Expiration = swap.Expiration{Height: in.Expiration.AtHeight, Time: in.Expiration.AtTime}
	}
	return terms, nil
}

func parseFunds(in []coinJSON) ([]swap.Coin, error) {
	out := make([]swap.Coin, 0, len(in))
	for i, c := range in {
		amount, err := parseAmount(c.Amount)
		if err != nil {
			return nil, fmt.Errorf("funds[%d]: %w", i, err)
		}
		out = append(out, swap.Coin{Denom: strings.TrimSpace(c.Denom), Amount: amount})
	}
	return out, nil
}

func formatSwap(s *swap.Swap) swapJSON {
	out := swapJSON{
		Address:   formatAddress(s.Address),
		Admin:     formatAddress(s.Admin),
		User1:     formatAddress(s.Terms.User1),
		User2:     formatAddress(s.Terms.User2),
		Leg1:      formatLeg(s.Terms.Leg1),
		Leg2:      formatLeg(s.Terms.Leg2),
		FeeBps:    s.Fee.Bps,
		FeeTo:     formatAddress(s.Fee.Recipient),
		Locked:    s.Locked,
		CreatedAt: s.CreatedAt,
	}
	if !s.Terms.Expiration.IsZero() {
		out.Expires = &expirationJSON{AtHeight: s.Terms.Expiration.Height, AtTime: s.Terms.Expiration.Time}
	}
	return out
}

// mapSwapError translates engine errors into JSON-RPC error codes.
func mapSwapError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, swap.ErrSwapNotFound):
		writeError(w, http.StatusNotFound, id, codeSwapNotFound, "not_found", err.Error())
	case errors.Is(err, swap.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeSwapForbidden, "forbidden", err.Error())
	case errors.Is(err, swap.ErrSwapLocked):
		writeError(w, http.StatusConflict, id, codeSwapConflict, "conflict", err.Error())
	case errors.Is(err, swap.ErrFundsNotFound),
		errors.Is(err, swap.ErrInvalidAmount),
		errors.Is(err, swap.ErrInvalidDenom),
		errors.Is(err, swap.ErrInvalidFunds),
		errors.Is(err, swap.ErrInvalidCustodianRef),
		errors.Is(err, swap.ErrSameDenoms),
		errors.Is(err, swap.ErrSameUsers),
		errors.Is(err, swap.ErrInvalidExpiration),
		errors.Is(err, state.ErrInsufficientBalance),
		errors.Is(err, state.ErrTokenNotFound):
		writeError(w, http.StatusBadRequest, id, codeSwapInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeSwapInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleCreateSwap(w http.ResponseWriter, req RPCRequest) {
	var params createSwapParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	terms, err := parseTerms(params.Terms)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	funds, err := parseFunds(params.Funds)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := s.node.CreateSwap(caller, terms, funds)
	if err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, createSwapResult{Address: formatAddress(addr)})
}

func (s *Server) handleCreateSwapFromDeposit(w http.ResponseWriter, req RPCRequest) {
	var params createFromDepositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	terms, err := parseTerms(params.Terms)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := s.node.SendTokenToController(strings.TrimSpace(params.Token), sender, amount, terms)
	if err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, createSwapResult{Address: formatAddress(addr)})
}

func (s *Server) handleAccept(w http.ResponseWriter, req RPCRequest) {
	var params acceptParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	funds, err := parseFunds(params.Funds)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AcceptSwap(addr, caller, funds); err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleCancel(w http.ResponseWriter, req RPCRequest) {
	var params cancelParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.CancelSwap(addr, caller); err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleDepositToSwap(w http.ResponseWriter, req RPCRequest) {
	var params depositToSwapParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	var payload swap.DepositPayload
	switch strings.ToLower(strings.TrimSpace(params.Payload)) {
	case "accept":
		payload = swap.DepositAccept
	case "cancel":
		payload = swap.DepositCancel
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", fmt.Sprintf("invalid payload %q", params.Payload))
		return
	}
	if err := s.node.SendTokenToSwap(strings.TrimSpace(params.Token), sender, addr, amount, payload); err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, req RPCRequest) {
	var params updateConfigParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.UpdateConfig(caller, params.SwapCodeID); err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleUpdateFeeConfig(w http.ResponseWriter, req RPCRequest) {
	var params updateFeeConfigParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	recipient, err := parseAddress(params.FeeRecipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.UpdateFeeConfig(caller, params.FeeBps, recipient); err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetSwap(w http.ResponseWriter, req RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.GetSwap(addr)
	if err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatSwap(record))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, req RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	cfg, err := s.node.GetControllerConfig()
	if err != nil {
		if errors.Is(err, core.ErrNotInitialized) {
			writeError(w, http.StatusNotFound, req.ID, codeSwapNotFound, "not_found", err.Error())
			return
		}
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"admin":      formatAddress(cfg.Admin),
		"swapCodeId": cfg.SwapCodeID,
	})
}

func (s *Server) handleGetFeeConfig(w http.ResponseWriter, req RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	fee, err := s.node.GetFeeConfig()
	if err != nil {
		if errors.Is(err, core.ErrNotInitialized) {
			writeError(w, http.StatusNotFound, req.ID, codeSwapNotFound, "not_found", err.Error())
			return
		}
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"feeBps":       fee.Bps,
		"feeRecipient": formatAddress(fee.Recipient),
	})
}

func (s *Server) handleGetInstanceFeeConfig(w http.ResponseWriter, req RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	fee, err := s.node.GetInstanceFeeConfig(addr)
	if err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"feeBps":       fee.Bps,
		"feeRecipient": formatAddress(fee.Recipient),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.node.Balance(addr, strings.TrimSpace(params.Denom))
	if err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Amount: amount.String()})
}

func (s *Server) handleGetTokenBalance(w http.ResponseWriter, req RPCRequest) {
	var params tokenBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSwapInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.node.TokenBalance(strings.TrimSpace(params.Token), addr)
	if err != nil {
		mapSwapError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Amount: amount.String()})
}
