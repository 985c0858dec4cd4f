package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Tabellio/cosmoswap/storage"
)

var (
	// ErrInsufficientBalance rejects a transfer exceeding the sender's
	// balance, native or token.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrTokenNotFound reports an unregistered token custodian address.
	ErrTokenNotFound = errors.New("state: token not registered")
)

// Manager is the typed keeper over the raw key-value store. It owns the
// native balance ledger, the external token ledger, and the swap/controller
// records. All values are RLP encoded.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// out. The boolean reports whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes the key if present.
func (m *Manager) KVDelete(key []byte) error {
	return m.db.Delete(key)
}

// --- Native balance ledger ---

func balanceKey(addr [20]byte, denom string) []byte {
	buf := make([]byte, 0, len(bankBalancePrefix)+len(addr)+1+len(denom))
	buf = append(buf, bankBalancePrefix...)
	buf = append(buf, addr[:]...)
	buf = append(buf, '/')
	buf = append(buf, denom...)
	return buf
}

// Balance returns the native balance of addr in denom. Missing entries read
// as zero.
func (m *Manager) Balance(addr [20]byte, denom string) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(balanceKey(addr, denom), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetBalance overwrites the native balance of addr in denom. Used for genesis
// and tests.
func (m *Manager) SetBalance(addr [20]byte, denom string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	return m.KVPut(balanceKey(addr, denom), amount)
}

// Transfer moves a native amount between two addresses.
func (m *Manager) Transfer(from, to [20]byte, denom string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	if strings.TrimSpace(denom) == "" {
		return fmt.Errorf("state: transfer denom must not be empty")
	}
	fromBal, err := m.Balance(from, denom)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := m.Balance(to, denom)
	if err != nil {
		return err
	}
	if err := m.KVPut(balanceKey(from, denom), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.KVPut(balanceKey(to, denom), new(big.Int).Add(toBal, amount))
}

// --- External token ledger ---

// TokenMetadata describes one registered external token custodian.
type TokenMetadata struct {
	Address  string
	Symbol   string
	Decimals uint8
}

func tokenMetaKey(token string) []byte {
	return append(append([]byte{}, tokenMetaPrefix...), token...)
}

func tokenBalanceKey(token string, holder [20]byte) []byte {
	buf := make([]byte, 0, len(tokenBalancePrefix)+len(token)+1+len(holder))
	buf = append(buf, tokenBalancePrefix...)
	buf = append(buf, token...)
	buf = append(buf, '/')
	buf = append(buf, holder[:]...)
	return buf
}

// RegisterToken records the metadata of an external token custodian.
func (m *Manager) RegisterToken(address, symbol string, decimals uint8) error {
	address = strings.TrimSpace(address)
	symbol = strings.TrimSpace(symbol)
	if address == "" || symbol == "" {
		return fmt.Errorf("state: token address and symbol must be set")
	}
	exists, err := m.db.Has(tokenMetaKey(address))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("state: token %s already registered", address)
	}
	return m.KVPut(tokenMetaKey(address), &TokenMetadata{Address: address, Symbol: symbol, Decimals: decimals})
}

// Token returns the metadata of a registered token.
func (m *Manager) Token(address string) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	ok, err := m.KVGet(tokenMetaKey(address), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	return meta, nil
}

// TokenSymbol answers the custodian's symbol query.
func (m *Manager) TokenSymbol(address string) (string, error) {
	meta, err := m.Token(address)
	if err != nil {
		return "", err
	}
	return meta.Symbol, nil
}

// TokenBalance returns holder's balance of the token. Missing entries read as
// zero.
func (m *Manager) TokenBalance(token string, holder [20]byte) (*big.Int, error) {
	if _, err := m.Token(token); err != nil {
		return nil, err
	}
	balance := new(big.Int)
	ok, err := m.KVGet(tokenBalanceKey(token, holder), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetTokenBalance overwrites holder's balance of the token. Used for genesis
// and tests.
func (m *Manager) SetTokenBalance(token string, holder [20]byte, amount *big.Int) error {
	if _, err := m.Token(token); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	return m.KVPut(tokenBalanceKey(token, holder), amount)
}

// TokenTransfer executes a transfer command against the token custodian's
// ledger.
func (m *Manager) TokenTransfer(token string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := m.TokenBalance(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := m.TokenBalance(token, to)
	if err != nil {
		return err
	}
	if err := m.KVPut(tokenBalanceKey(token, from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.KVPut(tokenBalanceKey(token, to), new(big.Int).Add(toBal, amount))
}

// --- Host height ---

// Height returns the committed host unit counter. A fresh database reads
// zero.
func (m *Manager) Height() (uint64, error) {
	var h uint64
	if _, err := m.KVGet(nodeHeightKey, &h); err != nil {
		return 0, err
	}
	return h, nil
}

// SetHeight stores the committed host unit counter. The host writes it inside
// the same unit as the call's state changes so the counter survives restarts.
func (m *Manager) SetHeight(h uint64) error {
	return m.KVPut(nodeHeightKey, h)
}
