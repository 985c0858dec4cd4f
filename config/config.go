package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// TokenConfig declares an external token custodian registered at genesis.
type TokenConfig struct {
	Address  string `toml:"Address"`
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
}

// BalanceConfig seeds a ledger balance at genesis. Token is empty for native
// balances and names the custodian contract otherwise.
type BalanceConfig struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Denom   string `toml:"Denom"`
	Amount  string `toml:"Amount"`
}

// Config is the daemon configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`

	Admin        string `toml:"Admin"`
	SwapCodeID   uint64 `toml:"SwapCodeID"`
	FeeBps       uint32 `toml:"FeeBps"`
	FeeRecipient string `toml:"FeeRecipient"`

	Tokens   []TokenConfig   `toml:"tokens"`
	Balances []BalanceConfig `toml:"balances"`
}

// Load reads the TOML config at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8645",
		DataDir:       "./cosmoswap-data",
		Env:           "development",
		SwapCodeID:    1,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural fields; address fields are parsed on demand.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps %d exceeds 10000", c.FeeBps)
	}
	if c.Admin != "" {
		if _, err := ParseAddress(c.Admin); err != nil {
			return fmt.Errorf("config: Admin: %w", err)
		}
	}
	if c.FeeRecipient != "" {
		if _, err := ParseAddress(c.FeeRecipient); err != nil {
			return fmt.Errorf("config: FeeRecipient: %w", err)
		}
	}
	for i, t := range c.Tokens {
		if strings.TrimSpace(t.Address) == "" || strings.TrimSpace(t.Symbol) == "" {
			return fmt.Errorf("config: tokens[%d]: address and symbol required", i)
		}
	}
	for i, b := range c.Balances {
		if _, err := ParseAddress(b.Address); err != nil {
			return fmt.Errorf("config: balances[%d]: %w", i, err)
		}
		if _, err := ParseAmount(b.Amount); err != nil {
			return fmt.Errorf("config: balances[%d]: %w", i, err)
		}
		if b.Token == "" && strings.TrimSpace(b.Denom) == "" {
			return fmt.Errorf("config: balances[%d]: native balance requires a denom", i)
		}
	}
	return nil
}

// AdminAddress parses the configured admin address.
func (c Config) AdminAddress() ([20]byte, error) {
	return ParseAddress(c.Admin)
}

// FeeRecipientAddress parses the configured fee recipient address.
func (c Config) FeeRecipientAddress() ([20]byte, error) {
	return ParseAddress(c.FeeRecipient)
}

// ParseAddress decodes a 20-byte hex address, with or without an 0x prefix.
func ParseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d bytes, got %d", raw, len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// ParseAmount decodes a base-10 non-negative integer amount.
func ParseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}
