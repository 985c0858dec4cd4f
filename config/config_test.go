package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.ListenAddress)
	require.Equal(t, "./cosmoswap-data", cfg.DataDir)
	require.Equal(t, uint64(1), cfg.SwapCodeID)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
DataDir = "/tmp/swapd"
Env = "production"
Admin = "0x1111111111111111111111111111111111111111"
SwapCodeID = 7
FeeBps = 500
FeeRecipient = "3333333333333333333333333333333333333333"

[[tokens]]
Address = "token-contract-1"
Symbol = "TKA"
Decimals = 6

[[balances]]
Address = "0x2222222222222222222222222222222222222222"
Denom = "denom-a"
Amount = "1000"

[[balances]]
Address = "0x2222222222222222222222222222222222222222"
Token = "token-contract-1"
Amount = "5000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "production", cfg.Env)
	require.Equal(t, uint64(7), cfg.SwapCodeID)
	require.Equal(t, uint32(500), cfg.FeeBps)
	require.Len(t, cfg.Tokens, 1)
	require.Equal(t, "TKA", cfg.Tokens[0].Symbol)
	require.Len(t, cfg.Balances, 2)

	admin, err := cfg.AdminAddress()
	require.NoError(t, err)
	require.Equal(t, byte(0x11), admin[0])
	recipient, err := cfg.FeeRecipientAddress()
	require.NoError(t, err)
	require.Equal(t, byte(0x33), recipient[19])
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"fee over range", "FeeBps = 10001\n"},
		{"bad admin", `Admin = "nope"` + "\n"},
		{"bad balance amount", `
[[balances]]
Address = "0x2222222222222222222222222222222222222222"
Denom = "denom-a"
Amount = "-5"
`},
		{"native balance without denom", `
[[balances]]
Address = "0x2222222222222222222222222222222222222222"
Amount = "5"
`},
		{"token without symbol", `
[[tokens]]
Address = "token-contract-1"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.Equal(t, byte(0x11), addr[0])

	_, err = ParseAddress("0x11")
	require.Error(t, err)
	_, err = ParseAddress("zz11111111111111111111111111111111111111")
	require.Error(t, err)
}
