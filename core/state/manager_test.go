package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tabellio/cosmoswap/storage"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestBalanceDefaultsToZero(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	bal, err := mgr.Balance(addr(0x01), "denom-a")
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestTransfer(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	alice, bob := addr(0x01), addr(0x02)
	require.NoError(t, mgr.SetBalance(alice, "denom-a", big.NewInt(100)))

	require.NoError(t, mgr.Transfer(alice, bob, "denom-a", big.NewInt(30)))

	aliceBal, err := mgr.Balance(alice, "denom-a")
	require.NoError(t, err)
	require.Equal(t, int64(70), aliceBal.Int64())
	bobBal, err := mgr.Balance(bob, "denom-a")
	require.NoError(t, err)
	require.Equal(t, int64(30), bobBal.Int64())

	err = mgr.Transfer(alice, bob, "denom-a", big.NewInt(1000))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Error(t, mgr.Transfer(alice, bob, "denom-a", big.NewInt(-1)))
	require.Error(t, mgr.Transfer(alice, bob, "", big.NewInt(1)))
	// Zero transfers are a no-op.
	require.NoError(t, mgr.Transfer(alice, bob, "denom-a", big.NewInt(0)))
}

func TestTokenLedger(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	alice, bob := addr(0x01), addr(0x02)

	_, err := mgr.TokenBalance("token-1", alice)
	require.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, mgr.RegisterToken("token-1", "TKA", 6))
	require.Error(t, mgr.RegisterToken("token-1", "TKA", 6))

	meta, err := mgr.Token("token-1")
	require.NoError(t, err)
	require.Equal(t, "TKA", meta.Symbol)
	require.Equal(t, uint8(6), meta.Decimals)

	symbol, err := mgr.TokenSymbol("token-1")
	require.NoError(t, err)
	require.Equal(t, "TKA", symbol)

	require.NoError(t, mgr.SetTokenBalance("token-1", alice, big.NewInt(500)))
	require.NoError(t, mgr.TokenTransfer("token-1", alice, bob, big.NewInt(200)))

	aliceBal, err := mgr.TokenBalance("token-1", alice)
	require.NoError(t, err)
	require.Equal(t, int64(300), aliceBal.Int64())
	bobBal, err := mgr.TokenBalance("token-1", bob)
	require.NoError(t, err)
	require.Equal(t, int64(200), bobBal.Int64())

	err = mgr.TokenTransfer("token-1", bob, alice, big.NewInt(9_999))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	err = mgr.TokenTransfer("token-2", alice, bob, big.NewInt(1))
	require.ErrorIs(t, err, ErrTokenNotFound)
}
