package token

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(treasury, uint256.NewInt(1000), zap.NewNop())
	require.Equal(t, uint64(1000), l.TotalSupply().Uint64())

	tl := l.Account(treasury)
	require.NoError(t, tl.Transfer(ctx, alice, uint256.NewInt(400)))

	bal, err := tl.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), bal.Uint64())
	assert.Equal(t, uint64(600), l.Balance(treasury).Uint64())

	t.Run("insufficient balance leaves balances unchanged", func(t *testing.T) {
		err := l.Account(alice).Transfer(ctx, bob, uint256.NewInt(401))
		require.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, uint64(400), l.Balance(alice).Uint64())
		assert.True(t, l.Balance(bob).IsZero())
	})

	t.Run("exact balance", func(t *testing.T) {
		require.NoError(t, l.Account(alice).Transfer(ctx, bob, uint256.NewInt(400)))
		assert.True(t, l.Balance(alice).IsZero())
		assert.Equal(t, uint64(400), l.Balance(bob).Uint64())
	})

	t.Run("zero recipient", func(t *testing.T) {
		err := tl.Transfer(ctx, common.Address{}, uint256.NewInt(1))
		require.ErrorIs(t, err, ErrInvalidRecipient)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		require.ErrorIs(t, tl.Transfer(cctx, alice, uint256.NewInt(1)), context.Canceled)
		assert.Equal(t, uint64(600), l.Balance(treasury).Uint64())
	})

	total := new(uint256.Int)
	for _, a := range []common.Address{treasury, alice, bob} {
		total.Add(total, l.Balance(a))
	}
	assert.Equal(t, l.TotalSupply(), total)
}

func TestLedger_BalanceIsCopy(t *testing.T) {
	l := NewLedger(treasury, uint256.NewInt(10), zap.NewNop())
	b := l.Balance(treasury)
	b.SetUint64(0)
	assert.Equal(t, uint64(10), l.Balance(treasury).Uint64())
}
