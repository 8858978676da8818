package balancemap

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
)

func TestStoreSaveAndLoad(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	empty, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())

	_, ok, err := store.LastRoot()
	require.NoError(t, err)
	require.False(t, ok)

	accounts := testutil.CreateTestAccounts(3)
	bm, err := New([]Entry{
		{Account: accounts[0], Amount: uint256.NewInt(200), Reasons: "user"},
		{Account: accounts[1], Amount: uint256.NewInt(300)},
		{Account: accounts[2], Amount: uint256.NewInt(250)},
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(bm))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, bm.Balances(), loaded.Balances())
	require.Equal(t, bm.Snapshot().Root, loaded.Snapshot().Root)

	root, ok, err := store.LastRoot()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bm.Snapshot().Root, root)
}

func TestStoreSaveReplacesRemoved(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)

	accounts := testutil.CreateTestAccounts(3)
	bm, err := NewFromAmounts(testutil.Amounts(accounts, 1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, store.Save(bm))

	_, err = bm.Remove([]common.Address{accounts[1]})
	require.NoError(t, err)
	require.NoError(t, store.Save(bm))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.Load()
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	require.NotContains(t, loaded.Snapshot().Claims, accounts[1])
	require.Equal(t, bm.Snapshot().Root, loaded.Snapshot().Root)
}
