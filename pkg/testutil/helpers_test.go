package testutil

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestCreateTestWalletsDeterministic(t *testing.T) {
	a := CreateTestWallets(5)
	b := CreateTestWallets(5)
	seen := make(map[common.Address]bool)
	for i := range a {
		require.Equal(t, a[i].Address, b[i].Address)
		require.NotEqual(t, common.Address{}, a[i].Address)
		require.False(t, seen[a[i].Address])
		seen[a[i].Address] = true
	}
}

func TestSortAccounts(t *testing.T) {
	accounts := CreateTestAccounts(8)
	sorted := SortAccounts(accounts)
	require.ElementsMatch(t, accounts, sorted)
	for i := 1; i < len(sorted); i++ {
		require.Less(t, sorted[i-1].Hex(), sorted[i].Hex())
	}
}

func TestRandomAmountsInRange(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	amounts := RandomAmounts(r, CreateTestAccounts(20), 10)
	require.Len(t, amounts, 20)
	for _, amount := range amounts {
		require.False(t, amount.IsZero())
		require.LessOrEqual(t, amount.Uint64(), uint64(10))
	}
}
