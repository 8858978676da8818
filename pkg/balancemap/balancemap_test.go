package balancemap

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
)

func requireSnapshotConsistent(t *testing.T, s *Snapshot) {
	t.Helper()
	require.NoError(t, Verify(s))

	sum := new(uint256.Int)
	for account, claim := range s.Claims {
		sum.Add(sum, claim.Amount)
		leaf := merkle.LeafHash(claim.Index, account, claim.Amount)
		require.True(t, merkle.Verify(leaf, claim.Proof, s.Root), "proof for %s", account.Hex())
	}
	require.True(t, sum.Eq(s.Total))
}

func TestNewThreeAccounts(t *testing.T) {
	accounts := testutil.CreateTestAccounts(3)
	bm, err := NewFromAmounts(testutil.Amounts(accounts, 200, 300, 250))
	require.NoError(t, err)

	s := bm.Snapshot()
	require.Equal(t, "0x2ee", s.Total.Hex())
	require.Equal(t, "0x2ee", s.Info().TokenTotal)
	require.Len(t, s.Claims, 3)
	requireSnapshotConsistent(t, s)

	sorted := testutil.SortAccounts(accounts)
	for i, account := range sorted {
		require.Equal(t, uint64(i), s.Claims[account].Index)
	}
	require.Equal(t, sorted, s.Accounts())
}

func TestNewValidation(t *testing.T) {
	accounts := testutil.CreateTestAccounts(2)

	t.Run("zero amount", func(t *testing.T) {
		_, err := New([]Entry{{Account: accounts[0], Amount: uint256.NewInt(0)}})
		require.ErrorIs(t, err, ErrZeroAmount)
	})

	t.Run("nil amount", func(t *testing.T) {
		_, err := New([]Entry{{Account: accounts[0]}})
		require.ErrorIs(t, err, ErrZeroAmount)
	})

	t.Run("zero address", func(t *testing.T) {
		_, err := New([]Entry{{Account: common.Address{}, Amount: uint256.NewInt(1)}})
		require.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("duplicate account", func(t *testing.T) {
		_, err := New([]Entry{
			{Account: accounts[0], Amount: uint256.NewInt(1)},
			{Account: accounts[1], Amount: uint256.NewInt(2)},
			{Account: accounts[0], Amount: uint256.NewInt(3)},
		})
		require.ErrorIs(t, err, ErrDuplicateAccount)
	})

	t.Run("total overflow", func(t *testing.T) {
		_, err := New([]Entry{
			{Account: accounts[0], Amount: new(uint256.Int).SetAllOne()},
			{Account: accounts[1], Amount: uint256.NewInt(1)},
		})
		require.ErrorIs(t, err, ErrAmountOverflow)
	})
}

func TestEmptyMap(t *testing.T) {
	bm, err := New(nil)
	require.NoError(t, err)

	s := bm.Snapshot()
	require.True(t, s.Empty())
	require.Equal(t, [32]byte{}, s.Root)
	require.True(t, s.Total.IsZero())
	require.NoError(t, Verify(s))

	// No leaf can fold to the zero root
	leaf := merkle.LeafHash(0, common.Address{1}, uint256.NewInt(1))
	require.False(t, merkle.Verify(leaf, nil, s.Root))
}

func TestSnapshotIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	amounts := testutil.RandomAmounts(r, testutil.CreateTestAccounts(25), 1_000_000)

	bm1, err := NewFromAmounts(amounts)
	require.NoError(t, err)
	bm2, err := NewFromAmounts(amounts)
	require.NoError(t, err)

	out1, err := json.Marshal(bm1.Snapshot())
	require.NoError(t, err)
	out2, err := json.Marshal(bm2.Snapshot())
	require.NoError(t, err)
	require.Equal(t, out1, out2)

	// Rederiving from the same map through a no-op mutation is stable too
	again, err := bm1.Remove(nil)
	require.NoError(t, err)
	require.Equal(t, bm2.Snapshot().Root, again.Root)
}

func TestSnapshotProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 1; n <= 40; n++ {
		accounts := testutil.CreateTestAccounts(n)
		bm, err := NewFromAmounts(testutil.RandomAmounts(r, accounts, 1<<40))
		require.NoError(t, err)
		requireSnapshotConsistent(t, bm.Snapshot())
	}
}

func TestAdd(t *testing.T) {
	accounts := testutil.CreateTestAccounts(3)
	bm, err := NewFromAmounts(testutil.Amounts(accounts[:2], 100, 101))
	require.NoError(t, err)
	before := bm.Snapshot()

	t.Run("increments existing and inserts new", func(t *testing.T) {
		s, err := bm.Add(map[common.Address]*uint256.Int{
			accounts[0]: uint256.NewInt(5),
			accounts[2]: uint256.NewInt(7),
		})
		require.NoError(t, err)
		require.NotEqual(t, before.Root, s.Root)
		require.Equal(t, uint64(105), s.Claims[accounts[0]].Amount.Uint64())
		require.Equal(t, uint64(101), s.Claims[accounts[1]].Amount.Uint64())
		require.Equal(t, uint64(7), s.Claims[accounts[2]].Amount.Uint64())
		require.Equal(t, uint64(213), s.Total.Uint64())
		require.Same(t, s, bm.Snapshot())
		requireSnapshotConsistent(t, s)
	})
}

func TestAddAtomic(t *testing.T) {
	accounts := testutil.CreateTestAccounts(3)
	bm, err := NewFromAmounts(testutil.Amounts(accounts[:2], 100, 101))
	require.NoError(t, err)
	before := bm.Snapshot()
	beforeBalances := bm.Balances()

	testCases := []struct {
		name   string
		deltas map[common.Address]*uint256.Int
		target error
	}{
		{"zero delta", map[common.Address]*uint256.Int{
			accounts[0]: uint256.NewInt(5),
			accounts[2]: uint256.NewInt(0),
		}, ErrZeroAmount},
		{"zero address", map[common.Address]*uint256.Int{
			accounts[2]:      uint256.NewInt(5),
			common.Address{}: uint256.NewInt(5),
		}, ErrInvalidAddress},
		{"overflow", map[common.Address]*uint256.Int{
			accounts[2]: uint256.NewInt(1),
			accounts[0]: new(uint256.Int).SetAllOne(),
		}, ErrAmountOverflow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := bm.Add(tc.deltas)
			require.ErrorIs(t, err, tc.target)
			require.Nil(t, s)
			require.Same(t, before, bm.Snapshot())
			require.Equal(t, beforeBalances, bm.Balances())
		})
	}
}

func TestUpdate(t *testing.T) {
	accounts := testutil.CreateTestAccounts(3)
	bm, err := NewFromAmounts(testutil.Amounts(accounts[:2], 100, 101))
	require.NoError(t, err)
	before := bm.Snapshot()

	t.Run("unknown account fails whole batch", func(t *testing.T) {
		_, err := bm.Update(map[common.Address]*uint256.Int{
			accounts[0]: uint256.NewInt(50),
			accounts[2]: uint256.NewInt(50),
		})
		require.ErrorIs(t, err, ErrUnknownAccount)
		require.Same(t, before, bm.Snapshot())
		require.Equal(t, uint64(100), bm.Snapshot().Claims[accounts[0]].Amount.Uint64())
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := bm.Update(map[common.Address]*uint256.Int{accounts[0]: uint256.NewInt(0)})
		require.ErrorIs(t, err, ErrZeroAmount)
		require.Same(t, before, bm.Snapshot())
	})

	t.Run("zero address", func(t *testing.T) {
		_, err := bm.Update(map[common.Address]*uint256.Int{{}: uint256.NewInt(3)})
		require.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("replaces amount", func(t *testing.T) {
		s, err := bm.Update(map[common.Address]*uint256.Int{accounts[0]: uint256.NewInt(40)})
		require.NoError(t, err)
		require.Equal(t, uint64(40), s.Claims[accounts[0]].Amount.Uint64())
		require.Equal(t, uint64(141), s.Total.Uint64())
		require.NotEqual(t, before.Root, s.Root)
		requireSnapshotConsistent(t, s)
	})
}

func TestRemove(t *testing.T) {
	accounts := testutil.CreateTestAccounts(4)
	bm, err := NewFromAmounts(testutil.Amounts(accounts[:3], 1, 2, 3))
	require.NoError(t, err)
	before := bm.Snapshot()

	t.Run("absent account is a no-op", func(t *testing.T) {
		s, err := bm.Remove([]common.Address{accounts[3]})
		require.NoError(t, err)
		require.Equal(t, before.Root, s.Root)
		require.Len(t, s.Claims, 3)
	})

	t.Run("removes present account", func(t *testing.T) {
		s, err := bm.Remove([]common.Address{accounts[1], accounts[3]})
		require.NoError(t, err)
		require.NotContains(t, s.Claims, accounts[1])
		require.Len(t, s.Claims, 2)
		require.Equal(t, uint64(4), s.Total.Uint64())
		requireSnapshotConsistent(t, s)
	})

	t.Run("removing everything yields the empty distribution", func(t *testing.T) {
		s, err := bm.Remove(accounts)
		require.NoError(t, err)
		require.True(t, s.Empty())
		require.Equal(t, [32]byte{}, s.Root)
		require.Equal(t, 0, bm.Len())
	})
}

func TestAddThenRemoveRestoresRoot(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	accounts := testutil.CreateTestAccounts(9)
	bm, err := NewFromAmounts(testutil.RandomAmounts(r, accounts[:8], 1000))
	require.NoError(t, err)
	original := bm.Snapshot().Root

	_, err = bm.Add(map[common.Address]*uint256.Int{accounts[8]: uint256.NewInt(77)})
	require.NoError(t, err)
	require.NotEqual(t, original, bm.Snapshot().Root)

	s, err := bm.Remove([]common.Address{accounts[8]})
	require.NoError(t, err)
	require.Equal(t, original, s.Root)
}

// TestIndicesFollowAccountOrder shows that inserting an account can shift the
// indices of unrelated accounts.
func TestIndicesFollowAccountOrder(t *testing.T) {
	sorted := testutil.SortAccounts(testutil.CreateTestAccounts(3))
	bm, err := NewFromAmounts(testutil.Amounts(sorted[1:], 10, 20))
	require.NoError(t, err)
	require.Equal(t, uint64(0), bm.Snapshot().Claims[sorted[1]].Index)

	s, err := bm.Add(map[common.Address]*uint256.Int{sorted[0]: uint256.NewInt(5)})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Claims[sorted[0]].Index)
	assert.Equal(t, uint64(1), s.Claims[sorted[1]].Index)
	assert.Equal(t, uint64(2), s.Claims[sorted[2]].Index)
}

func TestReasonFlags(t *testing.T) {
	accounts := testutil.CreateTestAccounts(2)
	bm, err := New([]Entry{
		{Account: accounts[0], Amount: uint256.NewInt(10), Reasons: "socks,user"},
		{Account: accounts[1], Amount: uint256.NewInt(20)},
	})
	require.NoError(t, err)

	s := bm.Snapshot()
	require.Equal(t, map[string]bool{"isSOCKS": true, "isLP": false, "isUser": true}, s.Claims[accounts[0]].Flags)
	require.Nil(t, s.Claims[accounts[1]].Flags)

	// Reasons survive an add
	s, err = bm.Add(map[common.Address]*uint256.Int{accounts[0]: uint256.NewInt(1)})
	require.NoError(t, err)
	require.True(t, s.Claims[accounts[0]].Flags["isSOCKS"])
}

func TestBalancesReturnsCopies(t *testing.T) {
	accounts := testutil.CreateTestAccounts(1)
	bm, err := NewFromAmounts(testutil.Amounts(accounts, 10))
	require.NoError(t, err)

	entries := bm.Balances()
	entries[0].Amount.SetUint64(999)
	require.Equal(t, uint64(10), bm.Balances()[0].Amount.Uint64())
}

func TestIndicesFollowChecksummedOrder(t *testing.T) {
	accounts := testutil.CreateTestAccounts(32)
	// Lower case and upper case hex letters sort differently from raw bytes.
	accounts = append(accounts,
		common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		common.HexToAddress("0x00000000000000000000000000000000000000B0"),
		common.HexToAddress("0x000000000000000000000000000000000000000c"),
	)
	amounts := make([]uint64, len(accounts))
	for i := range amounts {
		amounts[i] = uint64(i + 1)
	}
	bm, err := NewFromAmounts(testutil.Amounts(accounts, amounts...))
	require.NoError(t, err)

	byIndex := make([]common.Address, len(accounts))
	for account, claim := range bm.Snapshot().Claims {
		byIndex[claim.Index] = account
	}
	for i := 1; i < len(byIndex); i++ {
		require.Less(t, byIndex[i-1].Hex(), byIndex[i].Hex(), "index %d", i)
	}
	require.Equal(t, testutil.SortAccounts(accounts), byIndex)
}
