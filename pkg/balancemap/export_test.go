package balancemap

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
)

func TestExportFormat(t *testing.T) {
	accounts := testutil.CreateTestAccounts(3)
	bm, err := NewFromAmounts(testutil.Amounts(accounts, 200, 300, 250))
	require.NoError(t, err)

	data, err := json.Marshal(bm.Snapshot())
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	require.ElementsMatch(t, []string{"merkleRoot", "tokenTotal", "claims"}, keys(doc))

	var info DistributorInfo
	require.NoError(t, json.Unmarshal(data, &info))
	require.Equal(t, "0x2ee", info.TokenTotal)
	require.Len(t, info.MerkleRoot, 66)

	for _, account := range accounts {
		claim, ok := info.Claims[account.Hex()]
		require.True(t, ok, "claims must be keyed by checksummed address")
		require.True(t, strings.HasPrefix(claim.Amount, "0x"))
		for _, p := range claim.Proof {
			require.Len(t, p, 66)
		}
	}
	require.Equal(t, "0xc8", info.Claims[accounts[0].Hex()].Amount)
	require.Equal(t, "0x12c", info.Claims[accounts[1].Hex()].Amount)
	require.Equal(t, "0xfa", info.Claims[accounts[2].Hex()].Amount)
	require.NotContains(t, string(data), "flags")
}

func TestParseSnapshot(t *testing.T) {
	accounts := testutil.CreateTestAccounts(5)
	bm, err := New([]Entry{
		{Account: accounts[0], Amount: uint256.NewInt(1), Reasons: "lp"},
		{Account: accounts[1], Amount: uint256.NewInt(2)},
		{Account: accounts[2], Amount: uint256.NewInt(3)},
		{Account: accounts[3], Amount: uint256.NewInt(4)},
		{Account: accounts[4], Amount: uint256.NewInt(5)},
	})
	require.NoError(t, err)

	data, err := json.Marshal(bm.Snapshot())
	require.NoError(t, err)

	parsed, err := ParseSnapshot(data)
	require.NoError(t, err)
	require.NoError(t, Verify(parsed))
	require.Equal(t, bm.Snapshot().Root, parsed.Root)
	require.True(t, parsed.Claims[accounts[0]].Flags["isLP"])
}

func TestParseSnapshotRejectsMalformed(t *testing.T) {
	account := testutil.CreateTestAccounts(1)[0].Hex()
	root := hexutil.Encode(make([]byte, 32))

	testCases := []struct {
		name string
		doc  string
	}{
		{"bad json", `{"merkleRoot":`},
		{"short root", `{"merkleRoot":"0x1234","tokenTotal":"0x1","claims":{}}`},
		{"bad total", `{"merkleRoot":"` + root + `","tokenTotal":"zz","claims":{}}`},
		{"bad address", `{"merkleRoot":"` + root + `","tokenTotal":"0x1","claims":{"0x12":{"index":0,"amount":"0x1","proof":[]}}}`},
		{"bad proof", `{"merkleRoot":"` + root + `","tokenTotal":"0x1","claims":{"` + account + `":{"index":0,"amount":"0x1","proof":["0xabc"]}}}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSnapshot([]byte(tc.doc))
			require.Error(t, err)
		})
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	accounts := testutil.CreateTestAccounts(4)
	newSnapshot := func() *Snapshot {
		bm, err := NewFromAmounts(testutil.Amounts(accounts, 10, 20, 30, 40))
		require.NoError(t, err)
		return bm.Snapshot()
	}

	t.Run("total", func(t *testing.T) {
		s := newSnapshot()
		s.Total = uint256.NewInt(99)
		require.ErrorIs(t, Verify(s), ErrInvalidSnapshot)
	})

	t.Run("amount", func(t *testing.T) {
		s := newSnapshot()
		s.Claims[accounts[0]].Amount = uint256.NewInt(11)
		s.Total = uint256.NewInt(101)
		require.ErrorIs(t, Verify(s), ErrInvalidSnapshot)
	})

	t.Run("index", func(t *testing.T) {
		s := newSnapshot()
		s.Claims[accounts[0]].Index = 7
		require.ErrorIs(t, Verify(s), ErrInvalidSnapshot)
	})

	t.Run("foreign account", func(t *testing.T) {
		s := newSnapshot()
		claim := s.Claims[accounts[0]]
		delete(s.Claims, accounts[0])
		s.Claims[common.Address{0xee}] = claim
		require.ErrorIs(t, Verify(s), ErrInvalidSnapshot)
	})
}

func TestParseAmount(t *testing.T) {
	testCases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"750", 750, false},
		{"0x2ee", 750, false},
		{"0x02ee", 750, false},
		{" 12 ", 12, false},
		{"", 0, true},
		{"-1", 0, true},
		{"0x-1", 0, true},
		{"1.5", 0, true},
		{"0x" + strings.Repeat("f", 65), 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Uint64())
		})
	}
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
