package balancemap

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
)

func TestParseInputAmountMap(t *testing.T) {
	accounts := testutil.CreateTestAccounts(3)
	doc := `{
		"` + accounts[0].Hex() + `": 200,
		"` + strings.ToLower(accounts[1].Hex()) + `": "300",
		"` + accounts[2].Hex() + `": "0xfa"
	}`

	entries, err := ParseInput([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	bm, err := New(entries)
	require.NoError(t, err)
	require.Equal(t, "0x2ee", bm.Snapshot().Total.Hex())
}

func TestParseInputList(t *testing.T) {
	accounts := testutil.CreateTestAccounts(2)
	doc := `[
		{"address": "` + accounts[0].Hex() + `", "earnings": "0x64", "reasons": "socks"},
		{"address": "` + accounts[1].Hex() + `", "earnings": "0x65", "reasons": ""}
	]`

	entries, err := ParseInput([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(100), entries[0].Amount.Uint64())
	require.Equal(t, "socks", entries[0].Reasons)

	bm, err := New(entries)
	require.NoError(t, err)
	require.True(t, bm.Snapshot().Claims[accounts[0]].Flags["isSOCKS"])
}

func TestParseInputDuplicateSpellings(t *testing.T) {
	account := testutil.CreateTestAccounts(1)[0]
	doc := `{"` + account.Hex() + `": 1, "` + strings.ToLower(account.Hex()) + `": 2}`

	entries, err := ParseInput([]byte(doc))
	require.NoError(t, err)

	_, err = New(entries)
	require.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestParseInputErrors(t *testing.T) {
	account := testutil.CreateTestAccounts(1)[0].Hex()

	testCases := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"scalar", `42`},
		{"invalid address", `{"0x1234": 1}`},
		{"negative", `{"` + account + `": -5}`},
		{"fractional", `{"` + account + `": 1.5}`},
		{"bool", `{"` + account + `": true}`},
		{"list bad earnings", `[{"address": "` + account + `", "earnings": "abc"}]`},
		{"list bad address", `[{"address": "nope", "earnings": "0x1"}]`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseInput([]byte(tc.doc))
			require.Error(t, err)
		})
	}
}

func TestParseInputZeroAmountRejectedByNew(t *testing.T) {
	doc := `{"` + common.Address{7}.Hex() + `": 0}`
	entries, err := ParseInput([]byte(doc))
	require.NoError(t, err)

	_, err = New(entries)
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestParseInputChecksum(t *testing.T) {
	const checksummed = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	testCases := []struct {
		name    string
		account string
		wantErr bool
	}{
		{"checksummed", checksummed, false},
		{"lower case", strings.ToLower(checksummed), false},
		{"upper case", "0x" + strings.ToUpper(checksummed[2:]), false},
		{"wrong checksum", "0x70997970c51812dc3A010C7d01b50e0d17dc79C8", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := ParseInput([]byte(`{"` + tc.account + `": 100}`))
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidAddress)
				require.Contains(t, err.Error(), "checksum")
				return
			}
			require.NoError(t, err)
			require.Len(t, entries, 1)
			require.Equal(t, common.HexToAddress(checksummed), entries[0].Account)
		})
	}

	_, err := ParseInput([]byte(`[{"address": "0x70997970c51812dc3A010C7d01b50e0d17dc79C8", "earnings": "0x1"}]`))
	require.ErrorIs(t, err, ErrInvalidAddress)
}
