package testutil

import (
	"crypto/ecdsa"
	"fmt"
	"math/rand"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Wallet is a deterministic test signer.
type Wallet struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// CreateTestWallets derives n wallets from fixed seeds. The same n always
// yields the same keys, so indices and roots are reproducible across runs.
func CreateTestWallets(n int) []*Wallet {
	wallets := make([]*Wallet, n)
	for i := 0; i < n; i++ {
		seed := crypto.Keccak256([]byte(fmt.Sprintf("merkle-distributor-test-wallet-%d", i)))
		key, err := crypto.ToECDSA(seed)
		if err != nil {
			panic(fmt.Sprintf("invalid test key seed %d: %v", i, err))
		}
		wallets[i] = &Wallet{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
	}
	return wallets
}

// CreateTestAccounts returns n distinct non-zero accounts.
func CreateTestAccounts(n int) []common.Address {
	wallets := CreateTestWallets(n)
	accounts := make([]common.Address, n)
	for i, w := range wallets {
		accounts[i] = w.Address
	}
	return accounts
}

// SortAccounts returns a copy of accounts in canonical (ascending checksummed
// hex) order, which is the order snapshot indices are assigned in.
func SortAccounts(accounts []common.Address) []common.Address {
	sorted := make([]common.Address, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Hex() < sorted[j].Hex()
	})
	return sorted
}

// RandomAmounts assigns each account a random entitlement in [1, maxAmount].
func RandomAmounts(r *rand.Rand, accounts []common.Address, maxAmount uint64) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(accounts))
	for _, account := range accounts {
		out[account] = uint256.NewInt(uint64(r.Int63n(int64(maxAmount))) + 1)
	}
	return out
}

// Amounts builds an account -> amount map from parallel slices.
func Amounts(accounts []common.Address, amounts ...uint64) map[common.Address]*uint256.Int {
	if len(accounts) != len(amounts) {
		panic("accounts and amounts length mismatch")
	}
	out := make(map[common.Address]*uint256.Int, len(accounts))
	for i, account := range accounts {
		out[account] = uint256.NewInt(amounts[i])
	}
	return out
}
