package balancemap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
)

// reasonFlags maps a reason tag to the claim flag it sets.
var reasonFlags = []struct {
	tag  string
	flag string
}{
	{"socks", "isSOCKS"},
	{"lp", "isLP"},
	{"user", "isUser"},
}

type balance struct {
	amount  *uint256.Int
	reasons string
}

// BalanceMap owns a mutable account -> entitlement mapping and the snapshot
// derived from it. Every mutator is atomic: on error the map and the current
// snapshot are left exactly as they were.
//
// A BalanceMap is not safe for concurrent use; callers serialize mutations.
type BalanceMap struct {
	balances map[common.Address]*balance
	snapshot *Snapshot
}

// New validates the entries and builds the first snapshot.
func New(entries []Entry) (*BalanceMap, error) {
	balances := make(map[common.Address]*balance, len(entries))
	for _, e := range entries {
		if err := validate(e.Account, e.Amount); err != nil {
			return nil, err
		}
		if _, exists := balances[e.Account]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, e.Account.Hex())
		}
		balances[e.Account] = &balance{amount: e.Amount.Clone(), reasons: e.Reasons}
	}

	snapshot, err := buildSnapshot(balances)
	if err != nil {
		return nil, err
	}
	return &BalanceMap{balances: balances, snapshot: snapshot}, nil
}

// NewFromAmounts is New for the plain account -> amount input format.
func NewFromAmounts(amounts map[common.Address]*uint256.Int) (*BalanceMap, error) {
	entries := make([]Entry, 0, len(amounts))
	for _, account := range sortedKeys(amounts) {
		entries = append(entries, Entry{Account: account, Amount: amounts[account]})
	}
	return New(entries)
}

// Snapshot returns the current snapshot.
func (bm *BalanceMap) Snapshot() *Snapshot {
	return bm.snapshot
}

// Len returns the number of accounts in the map.
func (bm *BalanceMap) Len() int {
	return len(bm.balances)
}

// Balances returns the current entries in canonical account order.
func (bm *BalanceMap) Balances() []Entry {
	accounts := sortedAccounts(bm.balances)
	out := make([]Entry, len(accounts))
	for i, account := range accounts {
		b := bm.balances[account]
		out[i] = Entry{Account: account, Amount: b.amount.Clone(), Reasons: b.reasons}
	}
	return out
}

// Add increments existing accounts by their delta and inserts new ones.
func (bm *BalanceMap) Add(deltas map[common.Address]*uint256.Int) (*Snapshot, error) {
	next := bm.clone()
	for _, account := range sortedKeys(deltas) {
		delta := deltas[account]
		if err := validate(account, delta); err != nil {
			return nil, err
		}
		if existing, ok := next[account]; ok {
			sum, overflow := new(uint256.Int).AddOverflow(existing.amount, delta)
			if overflow {
				return nil, fmt.Errorf("%w: %s", ErrAmountOverflow, account.Hex())
			}
			existing.amount = sum
			continue
		}
		next[account] = &balance{amount: delta.Clone()}
	}
	return bm.commit(next)
}

// Update replaces the amount of existing accounts.
func (bm *BalanceMap) Update(values map[common.Address]*uint256.Int) (*Snapshot, error) {
	next := bm.clone()
	for _, account := range sortedKeys(values) {
		value := values[account]
		if err := validate(account, value); err != nil {
			return nil, err
		}
		existing, ok := next[account]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
		}
		existing.amount = value.Clone()
	}
	return bm.commit(next)
}

// Remove deletes the given accounts. Accounts not in the map are skipped.
func (bm *BalanceMap) Remove(accounts []common.Address) (*Snapshot, error) {
	next := bm.clone()
	for _, account := range accounts {
		delete(next, account)
	}
	return bm.commit(next)
}

func (bm *BalanceMap) commit(next map[common.Address]*balance) (*Snapshot, error) {
	snapshot, err := buildSnapshot(next)
	if err != nil {
		return nil, err
	}
	bm.balances = next
	bm.snapshot = snapshot
	return snapshot, nil
}

func (bm *BalanceMap) clone() map[common.Address]*balance {
	out := make(map[common.Address]*balance, len(bm.balances))
	for account, b := range bm.balances {
		out[account] = &balance{amount: b.amount.Clone(), reasons: b.reasons}
	}
	return out
}

func validate(account common.Address, amount *uint256.Int) error {
	if account == (common.Address{}) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, account.Hex())
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w for account: %s", ErrZeroAmount, account.Hex())
	}
	return nil
}

// buildSnapshot assigns dense indices in ascending account order and derives
// the tree, proofs and total.
func buildSnapshot(balances map[common.Address]*balance) (*Snapshot, error) {
	accounts := sortedAccounts(balances)

	total := new(uint256.Int)
	leaves := make([][32]byte, len(accounts))
	for i, account := range accounts {
		amount := balances[account].amount
		if _, overflow := total.AddOverflow(total, amount); overflow {
			return nil, fmt.Errorf("%w: token total", ErrAmountOverflow)
		}
		leaves[i] = merkle.LeafHash(uint64(i), account, amount)
	}

	snapshot := &Snapshot{
		Total:  total,
		Claims: make(map[common.Address]*ClaimRecord, len(accounts)),
	}
	if len(accounts) == 0 {
		return snapshot, nil
	}

	tree, err := merkle.BuildMerkleTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}
	snapshot.Root = tree.Root

	for i, account := range accounts {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			return nil, fmt.Errorf("failed to generate proof for %s: %w", account.Hex(), err)
		}
		b := balances[account]
		snapshot.Claims[account] = &ClaimRecord{
			Index:  uint64(i),
			Amount: b.amount.Clone(),
			Proof:  proof.Proof,
			Flags:  flagsFor(b.reasons),
		}
	}
	return snapshot, nil
}

func flagsFor(reasons string) map[string]bool {
	if reasons == "" {
		return nil
	}
	flags := make(map[string]bool, len(reasonFlags))
	for _, rf := range reasonFlags {
		flags[rf.flag] = strings.Contains(reasons, rf.tag)
	}
	return flags
}

func sortedAccounts(balances map[common.Address]*balance) []common.Address {
	accounts := make([]common.Address, 0, len(balances))
	for account := range balances {
		accounts = append(accounts, account)
	}
	sortAddresses(accounts)
	return accounts
}

func sortedKeys(m map[common.Address]*uint256.Int) []common.Address {
	accounts := make([]common.Address, 0, len(m))
	for account := range m {
		accounts = append(accounts, account)
	}
	sortAddresses(accounts)
	return accounts
}

// sortAddresses orders accounts by their EIP-55 checksummed hex string, so
// snapshots index accounts the same way the JavaScript distribution tooling does.
func sortAddresses(accounts []common.Address) {
	keys := make(map[common.Address]string, len(accounts))
	for _, account := range accounts {
		keys[account] = account.Hex()
	}
	sort.Slice(accounts, func(i, j int) bool {
		return keys[accounts[i]] < keys[accounts[j]]
	})
}
