package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/balancemap"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/token"
)

var (
	registryAddress = common.HexToAddress("0x00000000000000000000000000000000000d1570")
	tokenAddress    = common.HexToAddress("0x0000000000000000000000000000000000070c3e")
	ownerAddress    = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	outsider        = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

// harness is a registry funded from the owner's treasury over an in-memory ledger.
type harness struct {
	t        *testing.T
	ctx      context.Context
	accounts []common.Address
	ledger   *token.Ledger
	store    persistence.IRegistryPersistence
	bm       *balancemap.BalanceMap
	registry *ClaimRegistry
}

// newHarness builds a balance map with amounts[i] for the i-th account in
// canonical order, so accounts[i] has claim index i.
func newHarness(t *testing.T, funding uint64, amounts ...uint64) *harness {
	t.Helper()

	accounts := testutil.SortAccounts(testutil.CreateTestAccounts(len(amounts)))
	bm, err := balancemap.NewFromAmounts(testutil.Amounts(accounts, amounts...))
	require.NoError(t, err)

	ledger := token.NewLedger(ownerAddress, uint256.NewInt(1_000_000), zap.NewNop())
	require.NoError(t, ledger.TransferFrom(ownerAddress, registryAddress, uint256.NewInt(funding)))

	store := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = store.Close() })

	registry, err := New(&Config{
		Address:     registryAddress,
		Token:       tokenAddress,
		Owner:       ownerAddress,
		InitialRoot: bm.Snapshot().Root,
	}, ledger.Account(registryAddress), store, zap.NewNop())
	require.NoError(t, err)

	return &harness{
		t:        t,
		ctx:      context.Background(),
		accounts: accounts,
		ledger:   ledger,
		store:    store,
		bm:       bm,
		registry: registry,
	}
}

func (h *harness) record(account common.Address) *balancemap.ClaimRecord {
	h.t.Helper()
	rec, ok := h.bm.Snapshot().Claims[account]
	require.True(h.t, ok, "account %s not in snapshot", account.Hex())
	return rec
}

func (h *harness) claim(account common.Address, amount uint64) error {
	rec := h.record(account)
	return h.registry.Claim(h.ctx, account, rec.Index, uint256.NewInt(amount), rec.Amount, rec.Proof)
}

func (h *harness) claimAll(account common.Address) error {
	rec := h.record(account)
	return h.registry.ClaimAll(h.ctx, account, rec.Index, rec.Amount, rec.Proof)
}

func (h *harness) claimable(account common.Address) (*uint256.Int, error) {
	rec := h.record(account)
	return h.registry.GetClaimableAmt(rec.Index, account, rec.Amount, rec.Proof)
}

func (h *harness) claimed(account common.Address) uint64 {
	h.t.Helper()
	amount, err := h.registry.ClaimedAmount(account)
	require.NoError(h.t, err)
	return amount.Uint64()
}

func (h *harness) balance(account common.Address) uint64 {
	return h.ledger.Balance(account).Uint64()
}

// pushRoot publishes the balance map's current root as the owner.
func (h *harness) pushRoot() {
	h.t.Helper()
	require.NoError(h.t, h.registry.UpdateMerkleRoot(h.ctx, ownerAddress, h.bm.Snapshot().Root))
}

func (h *harness) events() []*Event {
	h.t.Helper()
	events, err := h.registry.Events(0, 0)
	require.NoError(h.t, err)
	return events
}

func (h *harness) lastEvent() *Event {
	h.t.Helper()
	events := h.events()
	require.NotEmpty(h.t, events)
	return events[len(events)-1]
}
