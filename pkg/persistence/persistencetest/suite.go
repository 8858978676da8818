// Package persistencetest holds the behaviour every IRegistryPersistence backend must share.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) persistence.IRegistryPersistence

var (
	accountA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	accountB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	accountC = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

// Run executes the shared backend suite against newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("EmptyState", func(t *testing.T) { testEmptyState(t, newBackend(t)) })
	t.Run("Meta", func(t *testing.T) { testMeta(t, newBackend(t)) })
	t.Run("Claimed", func(t *testing.T) { testClaimed(t, newBackend(t)) })
	t.Run("Blocked", func(t *testing.T) { testBlocked(t, newBackend(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newBackend(t)) })
	t.Run("CombinedUpdate", func(t *testing.T) { testCombinedUpdate(t, newBackend(t)) })
	t.Run("ConcurrentApply", func(t *testing.T) { testConcurrentApply(t, newBackend(t)) })
	t.Run("Close", func(t *testing.T) { testClose(t, newBackend(t)) })
}

func testEmptyState(t *testing.T, p persistence.IRegistryPersistence) {
	defer func() { _ = p.Close() }()

	require.NoError(t, p.HealthCheck())

	meta, err := p.LoadMeta()
	require.NoError(t, err)
	assert.Nil(t, meta)

	claimed, err := p.LoadClaimed(accountA)
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())

	blocked, err := p.IsBlocked(accountA)
	require.NoError(t, err)
	assert.False(t, blocked)

	list, err := p.ListBlocked()
	require.NoError(t, err)
	assert.Empty(t, list)

	events, err := p.ListEvents(0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	last, err := p.LastEventSeq()
	require.NoError(t, err)
	assert.Zero(t, last)

	require.Error(t, p.Apply(nil))
}

func testMeta(t *testing.T, p persistence.IRegistryPersistence) {
	defer func() { _ = p.Close() }()

	meta := &persistence.RegistryMeta{
		Token: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Owner: accountA,
		Root:  common.HexToHash("0x01"),
	}
	require.NoError(t, p.Apply(&persistence.StateUpdate{Meta: meta}))

	loaded, err := p.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, meta, loaded)

	// Mutating the loaded copy must not affect the store.
	loaded.Paused = true
	again, err := p.LoadMeta()
	require.NoError(t, err)
	assert.False(t, again.Paused)

	updated := meta.Clone()
	updated.Paused = true
	updated.Root = common.HexToHash("0x02")
	require.NoError(t, p.Apply(&persistence.StateUpdate{Meta: updated}))

	loaded, err = p.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, updated, loaded)
}

func testClaimed(t *testing.T, p persistence.IRegistryPersistence) {
	defer func() { _ = p.Close() }()

	big := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	require.NoError(t, p.Apply(&persistence.StateUpdate{
		Claimed: map[common.Address]*uint256.Int{
			accountA: uint256.NewInt(50),
			accountB: big,
		},
	}))

	a, err := p.LoadClaimed(accountA)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), a.Uint64())

	b, err := p.LoadClaimed(accountB)
	require.NoError(t, err)
	assert.Equal(t, big, b)

	require.NoError(t, p.Apply(&persistence.StateUpdate{
		Claimed: map[common.Address]*uint256.Int{
			accountA: uint256.NewInt(100),
			accountB: new(uint256.Int),
		},
	}))

	a, err = p.LoadClaimed(accountA)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), a.Uint64())

	b, err = p.LoadClaimed(accountB)
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

func testBlocked(t *testing.T, p persistence.IRegistryPersistence) {
	defer func() { _ = p.Close() }()

	require.NoError(t, p.Apply(&persistence.StateUpdate{
		Blocked: map[common.Address]bool{accountA: true, accountB: true, accountC: true},
	}))

	list, err := p.ListBlocked()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{accountC, accountA, accountB}, list)

	require.NoError(t, p.Apply(&persistence.StateUpdate{
		Blocked: map[common.Address]bool{accountA: false},
	}))

	blocked, err := p.IsBlocked(accountA)
	require.NoError(t, err)
	assert.False(t, blocked)

	blocked, err = p.IsBlocked(accountB)
	require.NoError(t, err)
	assert.True(t, blocked)

	// Removing an account that is not blocked is a no-op.
	require.NoError(t, p.Apply(&persistence.StateUpdate{
		Blocked: map[common.Address]bool{accountA: false},
	}))
	list, err = p.ListBlocked()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{accountC, accountB}, list)
}

func testEvents(t *testing.T, p persistence.IRegistryPersistence) {
	defer func() { _ = p.Close() }()

	var events []*persistence.Event
	for i := uint64(1); i <= 300; i++ {
		events = append(events, &persistence.Event{
			Seq:       i,
			Kind:      persistence.EventClaimed,
			Index:     i % 7,
			Account:   accountA,
			Amount:    uint256.NewInt(i).Hex(),
			Timestamp: 1700000000 + int64(i),
		})
	}
	require.NoError(t, p.Apply(&persistence.StateUpdate{Events: events}))

	last, err := p.LastEventSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), last)

	all, err := p.ListEvents(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 300)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
	assert.Equal(t, events[41], all[41])

	page, err := p.ListEvents(255, 10)
	require.NoError(t, err)
	require.Len(t, page, 10)
	assert.Equal(t, uint64(256), page[0].Seq)
	assert.Equal(t, uint64(265), page[9].Seq)

	tail, err := p.ListEvents(298, 10)
	require.NoError(t, err)
	require.Len(t, tail, 2)

	require.NoError(t, p.Apply(&persistence.StateUpdate{DeleteEvents: []uint64{300, 299}}))
	last, err = p.LastEventSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(298), last)

	tail, err = p.ListEvents(297, 0)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(298), tail[0].Seq)
}

func testCombinedUpdate(t *testing.T, p persistence.IRegistryPersistence) {
	defer func() { _ = p.Close() }()

	meta := &persistence.RegistryMeta{Owner: accountA, Root: common.HexToHash("0xaa")}
	update := &persistence.StateUpdate{
		Meta:    meta,
		Claimed: map[common.Address]*uint256.Int{accountB: uint256.NewInt(5)},
		Blocked: map[common.Address]bool{accountC: true},
		Events: []*persistence.Event{
			{Seq: 1, Kind: persistence.EventClaimed, Account: accountB, Amount: "0x5"},
		},
	}
	require.NoError(t, p.Apply(update))

	loadedMeta, err := p.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, meta, loadedMeta)

	claimed, err := p.LoadClaimed(accountB)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), claimed.Uint64())

	blocked, err := p.IsBlocked(accountC)
	require.NoError(t, err)
	assert.True(t, blocked)

	// Compensating update restores the previous values.
	require.NoError(t, p.Apply(&persistence.StateUpdate{
		Claimed:      map[common.Address]*uint256.Int{accountB: new(uint256.Int)},
		DeleteEvents: []uint64{1},
	}))
	claimed, err = p.LoadClaimed(accountB)
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())

	events, err := p.ListEvents(0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testConcurrentApply(t *testing.T, p persistence.IRegistryPersistence) {
	defer func() { _ = p.Close() }()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account := common.BigToAddress(uint256.NewInt(uint64(i + 1)).ToBig())
			err := p.Apply(&persistence.StateUpdate{
				Claimed: map[common.Address]*uint256.Int{account: uint256.NewInt(uint64(i + 1))},
				Events:  []*persistence.Event{{Seq: uint64(i + 1), Kind: persistence.EventClaimed, Account: account}},
			})
			if err != nil {
				errs <- fmt.Errorf("worker %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < workers; i++ {
		account := common.BigToAddress(uint256.NewInt(uint64(i + 1)).ToBig())
		claimed, err := p.LoadClaimed(account)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), claimed.Uint64())
	}

	events, err := p.ListEvents(0, 0)
	require.NoError(t, err)
	assert.Len(t, events, workers)
}

func testClose(t *testing.T, p persistence.IRegistryPersistence) {
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "Close must be idempotent")

	require.Error(t, p.HealthCheck())
	_, err := p.LoadMeta()
	require.ErrorIs(t, err, persistence.ErrClosed)
	_, err = p.LoadClaimed(accountA)
	require.ErrorIs(t, err, persistence.ErrClosed)
	_, err = p.IsBlocked(accountA)
	require.ErrorIs(t, err, persistence.ErrClosed)
	_, err = p.ListBlocked()
	require.ErrorIs(t, err, persistence.ErrClosed)
	_, err = p.ListEvents(0, 0)
	require.ErrorIs(t, err, persistence.ErrClosed)
	_, err = p.LastEventSeq()
	require.ErrorIs(t, err, persistence.ErrClosed)
	require.ErrorIs(t, p.Apply(&persistence.StateUpdate{}), persistence.ErrClosed)
}
