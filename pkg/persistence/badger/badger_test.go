package badger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/persistencetest"
)

func newTestLogger(t *testing.T) *zap.Logger {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	return l
}

func TestBadgerPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.IRegistryPersistence {
		bp, err := NewBadgerPersistence(t.TempDir(), newTestLogger(t))
		require.NoError(t, err)
		return bp
	})
}

func TestBadgerPersistence_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	account := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	meta := &persistence.RegistryMeta{Owner: account, Root: common.HexToHash("0xbeef")}

	bp, err := NewBadgerPersistence(dir, newTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, bp.Apply(&persistence.StateUpdate{
		Meta:    meta,
		Claimed: map[common.Address]*uint256.Int{account: uint256.NewInt(42)},
		Blocked: map[common.Address]bool{account: true},
		Events:  []*persistence.Event{{Seq: 9, Kind: persistence.EventBlacklisted, Account: account}},
	}))
	require.NoError(t, bp.Close())

	reopened, err := NewBadgerPersistence(dir, newTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, meta, loaded)

	claimed, err := reopened.LoadClaimed(account)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claimed.Uint64())

	blocked, err := reopened.IsBlocked(account)
	require.NoError(t, err)
	assert.True(t, blocked)

	last, err := reopened.LastEventSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), last)
}

func TestBadgerPersistence_ListEventsAfterMax(t *testing.T) {
	bp, err := NewBadgerPersistence(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	require.NoError(t, bp.Apply(&persistence.StateUpdate{
		Events: []*persistence.Event{{Seq: 1, Kind: persistence.EventPaused}},
	}))
	events, err := bp.ListEvents(^uint64(0), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}
