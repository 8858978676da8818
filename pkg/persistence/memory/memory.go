package memory

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IRegistryPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	meta    *persistence.RegistryMeta
	claimed map[common.Address]*uint256.Int
	blocked map[common.Address]struct{}
	events  map[uint64]*persistence.Event

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL CLAIM STATE WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set DISTRIBUTOR_PERSISTENCE_TYPE=badger for production")

	return &MemoryPersistence{
		claimed: make(map[common.Address]*uint256.Int),
		blocked: make(map[common.Address]struct{}),
		events:  make(map[uint64]*persistence.Event),
	}
}

func (m *MemoryPersistence) LoadMeta() (*persistence.RegistryMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	return m.meta.Clone(), nil
}

func (m *MemoryPersistence) LoadClaimed(account common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	if amount, ok := m.claimed[account]; ok {
		return amount.Clone(), nil
	}
	return new(uint256.Int), nil
}

func (m *MemoryPersistence) IsBlocked(account common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, persistence.ErrClosed
	}
	_, ok := m.blocked[account]
	return ok, nil
}

func (m *MemoryPersistence) ListBlocked() ([]common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	out := make([]common.Address, 0, len(m.blocked))
	for a := range m.blocked {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out, nil
}

// Apply holds the write lock for the whole update, which makes it atomic.
func (m *MemoryPersistence) Apply(update *persistence.StateUpdate) error {
	if update == nil {
		return fmt.Errorf("cannot apply nil StateUpdate")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	for _, e := range update.Events {
		if e == nil {
			return fmt.Errorf("cannot append nil Event")
		}
	}

	if update.Meta != nil {
		m.meta = update.Meta.Clone()
	}
	for account, amount := range update.Claimed {
		if amount == nil || amount.IsZero() {
			delete(m.claimed, account)
			continue
		}
		m.claimed[account] = amount.Clone()
	}
	for account, blocked := range update.Blocked {
		if blocked {
			m.blocked[account] = struct{}{}
		} else {
			delete(m.blocked, account)
		}
	}
	for _, seq := range update.DeleteEvents {
		delete(m.events, seq)
	}
	for _, e := range update.Events {
		m.events[e.Seq] = e.Clone()
	}
	return nil
}

func (m *MemoryPersistence) ListEvents(after uint64, limit int) ([]*persistence.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	seqs := make([]uint64, 0, len(m.events))
	for seq := range m.events {
		if seq > after {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	if limit > 0 && len(seqs) > limit {
		seqs = seqs[:limit]
	}

	out := make([]*persistence.Event, len(seqs))
	for i, seq := range seqs {
		out[i] = m.events[seq].Clone()
	}
	return out, nil
}

func (m *MemoryPersistence) LastEventSeq() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, persistence.ErrClosed
	}
	var last uint64
	for seq := range m.events {
		if seq > last {
			last = seq
		}
	}
	return last, nil
}

// Close marks the persistence layer as closed
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
