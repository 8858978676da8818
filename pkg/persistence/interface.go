package persistence

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// IRegistryPersistence defines the interface for persisting claim registry state across restarts.
// All implementations must be thread-safe.
//
// The interface supports:
// - Registry metadata (token, owner, root, paused)
// - Per-account claimed amounts and the blocked set
// - An append-only event log
// - Lifecycle management (close, health check)
type IRegistryPersistence interface {
	// LoadMeta returns the registry metadata.
	// Returns nil if none has been saved (first run), error only on storage failure.
	LoadMeta() (*RegistryMeta, error)

	// LoadClaimed returns the amount already paid out to account.
	// Returns zero if the account never claimed.
	LoadClaimed(account common.Address) (*uint256.Int, error)

	// IsBlocked reports whether account is in the blocked set.
	IsBlocked(account common.Address) (bool, error)

	// ListBlocked returns every blocked account in ascending byte order.
	ListBlocked() ([]common.Address, error)

	// Apply writes every part of the update in a single atomic step.
	// Either the whole update is visible afterwards or none of it is.
	Apply(update *StateUpdate) error

	// ListEvents returns up to limit events with a sequence number greater than after,
	// in ascending sequence order. A limit <= 0 returns all of them.
	ListEvents(after uint64, limit int) ([]*Event, error)

	// LastEventSeq returns the highest stored event sequence number, 0 if there are none.
	LastEventSeq() (uint64, error)

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
