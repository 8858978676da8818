package persistence

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrClosed = errors.New("persistence layer is closed")

// RegistryMeta is the scalar state of a claim registry.
type RegistryMeta struct {
	Token  common.Address `json:"token"`
	Owner  common.Address `json:"owner"`
	Root   common.Hash    `json:"root"`
	Paused bool           `json:"paused"`
}

func (m *RegistryMeta) Clone() *RegistryMeta {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

type EventKind string

const (
	EventClaimed              EventKind = "Claimed"
	EventClaimedAll           EventKind = "ClaimedAll"
	EventMerkleRootUpdated    EventKind = "MerkleRootUpdated"
	EventBlacklisted          EventKind = "Blacklisted"
	EventWhitelisted          EventKind = "Whitelisted"
	EventPaused               EventKind = "Paused"
	EventUnpaused             EventKind = "Unpaused"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventWithdrawn            EventKind = "Withdrawn"
)

// Event is one entry of the registry event log.
//
// Field use by kind:
//   - Claimed, ClaimedAll: Index, Account (claimant), Amount
//   - MerkleRootUpdated: PreviousRoot, Root
//   - Blacklisted, Whitelisted, Paused, Unpaused: Account (subject or caller)
//   - OwnershipTransferred: Account (previous owner), NewOwner
//   - Withdrawn: Account (owner), Amount
type Event struct {
	Seq          uint64         `json:"seq"`
	Kind         EventKind      `json:"kind"`
	Index        uint64         `json:"index"`
	Account      common.Address `json:"account"`
	NewOwner     common.Address `json:"newOwner,omitempty"`
	Amount       string         `json:"amount,omitempty"`
	Root         common.Hash    `json:"root,omitempty"`
	PreviousRoot common.Hash    `json:"previousRoot,omitempty"`
	Timestamp    int64          `json:"timestamp"`
}

func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// StateUpdate is a set of writes applied atomically by IRegistryPersistence.Apply.
type StateUpdate struct {
	// Meta replaces the stored metadata when non-nil.
	Meta *RegistryMeta

	// Claimed sets the claimed amount per account. A zero amount deletes the record.
	Claimed map[common.Address]*uint256.Int

	// Blocked adds (true) or removes (false) accounts from the blocked set.
	Blocked map[common.Address]bool

	// Events are appended to the log. Sequence numbers must already be assigned.
	Events []*Event

	// DeleteEvents removes events by sequence number.
	DeleteEvents []uint64
}

// Empty reports whether applying the update would be a no-op.
func (u *StateUpdate) Empty() bool {
	return u == nil || (u.Meta == nil && len(u.Claimed) == 0 && len(u.Blocked) == 0 &&
		len(u.Events) == 0 && len(u.DeleteEvents) == 0)
}
