package balancemap

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Entry is one account's entitlement as fed into the builder.
type Entry struct {
	Account common.Address
	Amount  *uint256.Int

	// Reasons is an optional free-form classification string (e.g. "socks,lp")
	// that is turned into claim flags.
	Reasons string
}

// ClaimRecord is everything an account needs to claim under a snapshot's root.
type ClaimRecord struct {
	Index  uint64
	Amount *uint256.Int
	Proof  [][32]byte
	Flags  map[string]bool
}

// Snapshot is the immutable result of one builder run.
type Snapshot struct {
	// Root is the merkle root, zero for an empty distribution
	Root [32]byte

	// Total is the sum of every claim amount
	Total *uint256.Int

	Claims map[common.Address]*ClaimRecord
}

// Empty reports whether the snapshot has no entries and therefore no valid root.
func (s *Snapshot) Empty() bool {
	return len(s.Claims) == 0
}

// Accounts returns the snapshot's accounts ordered by claim index.
func (s *Snapshot) Accounts() []common.Address {
	out := make([]common.Address, len(s.Claims))
	for account, claim := range s.Claims {
		out[claim.Index] = account
	}
	return out
}
