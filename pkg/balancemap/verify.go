package balancemap

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
)

// Verify re-checks a snapshot: indices are dense, the total matches the sum of
// claim amounts and every proof folds to the root.
func Verify(s *Snapshot) error {
	if s == nil || s.Total == nil {
		return fmt.Errorf("%w: missing total", ErrInvalidSnapshot)
	}

	seen := make([]bool, len(s.Claims))
	sum := new(uint256.Int)
	for account, claim := range s.Claims {
		if claim.Index >= uint64(len(s.Claims)) || seen[claim.Index] {
			return fmt.Errorf("%w: index %d for %s is not dense and unique", ErrInvalidSnapshot, claim.Index, account.Hex())
		}
		seen[claim.Index] = true

		if _, overflow := sum.AddOverflow(sum, claim.Amount); overflow {
			return fmt.Errorf("%w: token total", ErrAmountOverflow)
		}

		leaf := merkle.LeafHash(claim.Index, account, claim.Amount)
		if !merkle.Verify(leaf, claim.Proof, s.Root) {
			return fmt.Errorf("%w: proof for %s does not verify", ErrInvalidSnapshot, account.Hex())
		}
	}

	if !sum.Eq(s.Total) {
		return fmt.Errorf("%w: token total %s does not match claims sum %s", ErrInvalidSnapshot, s.Total.Hex(), sum.Hex())
	}
	return nil
}
