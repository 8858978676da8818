package balancemap

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// DistributorInfo is the exported snapshot document handed to claimants. It is
// sufficient to rebuild the whole tree.
type DistributorInfo struct {
	MerkleRoot string               `json:"merkleRoot"`
	TokenTotal string               `json:"tokenTotal"`
	Claims     map[string]ClaimInfo `json:"claims"`
}

// ClaimInfo is the exported form of a ClaimRecord.
type ClaimInfo struct {
	Index  uint64          `json:"index"`
	Amount string          `json:"amount"`
	Proof  []string        `json:"proof"`
	Flags  map[string]bool `json:"flags,omitempty"`
}

// Info converts the snapshot into its export document.
func (s *Snapshot) Info() *DistributorInfo {
	info := &DistributorInfo{
		MerkleRoot: hexutil.Encode(s.Root[:]),
		TokenTotal: s.Total.Hex(),
		Claims:     make(map[string]ClaimInfo, len(s.Claims)),
	}
	for account, claim := range s.Claims {
		proof := make([]string, len(claim.Proof))
		for i, p := range claim.Proof {
			proof[i] = hexutil.Encode(p[:])
		}
		info.Claims[account.Hex()] = ClaimInfo{
			Index:  claim.Index,
			Amount: claim.Amount.Hex(),
			Proof:  proof,
			Flags:  claim.Flags,
		}
	}
	return info
}

// MarshalJSON encodes the snapshot in the export format. Claims are keyed by
// checksummed address and emitted in sorted key order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Info())
}

// ParseSnapshot decodes an exported snapshot document.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var info DistributorInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return info.Snapshot()
}

// Snapshot converts an export document back into a Snapshot.
func (info *DistributorInfo) Snapshot() (*Snapshot, error) {
	root, err := ParseHash(info.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: merkleRoot: %v", ErrInvalidSnapshot, err)
	}
	total, err := ParseAmount(info.TokenTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenTotal: %v", ErrInvalidSnapshot, err)
	}

	snapshot := &Snapshot{
		Root:   root,
		Total:  total,
		Claims: make(map[common.Address]*ClaimRecord, len(info.Claims)),
	}
	for account, claim := range info.Claims {
		addr, err := parseAccount(account)
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(claim.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: amount for %s: %v", ErrInvalidSnapshot, account, err)
		}
		proof := make([][32]byte, len(claim.Proof))
		for i, p := range claim.Proof {
			if proof[i], err = ParseHash(p); err != nil {
				return nil, fmt.Errorf("%w: proof[%d] for %s: %v", ErrInvalidSnapshot, i, account, err)
			}
		}
		if _, dup := snapshot.Claims[addr]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, addr.Hex())
		}
		snapshot.Claims[addr] = &ClaimRecord{
			Index:  claim.Index,
			Amount: amount,
			Proof:  proof,
			Flags:  claim.Flags,
		}
	}
	return snapshot, nil
}

// ParseHash decodes a 0x-prefixed 32-byte hex string.
func ParseHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ParseAmount accepts a 0x-prefixed hex or a plain decimal unsigned integer.
// Leading zeros are tolerated in hex ("0x02ee").
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	if strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		return nil, fmt.Errorf("amount must be an unsigned integer: %q", s)
	}

	b, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	amount, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	return amount, nil
}
