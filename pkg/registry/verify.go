package registry

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// The registry verifies proofs with its own hashing so that a change to the
// off-line builder cannot silently change what the registry accepts.

func keccak(parts ...[]byte) (out [32]byte) {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	h.Sum(out[:0])
	return out
}

// claimLeaf is keccak256(abi.encodePacked(uint256 index, address account, uint256 amount)).
func claimLeaf(index uint64, account common.Address, amount *uint256.Int) [32]byte {
	var idx [32]byte
	binary.BigEndian.PutUint64(idx[24:], index)
	amt := amount.Bytes32()
	return keccak(idx[:], account[:], amt[:])
}

// verifyProof folds proof into leaf, hashing each pair in ascending byte order.
func verifyProof(proof [][32]byte, root, leaf [32]byte) bool {
	computed := leaf
	for _, p := range proof {
		if bytes.Compare(computed[:], p[:]) <= 0 {
			computed = keccak(computed[:], p[:])
		} else {
			computed = keccak(p[:], computed[:])
		}
	}
	return computed == root
}
