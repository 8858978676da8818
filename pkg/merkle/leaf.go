package merkle

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/wealdtech/go-merkletree/v2/keccak256"
)

// LeafSize is the width of an encoded leaf: uint256 index, 20-byte account, uint256 amount.
const LeafSize = 32 + common.AddressLength + 32

var hasher = keccak256.New()

// EncodeLeaf packs (index, account, amount) into fixed-width big-endian fields,
// byte-identical to Solidity's abi.encodePacked(uint256, address, uint256).
func EncodeLeaf(index uint64, account common.Address, amount *uint256.Int) []byte {
	buf := make([]byte, LeafSize)
	binary.BigEndian.PutUint64(buf[24:32], index)
	copy(buf[32:32+common.AddressLength], account.Bytes())
	if amount != nil {
		amt := amount.Bytes32()
		copy(buf[32+common.AddressLength:], amt[:])
	}
	return buf
}

// HashLeaf returns the keccak256 digest of an encoded leaf.
func HashLeaf(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], hasher.Hash(data))
	return out
}

// LeafHash encodes and hashes a single entitlement.
func LeafHash(index uint64, account common.Address, amount *uint256.Int) [32]byte {
	return HashLeaf(EncodeLeaf(index, account, amount))
}
