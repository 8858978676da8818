package merkle

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrEmptyTree is returned when a tree is requested over zero leaves. An empty
// distribution has no root and no claim against it can verify.
var ErrEmptyTree = errors.New("cannot build merkle tree from empty leaf list")

// BuildMerkleTree creates a binary merkle tree from leaf hashes in the order given.
//
// Adjacent pairs are combined with hashPair, which hashes the numerically smaller
// digest first. If there's an odd number of nodes at any level, the last node is
// carried to the next level unchanged.
func BuildMerkleTree(leaves [][32]byte) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	level0 := make([][32]byte, len(leaves))
	copy(level0, leaves)

	levels := make([][][32]byte, 0)
	levels = append(levels, level0)

	currentLevel := level0
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 == len(currentLevel) {
				nextLevel = append(nextLevel, currentLevel[i])
				continue
			}
			nextLevel = append(nextLevel, hashPair(currentLevel[i], currentLevel[i+1]))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		Leaves: level0,
		Root:   currentLevel[0],
		levels: levels,
	}, nil
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// The proof consists of sibling hashes along the path from leaf to root.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= len(mt.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(mt.Leaves))
	}

	proof := make([][32]byte, 0, len(mt.levels))
	index := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		siblingIndex := index ^ 1
		// Promoted node: nothing to pair with at this level
		if siblingIndex < len(currentLevel) {
			proof = append(proof, currentLevel[siblingIndex])
		}

		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.Leaves[leafIndex],
		Proof:     proof,
	}, nil
}

// VerifyProof verifies that a leaf is included in the merkle tree with the given root.
func VerifyProof(proof *MerkleProof, root [32]byte) bool {
	if proof == nil {
		return false
	}
	return Verify(proof.Leaf, proof.Proof, root)
}

// Verify folds the proof from the leaf upward with the sorted-pair rule and
// compares the result against root.
func Verify(leaf [32]byte, proof [][32]byte, root [32]byte) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

// hashPair computes keccak256(min(a, b) || max(a, b)) with digests compared as
// unsigned big-endian integers.
func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}

	var out [32]byte
	copy(out[:], hasher.Hash(a[:], b[:]))
	return out
}
