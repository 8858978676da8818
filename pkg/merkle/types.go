package merkle

// MerkleTree is a binary keccak256 tree over an ordered sequence of leaf hashes.
// Sibling pairs are combined in sorted order, so proofs carry no left/right
// position and the last node of an odd level is promoted unchanged.
type MerkleTree struct {
	// Leaves contains the leaf hashes in index order
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte
}

// MerkleProof represents a proof that a leaf is included in the tree.
// The proof consists of sibling hashes along the path from leaf to root.
type MerkleProof struct {
	// LeafIndex is the position of the leaf in the tree
	LeafIndex int

	// Leaf is the hash of the leaf being proven
	Leaf [32]byte

	// Proof contains the sibling hashes from leaf to root. Levels where the
	// node had no sibling contribute no element.
	Proof [][32]byte
}
