// Package batch implements the position batching layer: per-market buffers
// that accumulate position commitments and flush them into fixed-window
// batches, each summarized by a merkle root over the committed leaves plus a
// Pedersen total-value accumulator.
package batch

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/bodega-labs/bodegad/internal/crypto"
)

// MerkleRoot computes the root over commitments in insertion order. An odd
// level is closed by promoting the unpaired node. An empty leaf set hashes
// to the zero digest; the batcher never flushes an empty batch, so that
// value only appears in direct misuse.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, crypto.NodeHash(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// MerkleProof is an inclusion proof for one leaf. Index is the leaf's
// position in insertion order, which is the externally recoverable index
// recorded on the batch entry.
type MerkleProof struct {
	Index    int
	Siblings []common.Hash
	// Lefts[i] is true when Siblings[i] sits to the left of the running
	// digest at level i.
	Lefts []bool
}

// Prove builds the inclusion proof for the leaf at index. Returns false when
// the index is out of range.
func Prove(leaves []common.Hash, index int) (MerkleProof, bool) {
	if index < 0 || index >= len(leaves) {
		return MerkleProof{}, false
	}

	prf := MerkleProof{Index: index}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	pos := index

	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				if i == pos || i+1 == pos {
					if i == pos {
						prf.Siblings = append(prf.Siblings, level[i+1])
						prf.Lefts = append(prf.Lefts, false)
					} else {
						prf.Siblings = append(prf.Siblings, level[i])
						prf.Lefts = append(prf.Lefts, true)
					}
				}
				next = append(next, crypto.NodeHash(level[i], level[i+1]))
			} else {
				// Unpaired node is promoted; no sibling at this level.
				next = append(next, level[i])
			}
		}
		pos /= 2
		level = next
	}
	return prf, true
}

// Verify checks an inclusion proof against a root.
func Verify(root, leaf common.Hash, prf MerkleProof) bool {
	digest := leaf
	for i, sib := range prf.Siblings {
		if prf.Lefts[i] {
			digest = crypto.NodeHash(sib, digest)
		} else {
			digest = crypto.NodeHash(digest, sib)
		}
	}
	return digest == root
}
