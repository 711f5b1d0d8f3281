package batch

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bodega-labs/bodegad/internal/crypto"
)

func testLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = crypto.TranscriptHash("leaf", fmt.Sprintf("%d", i))
	}
	return leaves
}

func TestMerkleRootEmpty(t *testing.T) {
	if got := MerkleRoot(nil); got != (common.Hash{}) {
		t.Errorf("empty root = %s, want zero hash", got.Hex())
	}
}

func TestMerkleRootSingleLeaf(t *testing.T) {
	leaves := testLeaves(1)
	if got := MerkleRoot(leaves); got != leaves[0] {
		t.Errorf("single-leaf root = %s, want the leaf itself", got.Hex())
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	leaves := testLeaves(7)
	a := MerkleRoot(leaves)
	b := MerkleRoot(leaves)
	if a != b {
		t.Errorf("same leaves produced different roots: %s vs %s", a.Hex(), b.Hex())
	}
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	leaves := testLeaves(4)
	orig := MerkleRoot(leaves)

	swapped := append([]common.Hash(nil), leaves...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	if MerkleRoot(swapped) == orig {
		t.Error("swapping leaves did not change the root")
	}
}

func TestMerkleRootDoesNotMutateInput(t *testing.T) {
	leaves := testLeaves(5)
	before := append([]common.Hash(nil), leaves...)
	MerkleRoot(leaves)
	for i := range leaves {
		if leaves[i] != before[i] {
			t.Fatalf("leaf %d mutated", i)
		}
	}
}

func TestProveAndVerifyAllIndexes(t *testing.T) {
	// Covers both the balanced case and odd levels with promoted nodes.
	for _, n := range []int{1, 2, 3, 4, 5, 8, 11} {
		leaves := testLeaves(n)
		root := MerkleRoot(leaves)
		for i := 0; i < n; i++ {
			prf, ok := Prove(leaves, i)
			if !ok {
				t.Fatalf("n=%d: Prove(%d) failed", n, i)
			}
			if prf.Index != i {
				t.Errorf("n=%d: proof index = %d, want %d", n, prf.Index, i)
			}
			if !Verify(root, leaves[i], prf) {
				t.Errorf("n=%d: proof for leaf %d did not verify", n, i)
			}
		}
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	leaves := testLeaves(6)
	root := MerkleRoot(leaves)

	prf, ok := Prove(leaves, 2)
	if !ok {
		t.Fatal("Prove failed")
	}
	if Verify(root, leaves[3], prf) {
		t.Error("proof verified against the wrong leaf")
	}
	if Verify(root, crypto.TranscriptHash("forged"), prf) {
		t.Error("proof verified against a forged leaf")
	}
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	leaves := testLeaves(6)
	prf, ok := Prove(leaves, 0)
	if !ok {
		t.Fatal("Prove failed")
	}
	if Verify(crypto.TranscriptHash("other"), leaves[0], prf) {
		t.Error("proof verified against the wrong root")
	}
}

func TestProveOutOfRange(t *testing.T) {
	leaves := testLeaves(3)
	if _, ok := Prove(leaves, -1); ok {
		t.Error("Prove(-1) succeeded")
	}
	if _, ok := Prove(leaves, 3); ok {
		t.Error("Prove(len) succeeded")
	}
	if _, ok := Prove(nil, 0); ok {
		t.Error("Prove on empty leaves succeeded")
	}
}
