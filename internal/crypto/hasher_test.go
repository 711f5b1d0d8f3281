package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestTranscriptHashDeterministic(t *testing.T) {
	a := TranscriptHash("one", "two")
	b := TranscriptHash("one", "two")
	if a != b {
		t.Error("same inputs hashed differently")
	}
}

func TestTranscriptHashOrderSensitive(t *testing.T) {
	if TranscriptHash("one", "two") == TranscriptHash("two", "one") {
		t.Error("input order does not affect the hash")
	}
}

func TestTranscriptHashLengthPrefixing(t *testing.T) {
	// Without length prefixes these two input lists would concatenate to
	// the same byte stream.
	if TranscriptHash("ab", "c") == TranscriptHash("a", "bc") {
		t.Error("boundary-shifted inputs collided")
	}
	if TranscriptHash("abc") == TranscriptHash("ab", "c") {
		t.Error("split inputs collided with the joined form")
	}
	if TranscriptHash("x", "") == TranscriptHash("x") {
		t.Error("trailing empty input did not change the hash")
	}
}

func TestTranscriptHashEmpty(t *testing.T) {
	if TranscriptHash() == (common.Hash{}) {
		t.Error("empty transcript hashed to zero")
	}
}

func TestNodeHashDomainSeparation(t *testing.T) {
	left := TranscriptHash("left")
	right := TranscriptHash("right")

	parent := NodeHash(left, right)
	if parent == NodeHash(right, left) {
		t.Error("node hash ignores child order")
	}
	if parent == left || parent == right {
		t.Error("node hash equals a child")
	}
	// An interior node must not be forgeable as a transcript leaf.
	if parent == TranscriptHash(string(left.Bytes()), string(right.Bytes())) {
		t.Error("node and leaf domains overlap")
	}
}
