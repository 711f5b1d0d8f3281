// Package crypto provides the fixed transcript hash shared by every
// component that computes or verifies a commitment, nullifier, or merkle
// node, plus at-rest encryption for the local position store.
package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// HashVersion is the domain-separation tag mixed into every transcript
// hash. Bumping it invalidates all previously published commitments, so it
// only changes together with the circuit set.
const HashVersion = "bodega/hash/v1"

// TranscriptHash hashes an ordered list of string inputs into a single
// digest. Each input is length-prefixed so no two distinct input lists can
// produce the same byte stream.
func TranscriptHash(inputs ...string) common.Hash {
	buf := make([]byte, 0, 64)
	buf = appendLenPrefixed(buf, []byte(HashVersion))
	for _, in := range inputs {
		buf = appendLenPrefixed(buf, []byte(in))
	}
	return common.BytesToHash(ethcrypto.Keccak256(buf))
}

// NodeHash combines two child digests into a parent digest for merkle
// construction. A distinct tag keeps interior nodes out of the leaf domain.
func NodeHash(left, right common.Hash) common.Hash {
	buf := make([]byte, 0, 80)
	buf = appendLenPrefixed(buf, []byte(HashVersion+"/node"))
	buf = append(buf, left.Bytes()...)
	buf = append(buf, right.Bytes()...)
	return common.BytesToHash(ethcrypto.Keccak256(buf))
}

func appendLenPrefixed(buf, b []byte) []byte {
	var l [8]byte
	binary.BigEndian.PutUint64(l[:], uint64(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}
