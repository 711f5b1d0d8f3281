package domain

import (
	"math/big"
	"time"
)

// BatchEntry is one committed position inside a batch. The commitment hides
// owner and nonce; amount and outcome are public to the engine because they
// drive the reserve update. Index is the leaf position in the batch root and
// is needed later for inclusion proofs.
type BatchEntry struct {
	Index      int
	Commitment string // 0x-prefixed hash of the private position
	Amount     *big.Int
	Outcome    Outcome
}

// Batch is a bounded, insertion-ordered group of commitments folded into
// market state as one atomic update. Immutable once flushed.
type Batch struct {
	ID              string
	MarketID        string
	Root            string // merkle root over commitments in leaf order
	TotalValue      *big.Int
	ValueCommitment []byte // Pedersen accumulator over the entry stakes
	PositionCount   int
	Timestamp       time.Time
	Processed       bool
	Entries         []BatchEntry
}
