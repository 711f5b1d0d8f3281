package proof

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bodega-labs/bodegad/internal/crypto"
	"github.com/bodega-labs/bodegad/internal/domain"
)

// Commitment computes the one-way binding hash over every position field.
// It is deterministic, so the same position always yields the same
// commitment, and the nonce guarantees two otherwise identical positions
// commit to different values. The commitment alone reveals neither amount,
// outcome, nor owner.
//
// Input order is fixed; changing it is a hash-version bump.
func Commitment(p domain.PrivatePosition) common.Hash {
	return crypto.TranscriptHash(
		p.UserID,
		p.Amount.String(),
		strconv.Itoa(int(p.Outcome)),
		p.Nonce.String(),
		p.MarketID,
		strconv.FormatInt(p.Timestamp.Unix(), 10),
	)
}

// UserSecret derives the per-user claim secret from the user id and the
// user's ledger address. It is recomputable by the owner and nobody else,
// since the user id itself is derived from the address plus a private nonce.
func UserSecret(userID, address string) string {
	return crypto.TranscriptHash(userID, address, "secret").Hex()
}

// Nullifier derives the unique-per-position spend tag. It binds the owner
// identity, the position nonce, and the owner secret, so a nullifier can be
// produced exactly once per position and only by its owner.
func Nullifier(p domain.PrivatePosition, userSecret string) common.Hash {
	return crypto.TranscriptHash(p.UserID, p.Nonce.String(), userSecret)
}
