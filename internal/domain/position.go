package domain

import (
	"math/big"
	"time"
)

// Outcome is one side of a binary market.
type Outcome int

const (
	OutcomeYes Outcome = 0
	OutcomeNo  Outcome = 1
)

// Valid reports whether the outcome is one of the two binary sides.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "YES"
	case OutcomeNo:
		return "NO"
	default:
		return "INVALID"
	}
}

// PrivatePosition is a bet held only by its owner. It never appears on the
// public ledger in plaintext; only the commitment over its fields is public.
// The position is consumed exactly once at claim time, when it is converted
// into a nullifier.
type PrivatePosition struct {
	UserID    string
	Amount    *big.Int
	Outcome   Outcome
	Nonce     *big.Int
	MarketID  string
	Timestamp time.Time
}

// Validate performs the local checks that must pass before any proof
// generation or ledger call is attempted.
func (p PrivatePosition) Validate() error {
	if p.UserID == "" {
		return NewError(CodeInvalidPosition, "position has no user id", nil)
	}
	if p.MarketID == "" {
		return NewError(CodeInvalidPosition, "position has no market id", nil)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return NewError(CodeInvalidPosition, "position amount must be positive", nil)
	}
	if !p.Outcome.Valid() {
		return NewError(CodeInvalidPosition, "position outcome must be YES or NO", nil)
	}
	if p.Nonce == nil || p.Nonce.Sign() < 0 {
		return NewError(CodeInvalidPosition, "position nonce missing", nil)
	}
	return nil
}
