// Package settle converts finalized outcomes into payouts and enforces
// exactly-once claiming via one-time nullifiers.
package settle

import (
	"math/big"

	"github.com/bodega-labs/bodegad/internal/domain"
)

var hundred = big.NewInt(100)

// PayoutRatio computes the claim multiplier for the winning side:
// (losingShares * 100 / winningShares) + 100, i.e. principal plus a
// pro-rata share of the losing pool. A zero winning pool pays principal
// only, and the ratio is clamped to maxRatio (when positive) to bound
// extreme share imbalance.
func PayoutRatio(state domain.MarketState, winning domain.Outcome, maxRatio int64) *big.Int {
	winShares, loseShares := state.SharesYes, state.SharesNo
	if winning == domain.OutcomeNo {
		winShares, loseShares = state.SharesNo, state.SharesYes
	}

	if winShares == nil || winShares.Sign() == 0 {
		return new(big.Int).Set(hundred)
	}

	ratio := new(big.Int).Mul(loseShares, hundred)
	ratio.Div(ratio, winShares)
	ratio.Add(ratio, hundred)

	if maxRatio > 0 && ratio.Cmp(big.NewInt(maxRatio)) > 0 {
		ratio.SetInt64(maxRatio)
	}
	return ratio
}

// RefundRatio is the multiplier for cancelled or expired markets: principal
// only, regardless of outcome.
func RefundRatio() *big.Int {
	return new(big.Int).Set(hundred)
}

// Winnings computes the claimable amount for a stake under a ratio:
// amount * ratio / 100.
func Winnings(amount, ratio *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, ratio)
	return out.Div(out, hundred)
}
