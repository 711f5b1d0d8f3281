package domain

import (
	"math/big"
	"time"
)

// MarketState is the AMM reserve state of a single market. It is owned
// exclusively by the AMM engine; every other component reads it through the
// engine or the state store.
type MarketState struct {
	MarketID           string
	SharesYes          *big.Int
	SharesNo           *big.Int
	Invariant          *big.Int // sharesYes * sharesNo, maintained by the engine
	LiquidityParameter *big.Int
	TotalVolume        *big.Int
	ActivePositions    int64
	LastTradeTime      time.Time
	BatchCounter       int64
}

// TotalShares returns sharesYes + sharesNo.
func (s MarketState) TotalShares() *big.Int {
	return new(big.Int).Add(s.SharesYes, s.SharesNo)
}

// Clone returns a deep copy. Batch application works on a clone so a rejected
// batch leaves the original state untouched.
func (s MarketState) Clone() MarketState {
	out := s
	out.SharesYes = new(big.Int).Set(s.SharesYes)
	out.SharesNo = new(big.Int).Set(s.SharesNo)
	out.Invariant = new(big.Int).Set(s.Invariant)
	out.LiquidityParameter = new(big.Int).Set(s.LiquidityParameter)
	out.TotalVolume = new(big.Int).Set(s.TotalVolume)
	return out
}

// Prices returns the YES and NO prices implied by the reserves. The price of
// an outcome is the opposite reserve over the total, so the two always sum
// to 1. Returns (0, 0) when both reserves are zero.
func (s MarketState) Prices() (yes, no float64) {
	total := new(big.Float).SetInt(s.TotalShares())
	if total.Sign() == 0 {
		return 0, 0
	}
	y, _ := new(big.Float).Quo(new(big.Float).SetInt(s.SharesNo), total).Float64()
	n, _ := new(big.Float).Quo(new(big.Float).SetInt(s.SharesYes), total).Float64()
	return y, n
}
