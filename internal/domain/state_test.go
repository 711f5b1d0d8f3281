package domain

import (
	"math/big"
	"testing"
)

func reserves(yes, no int64) MarketState {
	return MarketState{
		MarketID:           "mkt-1",
		SharesYes:          big.NewInt(yes),
		SharesNo:           big.NewInt(no),
		Invariant:          new(big.Int).Mul(big.NewInt(yes), big.NewInt(no)),
		LiquidityParameter: big.NewInt(yes + no),
		TotalVolume:        big.NewInt(0),
	}
}

func TestPrices(t *testing.T) {
	cases := []struct {
		name    string
		yes, no int64
		wantYes float64
		wantNo  float64
	}{
		{"yes favoured", 45_000, 55_000, 0.55, 0.45},
		{"even", 50_000, 50_000, 0.5, 0.5},
		{"no favoured", 150_000, 50_000, 0.25, 0.75},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			yes, no := reserves(c.yes, c.no).Prices()
			if yes != c.wantYes || no != c.wantNo {
				t.Errorf("Prices() = %v/%v, want %v/%v", yes, no, c.wantYes, c.wantNo)
			}
			if yes+no != 1 {
				t.Errorf("prices sum to %v", yes+no)
			}
		})
	}
}

func TestPricesEmptyReserves(t *testing.T) {
	yes, no := reserves(0, 0).Prices()
	if yes != 0 || no != 0 {
		t.Errorf("Prices() = %v/%v, want 0/0", yes, no)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := reserves(45_000, 55_000)
	clone := orig.Clone()

	clone.SharesYes.Add(clone.SharesYes, big.NewInt(1_000))
	clone.TotalVolume.SetInt64(999)
	clone.BatchCounter = 7

	if orig.SharesYes.Int64() != 45_000 {
		t.Errorf("SharesYes mutated through clone: %s", orig.SharesYes)
	}
	if orig.TotalVolume.Sign() != 0 {
		t.Errorf("TotalVolume mutated through clone: %s", orig.TotalVolume)
	}
	if orig.BatchCounter != 0 {
		t.Errorf("BatchCounter mutated through clone: %d", orig.BatchCounter)
	}
}

func TestTotalShares(t *testing.T) {
	if got := reserves(45_000, 55_000).TotalShares(); got.Int64() != 100_000 {
		t.Errorf("TotalShares() = %s", got)
	}
}
