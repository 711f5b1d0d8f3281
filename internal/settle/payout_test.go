package settle

import (
	"math/big"
	"testing"

	"github.com/bodega-labs/bodegad/internal/domain"
)

func state(yes, no int64) domain.MarketState {
	return domain.MarketState{
		MarketID:  "mkt-1",
		SharesYes: big.NewInt(yes),
		SharesNo:  big.NewInt(no),
	}
}

func TestPayoutRatio(t *testing.T) {
	cases := []struct {
		name     string
		st       domain.MarketState
		winning  domain.Outcome
		maxRatio int64
		want     int64
	}{
		// 150000 losing over 50000 winning: 300% profit plus principal.
		{"yes wins 1:3", state(50_000, 150_000), domain.OutcomeYes, 0, 400},
		{"no wins 3:1", state(150_000, 50_000), domain.OutcomeNo, 0, 400},
		{"even pools", state(100_000, 100_000), domain.OutcomeYes, 0, 200},
		{"losing pool empty", state(100_000, 0), domain.OutcomeYes, 0, 100},
		{"winning pool empty", state(0, 100_000), domain.OutcomeYes, 0, 100},
		{"integer truncation", state(3, 100), domain.OutcomeYes, 0, 3433},
		{"clamped", state(1, 1_000_000), domain.OutcomeYes, 10_000, 10_000},
		{"clamp disabled", state(1, 1_000_000), domain.OutcomeYes, 0, 100_000_100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := PayoutRatio(c.st, c.winning, c.maxRatio)
			if got.Int64() != c.want {
				t.Errorf("PayoutRatio = %s, want %d", got, c.want)
			}
		})
	}
}

func TestPayoutRatioNilWinningPool(t *testing.T) {
	st := domain.MarketState{MarketID: "mkt-1", SharesNo: big.NewInt(100)}
	if got := PayoutRatio(st, domain.OutcomeYes, 0); got.Int64() != 100 {
		t.Errorf("ratio = %s, want 100", got)
	}
}

func TestRefundRatio(t *testing.T) {
	if got := RefundRatio(); got.Int64() != 100 {
		t.Errorf("RefundRatio = %s, want 100", got)
	}
}

func TestWinnings(t *testing.T) {
	cases := []struct {
		amount, ratio, want int64
	}{
		{25, 400, 100},
		{1_000, 100, 1_000}, // refund pays principal exactly
		{333, 150, 499},     // truncates toward zero
		{0, 400, 0},
	}
	for _, c := range cases {
		got := Winnings(big.NewInt(c.amount), big.NewInt(c.ratio))
		if got.Int64() != c.want {
			t.Errorf("Winnings(%d, %d) = %s, want %d", c.amount, c.ratio, got, c.want)
		}
	}
}

func TestWinningsDoesNotMutateInputs(t *testing.T) {
	amount, ratio := big.NewInt(25), big.NewInt(400)
	Winnings(amount, ratio)
	if amount.Int64() != 25 || ratio.Int64() != 400 {
		t.Errorf("inputs mutated: %s, %s", amount, ratio)
	}
}
