// Package amm owns per-market pricing state and the market lifecycle state
// machine. MarketState is mutated exclusively here; every trade enters as
// part of a batch and every lifecycle change goes through a guarded
// transition.
package amm

import (
	"math/big"
	"strings"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// transitions is the legal edge set of the market state machine.
var transitions = map[domain.MarketStatus][]domain.MarketStatus{
	domain.MarketStatusCreated: {
		domain.MarketStatusActive,
		domain.MarketStatusCancelled,
	},
	domain.MarketStatusActive: {
		domain.MarketStatusEnded,
		domain.MarketStatusCancelled,
		domain.MarketStatusExpired,
	},
	domain.MarketStatusEnded: {
		domain.MarketStatusResolved,
		domain.MarketStatusExpired,
	},
	domain.MarketStatusResolved: {
		domain.MarketStatusDisputed,
		domain.MarketStatusSettled,
	},
	domain.MarketStatusDisputed: {
		domain.MarketStatusResolved,
	},
}

// CanTransition reports whether the edge from -> to exists.
func CanTransition(from, to domain.MarketStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateNewMarket runs every local check a market-creation request must
// pass before any ledger submission or proof work is attempted.
func ValidateNewMarket(m domain.Market, minBond *big.Int, now time.Time) error {
	if strings.TrimSpace(m.Question) == "" {
		return domain.NewError(domain.CodeInvalidMarket, "market question must not be empty", nil)
	}
	if !m.EndTime.After(now) {
		return domain.NewError(domain.CodeInvalidMarket, "market end time must be in the future", nil).
			WithDetail("end_time", m.EndTime.Unix())
	}
	if !m.ResolutionDeadline.After(m.EndTime) {
		return domain.NewError(domain.CodeInvalidMarket, "resolution deadline must be after end time", nil)
	}
	if !m.ChallengePeriodEnd.After(m.ResolutionDeadline) {
		return domain.NewError(domain.CodeInvalidMarket, "challenge period must end after the resolution deadline", nil)
	}
	if m.CreatorBond == nil || (minBond != nil && m.CreatorBond.Cmp(minBond) < 0) {
		return domain.NewError(domain.CodeInvalidMarket, "creator bond below the configured minimum", nil).
			WithDetail("min_bond", bigString(minBond))
	}
	if m.Creator == "" {
		return domain.NewError(domain.CodeInvalidMarket, "market creator must be set", nil)
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
