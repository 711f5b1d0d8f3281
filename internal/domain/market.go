package domain

import (
	"math/big"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusCreated   MarketStatus = "CREATED"
	MarketStatusActive    MarketStatus = "ACTIVE"
	MarketStatusEnded     MarketStatus = "ENDED"
	MarketStatusResolved  MarketStatus = "RESOLVED"
	MarketStatusDisputed  MarketStatus = "DISPUTED"
	MarketStatusSettled   MarketStatus = "SETTLED"
	MarketStatusCancelled MarketStatus = "CANCELLED"
	MarketStatusExpired   MarketStatus = "EXPIRED"
)

// Terminal reports whether the status is final. A terminal market is
// immutable apart from claim bookkeeping.
func (s MarketStatus) Terminal() bool {
	switch s {
	case MarketStatusSettled, MarketStatusCancelled, MarketStatusExpired:
		return true
	default:
		return false
	}
}

// Refundable reports whether positions in a market with this status are
// eligible for a full refund instead of an outcome-dependent payout.
func (s MarketStatus) Refundable() bool {
	return s == MarketStatusCancelled || s == MarketStatusExpired
}

// Market holds the public metadata of a binary prediction market.
// Amounts are ledger-denominated big integers.
type Market struct {
	ID                 string
	Question           string
	Description        string
	ResolutionCriteria string
	Creator            string
	EndTime            time.Time
	ResolutionDeadline time.Time
	ChallengePeriodEnd time.Time
	CreatorBond        *big.Int
	MinLiquidity       *big.Int
	Status             MarketStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TradingOpen reports whether the market accepts new positions at the given
// instant: it must be ACTIVE and before its end time.
func (m Market) TradingOpen(now time.Time) bool {
	return m.Status == MarketStatusActive && now.Before(m.EndTime)
}
