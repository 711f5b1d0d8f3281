package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest derived prices.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID string, yes, no float64, ts time.Time) error
	GetPrices(ctx context.Context, marketID string) (yes, no float64, ts time.Time, err error)
	Invalidate(ctx context.Context, marketID string) error
}

// MarketStateCache caches AMM state for read paths. The engine's persisted
// state remains authoritative; cache misses fall through to the state store.
type MarketStateCache interface {
	Set(ctx context.Context, state MarketState) error
	Get(ctx context.Context, marketID string) (MarketState, error)
	Invalidate(ctx context.Context, marketID string) error
}

// LockManager provides distributed locking. Batch application takes the
// per-market lock so reserve updates are totally ordered.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter throttles requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub messaging for the event layer.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
