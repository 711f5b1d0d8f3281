package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bodega-labs/bodegad/internal/domain"
)

const stateTTL = 5 * time.Minute

// StateCache implements domain.MarketStateCache using Redis strings with
// JSON-serialized reserve state and a 5-minute TTL. The state store remains
// authoritative; the engine invalidates after every batch apply.
type StateCache struct {
	rdb *redis.Client
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Underlying()}
}

func stateKey(marketID string) string { return "state:" + marketID }

// stateJSON carries big integers as decimal strings.
type stateJSON struct {
	MarketID           string `json:"market_id"`
	SharesYes          string `json:"shares_yes"`
	SharesNo           string `json:"shares_no"`
	Invariant          string `json:"invariant"`
	LiquidityParameter string `json:"liquidity_parameter"`
	TotalVolume        string `json:"total_volume"`
	ActivePositions    int64  `json:"active_positions"`
	BatchCounter       int64  `json:"batch_counter"`
	LastTradeTime      int64  `json:"last_trade_time"` // Unix nanoseconds
}

// Set stores the reserve state for a market.
func (sc *StateCache) Set(ctx context.Context, st domain.MarketState) error {
	data, err := json.Marshal(stateJSON{
		MarketID:           st.MarketID,
		SharesYes:          st.SharesYes.String(),
		SharesNo:           st.SharesNo.String(),
		Invariant:          st.Invariant.String(),
		LiquidityParameter: st.LiquidityParameter.String(),
		TotalVolume:        st.TotalVolume.String(),
		ActivePositions:    st.ActivePositions,
		BatchCounter:       st.BatchCounter,
		LastTradeTime:      st.LastTradeTime.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal state %s: %w", st.MarketID, err)
	}

	if err := sc.rdb.Set(ctx, stateKey(st.MarketID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("redis: set state %s: %w", st.MarketID, err)
	}
	return nil
}

// Get retrieves the cached reserve state for a market. It returns
// domain.ErrNotFound on a cache miss.
func (sc *StateCache) Get(ctx context.Context, marketID string) (domain.MarketState, error) {
	data, err := sc.rdb.Get(ctx, stateKey(marketID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.MarketState{}, domain.ErrNotFound
		}
		return domain.MarketState{}, fmt.Errorf("redis: get state %s: %w", marketID, err)
	}

	var sj stateJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return domain.MarketState{}, fmt.Errorf("redis: unmarshal state %s: %w", marketID, err)
	}

	st := domain.MarketState{
		MarketID:        sj.MarketID,
		ActivePositions: sj.ActivePositions,
		BatchCounter:    sj.BatchCounter,
		LastTradeTime:   time.Unix(0, sj.LastTradeTime),
	}
	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&st.SharesYes, sj.SharesYes},
		{&st.SharesNo, sj.SharesNo},
		{&st.Invariant, sj.Invariant},
		{&st.LiquidityParameter, sj.LiquidityParameter},
		{&st.TotalVolume, sj.TotalVolume},
	} {
		v, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return domain.MarketState{}, fmt.Errorf("redis: invalid numeric %q in state %s", f.src, marketID)
		}
		*f.dst = v
	}
	return st, nil
}

// Invalidate drops the cached state for a market.
func (sc *StateCache) Invalidate(ctx context.Context, marketID string) error {
	if err := sc.rdb.Del(ctx, stateKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate state %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStateCache = (*StateCache)(nil)
