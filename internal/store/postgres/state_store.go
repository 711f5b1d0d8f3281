package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// execer is the query surface shared by the pool and a transaction, so the
// state upsert can run standalone or inside a batch commit.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// StateStore implements domain.MarketStateStore using PostgreSQL.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Save replaces the full reserve state row for a market.
func (s *StateStore) Save(ctx context.Context, st domain.MarketState) error {
	return saveState(ctx, s.pool, st)
}

func saveState(ctx context.Context, db execer, st domain.MarketState) error {
	const query = `
		INSERT INTO market_states (
			market_id, shares_yes, shares_no, invariant,
			liquidity_parameter, total_volume,
			active_positions, batch_counter, last_trade_time, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, NOW()
		)
		ON CONFLICT (market_id) DO UPDATE SET
			shares_yes          = EXCLUDED.shares_yes,
			shares_no           = EXCLUDED.shares_no,
			invariant           = EXCLUDED.invariant,
			liquidity_parameter = EXCLUDED.liquidity_parameter,
			total_volume        = EXCLUDED.total_volume,
			active_positions    = EXCLUDED.active_positions,
			batch_counter       = EXCLUDED.batch_counter,
			last_trade_time     = EXCLUDED.last_trade_time,
			updated_at          = NOW()`

	_, err := db.Exec(ctx, query,
		st.MarketID,
		bigToNumeric(st.SharesYes), bigToNumeric(st.SharesNo), bigToNumeric(st.Invariant),
		bigToNumeric(st.LiquidityParameter), bigToNumeric(st.TotalVolume),
		st.ActivePositions, st.BatchCounter, st.LastTradeTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: save state %s: %w", st.MarketID, err)
	}
	return nil
}

// Get retrieves the reserve state for a market.
func (s *StateStore) Get(ctx context.Context, marketID string) (domain.MarketState, error) {
	const query = `
		SELECT market_id, shares_yes, shares_no, invariant,
		       liquidity_parameter, total_volume,
		       active_positions, batch_counter, last_trade_time
		FROM market_states WHERE market_id = $1`

	var st domain.MarketState
	var yes, no, inv, liq, vol string
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&st.MarketID, &yes, &no, &inv,
		&liq, &vol,
		&st.ActivePositions, &st.BatchCounter, &st.LastTradeTime,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketState{}, domain.ErrNotFound
		}
		return domain.MarketState{}, fmt.Errorf("postgres: get state %s: %w", marketID, err)
	}

	if st.SharesYes, err = numericToBig(yes); err != nil {
		return domain.MarketState{}, err
	}
	if st.SharesNo, err = numericToBig(no); err != nil {
		return domain.MarketState{}, err
	}
	if st.Invariant, err = numericToBig(inv); err != nil {
		return domain.MarketState{}, err
	}
	if st.LiquidityParameter, err = numericToBig(liq); err != nil {
		return domain.MarketState{}, err
	}
	if st.TotalVolume, err = numericToBig(vol); err != nil {
		return domain.MarketState{}, err
	}
	return st, nil
}

var _ domain.MarketStateStore = (*StateStore)(nil)
