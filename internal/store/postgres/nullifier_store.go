package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// NullifierStore implements domain.NullifierStore using PostgreSQL. The
// spent-set check and insert happen in one statement, so two racing claims of
// the same nullifier resolve to exactly one winner in the database.
type NullifierStore struct {
	pool *pgxpool.Pool
}

// NewNullifierStore creates a new NullifierStore backed by the given
// connection pool.
func NewNullifierStore(pool *pgxpool.Pool) *NullifierStore {
	return &NullifierStore{pool: pool}
}

// Spend records a nullifier if it is fresh. Returns true when this call
// recorded it, false when it was already spent.
func (s *NullifierStore) Spend(ctx context.Context, nullifier string, marketID string, payout *big.Int) (bool, error) {
	const query = `
		INSERT INTO spent_nullifiers (nullifier, market_id, payout)
		VALUES ($1, $2, $3)
		ON CONFLICT (nullifier) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, nullifier, marketID, bigToNumeric(payout))
	if err != nil {
		return false, fmt.Errorf("postgres: spend nullifier: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsSpent reports whether a nullifier is already in the spent set.
func (s *NullifierStore) IsSpent(ctx context.Context, nullifier string) (bool, error) {
	var spent bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM spent_nullifiers WHERE nullifier = $1)",
		nullifier,
	).Scan(&spent)
	if err != nil {
		return false, fmt.Errorf("postgres: check nullifier: %w", err)
	}
	return spent, nil
}

var _ domain.NullifierStore = (*NullifierStore)(nil)
