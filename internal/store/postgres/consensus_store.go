package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// ConsensusStore implements domain.ConsensusStore using PostgreSQL.
type ConsensusStore struct {
	pool *pgxpool.Pool
}

// NewConsensusStore creates a new ConsensusStore backed by the given
// connection pool.
func NewConsensusStore(pool *pgxpool.Pool) *ConsensusStore {
	return &ConsensusStore{pool: pool}
}

// SaveResult upserts the consensus result for a market. A later round
// replaces an earlier one.
func (s *ConsensusStore) SaveResult(ctx context.Context, r domain.ConsensusResult) error {
	const query = `
		INSERT INTO consensus_results (
			market_id, outcome, confidence, participating_oracles,
			consensus_reached, dispute_threshold, round, finalized_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id) DO UPDATE SET
			outcome               = EXCLUDED.outcome,
			confidence            = EXCLUDED.confidence,
			participating_oracles = EXCLUDED.participating_oracles,
			consensus_reached     = EXCLUDED.consensus_reached,
			dispute_threshold     = EXCLUDED.dispute_threshold,
			round                 = EXCLUDED.round,
			finalized_at          = EXCLUDED.finalized_at`

	_, err := s.pool.Exec(ctx, query,
		r.MarketID, int(r.Outcome), r.Confidence, r.ParticipatingOracles,
		r.ConsensusReached, r.DisputeThreshold, r.Round, r.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save consensus %s: %w", r.MarketID, err)
	}
	return nil
}

// GetResult retrieves the latest consensus result for a market.
func (s *ConsensusStore) GetResult(ctx context.Context, marketID string) (domain.ConsensusResult, error) {
	const query = `
		SELECT market_id, outcome, confidence, participating_oracles,
		       consensus_reached, dispute_threshold, round, finalized_at
		FROM consensus_results WHERE market_id = $1`

	var r domain.ConsensusResult
	var outcome int
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&r.MarketID, &outcome, &r.Confidence, &r.ParticipatingOracles,
		&r.ConsensusReached, &r.DisputeThreshold, &r.Round, &r.FinalizedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ConsensusResult{}, domain.ErrNotFound
		}
		return domain.ConsensusResult{}, fmt.Errorf("postgres: get consensus %s: %w", marketID, err)
	}
	r.Outcome = domain.Outcome(outcome)
	return r, nil
}

// SaveDispute upserts a dispute row.
func (s *ConsensusStore) SaveDispute(ctx context.Context, d domain.Dispute) error {
	const query = `
		INSERT INTO disputes (
			id, market_id, challenger, round, reason, opened_at, resolved_at, upheld
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			resolved_at = EXCLUDED.resolved_at,
			upheld      = EXCLUDED.upheld`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.MarketID, d.Challenger, d.Round, d.Reason,
		d.OpenedAt, d.ResolvedAt, d.Upheld,
	)
	if err != nil {
		return fmt.Errorf("postgres: save dispute %s: %w", d.ID, err)
	}
	return nil
}

// ListDisputes returns all disputes for a market, oldest first.
func (s *ConsensusStore) ListDisputes(ctx context.Context, marketID string) ([]domain.Dispute, error) {
	const query = `
		SELECT id, market_id, challenger, round, reason, opened_at, resolved_at, upheld
		FROM disputes WHERE market_id = $1
		ORDER BY opened_at ASC`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list disputes %s: %w", marketID, err)
	}
	defer rows.Close()

	var disputes []domain.Dispute
	for rows.Next() {
		var d domain.Dispute
		if err := rows.Scan(
			&d.ID, &d.MarketID, &d.Challenger, &d.Round, &d.Reason,
			&d.OpenedAt, &d.ResolvedAt, &d.Upheld,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: dispute rows: %w", err)
	}
	return disputes, nil
}

var _ domain.ConsensusStore = (*ConsensusStore)(nil)
