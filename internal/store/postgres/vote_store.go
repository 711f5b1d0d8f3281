package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// VoteStore implements domain.VoteStore using PostgreSQL. The unique
// constraint on (market_id, round, oracle_id) enforces one vote per oracle
// per round.
type VoteStore struct {
	pool *pgxpool.Pool
}

// NewVoteStore creates a new VoteStore backed by the given connection pool.
func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Insert records a vote. A duplicate (oracle, market, round) is rejected.
func (s *VoteStore) Insert(ctx context.Context, v domain.OracleVote) error {
	const query = `
		INSERT INTO oracle_votes (
			oracle_id, market_id, round, outcome, confidence, weight, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		v.OracleID, v.MarketID, v.Round, int(v.Outcome),
		v.Confidence, v.Weight, v.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.NewError(domain.CodeInvalidMarket,
				"oracle already voted this round", nil).
				WithDetail("oracle_id", v.OracleID).
				WithDetail("market_id", v.MarketID).
				WithDetail("round", fmt.Sprint(v.Round))
		}
		return fmt.Errorf("postgres: insert vote %s/%s: %w", v.MarketID, v.OracleID, err)
	}
	return nil
}

// ListByRound returns all votes for a market round in submission order.
func (s *VoteStore) ListByRound(ctx context.Context, marketID string, round int) ([]domain.OracleVote, error) {
	const query = `
		SELECT oracle_id, market_id, round, outcome, confidence, weight, submitted_at
		FROM oracle_votes
		WHERE market_id = $1 AND round = $2
		ORDER BY submitted_at ASC`

	rows, err := s.pool.Query(ctx, query, marketID, round)
	if err != nil {
		return nil, fmt.Errorf("postgres: list votes %s round %d: %w", marketID, round, err)
	}
	defer rows.Close()

	var votes []domain.OracleVote
	for rows.Next() {
		var v domain.OracleVote
		var outcome int
		if err := rows.Scan(
			&v.OracleID, &v.MarketID, &v.Round, &outcome,
			&v.Confidence, &v.Weight, &v.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		v.Outcome = domain.Outcome(outcome)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vote rows: %w", err)
	}
	return votes, nil
}

var _ domain.VoteStore = (*VoteStore)(nil)
