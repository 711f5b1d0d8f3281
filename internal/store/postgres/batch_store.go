package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// BatchStore implements domain.BatchStore using PostgreSQL. Entries are
// stored in a child table keyed by (batch_id, leaf_index) so inclusion proofs
// can be rebuilt later.
type BatchStore struct {
	pool *pgxpool.Pool
}

// NewBatchStore creates a new BatchStore backed by the given connection pool.
func NewBatchStore(pool *pgxpool.Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

// Create inserts a batch and its entries in one transaction. A batch id that
// already exists is left untouched so a redelivered batch passes through to
// the commit gate instead of failing on its own earlier insert.
func (s *BatchStore) Create(ctx context.Context, b domain.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin batch insert: %w", err)
	}
	defer tx.Rollback(ctx)

	const batchQuery = `
		INSERT INTO batches (
			id, market_id, root, total_value, value_commitment,
			position_count, batch_time, processed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	tag, err := tx.Exec(ctx, batchQuery,
		b.ID, b.MarketID, b.Root, bigToNumeric(b.TotalValue), b.ValueCommitment,
		b.PositionCount, b.Timestamp, b.Processed,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert batch %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Redelivery; the original record and its entries stand.
		return nil
	}

	const entryQuery = `
		INSERT INTO batch_entries (batch_id, leaf_index, commitment, amount, outcome)
		VALUES ($1, $2, $3, $4, $5)`

	pgb := &pgx.Batch{}
	for _, e := range b.Entries {
		pgb.Queue(entryQuery, b.ID, e.Index, e.Commitment, bigToNumeric(e.Amount), int(e.Outcome))
	}
	br := tx.SendBatch(ctx, pgb)
	for i := range b.Entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("postgres: insert batch entry %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close entry batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit batch %s: %w", b.ID, err)
	}
	return nil
}

// Commit flips the processed flag and upserts the post-batch market state in
// one transaction. Returns false when the batch was already processed; the
// state argument is discarded in that case. A rolled-back commit leaves the
// batch unprocessed, so redelivery applies it from scratch.
func (s *BatchStore) Commit(ctx context.Context, batchID string, state domain.MarketState) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin batch commit: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `UPDATE batches SET processed = TRUE
		WHERE id = $1 AND processed = FALSE`

	tag, err := tx.Exec(ctx, query, batchID)
	if err != nil {
		return false, fmt.Errorf("postgres: mark batch %s processed: %w", batchID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := saveState(ctx, tx, state); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit batch %s: %w", batchID, err)
	}
	return true, nil
}

// GetByID retrieves a batch and its entries.
func (s *BatchStore) GetByID(ctx context.Context, batchID string) (domain.Batch, error) {
	const query = `
		SELECT id, market_id, root, total_value, value_commitment,
		       position_count, batch_time, processed
		FROM batches WHERE id = $1`

	var b domain.Batch
	var total string
	err := s.pool.QueryRow(ctx, query, batchID).Scan(
		&b.ID, &b.MarketID, &b.Root, &total, &b.ValueCommitment,
		&b.PositionCount, &b.Timestamp, &b.Processed,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Batch{}, domain.ErrNotFound
		}
		return domain.Batch{}, fmt.Errorf("postgres: get batch %s: %w", batchID, err)
	}
	if b.TotalValue, err = numericToBig(total); err != nil {
		return domain.Batch{}, err
	}

	if b.Entries, err = s.entries(ctx, batchID); err != nil {
		return domain.Batch{}, err
	}
	return b, nil
}

// ListUnprocessed returns unprocessed batches for a market in arrival order,
// without entries.
func (s *BatchStore) ListUnprocessed(ctx context.Context, marketID string) ([]domain.Batch, error) {
	const query = `
		SELECT id, market_id, root, total_value, value_commitment,
		       position_count, batch_time, processed
		FROM batches
		WHERE market_id = $1 AND processed = FALSE
		ORDER BY batch_time ASC`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unprocessed batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		var total string
		if err := rows.Scan(
			&b.ID, &b.MarketID, &b.Root, &total, &b.ValueCommitment,
			&b.PositionCount, &b.Timestamp, &b.Processed,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan batch: %w", err)
		}
		if b.TotalValue, err = numericToBig(total); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: batch rows: %w", err)
	}
	return batches, nil
}

// ListProcessedBefore returns processed batches older than the cutoff,
// entries included, for archival.
func (s *BatchStore) ListProcessedBefore(ctx context.Context, before time.Time) ([]domain.Batch, error) {
	const query = `
		SELECT id, market_id, root, total_value, value_commitment,
		       position_count, batch_time, processed
		FROM batches
		WHERE processed = TRUE AND batch_time < $1
		ORDER BY batch_time ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list processed batches: %w", err)
	}

	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		var total string
		if err := rows.Scan(
			&b.ID, &b.MarketID, &b.Root, &total, &b.ValueCommitment,
			&b.PositionCount, &b.Timestamp, &b.Processed,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan batch: %w", err)
		}
		if b.TotalValue, err = numericToBig(total); err != nil {
			rows.Close()
			return nil, err
		}
		batches = append(batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: processed batch rows: %w", err)
	}

	for i := range batches {
		if batches[i].Entries, err = s.entries(ctx, batches[i].ID); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

func (s *BatchStore) entries(ctx context.Context, batchID string) ([]domain.BatchEntry, error) {
	const query = `
		SELECT leaf_index, commitment, amount, outcome
		FROM batch_entries WHERE batch_id = $1
		ORDER BY leaf_index ASC`

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list batch entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.BatchEntry
	for rows.Next() {
		var e domain.BatchEntry
		var amount string
		var outcome int
		if err := rows.Scan(&e.Index, &e.Commitment, &amount, &outcome); err != nil {
			return nil, fmt.Errorf("postgres: scan batch entry: %w", err)
		}
		if e.Amount, err = numericToBig(amount); err != nil {
			return nil, err
		}
		e.Outcome = domain.Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: batch entry rows: %w", err)
	}
	return entries, nil
}

var _ domain.BatchStore = (*BatchStore)(nil)
