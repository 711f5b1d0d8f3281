package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// MarketStore persists market metadata.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	Update(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	// ListResolutionOverdue returns non-terminal markets whose hard
	// resolution deadline has passed, candidates for expiry.
	ListResolutionOverdue(ctx context.Context, now time.Time) ([]Market, error)
}

// MarketStateStore persists AMM reserve state. Save must replace the whole
// row; partial updates would break the invariant bookkeeping.
type MarketStateStore interface {
	Save(ctx context.Context, state MarketState) error
	Get(ctx context.Context, marketID string) (MarketState, error)
}

// BatchStore persists flushed batches and their processed flag.
type BatchStore interface {
	// Create records a batch and its entries. Creating a batch id that
	// already exists is a no-op; the original record is kept, so a
	// redelivered batch passes through unchanged.
	Create(ctx context.Context, batch Batch) error
	// Commit flips the processed flag and persists the post-batch market
	// state in one atomic step. Exactly one caller wins the flip; it returns
	// (false, nil) when the batch was already processed, which is how the
	// engine detects a redelivered batch. A failed commit leaves the batch
	// unprocessed and the state unchanged.
	Commit(ctx context.Context, batchID string, state MarketState) (bool, error)
	GetByID(ctx context.Context, batchID string) (Batch, error)
	ListUnprocessed(ctx context.Context, marketID string) ([]Batch, error)
}

// VoteStore persists oracle votes per market and round.
type VoteStore interface {
	// Insert records a vote. A second vote by the same oracle for the same
	// market and round is rejected.
	Insert(ctx context.Context, vote OracleVote) error
	ListByRound(ctx context.Context, marketID string, round int) ([]OracleVote, error)
}

// ConsensusStore persists consensus results and disputes.
type ConsensusStore interface {
	SaveResult(ctx context.Context, result ConsensusResult) error
	GetResult(ctx context.Context, marketID string) (ConsensusResult, error)
	SaveDispute(ctx context.Context, dispute Dispute) error
	ListDisputes(ctx context.Context, marketID string) ([]Dispute, error)
}

// NullifierStore is the shared spent-set. Spend must be a single atomic
// check-and-insert: it returns (true, nil) when the nullifier was fresh and
// is now recorded, (false, nil) when it was already spent. Two concurrent
// Spend calls with the same nullifier must yield exactly one true.
type NullifierStore interface {
	Spend(ctx context.Context, nullifier string, marketID string, payout *big.Int) (bool, error)
	IsSpent(ctx context.Context, nullifier string) (bool, error)
}

// AuditEntry is a single append-only audit row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of state transitions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
