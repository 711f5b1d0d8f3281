package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// ApplyFunc hands a flushed batch to the AMM engine. Implementations must be
// idempotent on batch id: the batcher redelivers a batch after a transient
// failure.
type ApplyFunc func(ctx context.Context, b domain.Batch) error

// Config controls flush behavior.
type Config struct {
	// MaxPositions flushes a buffer when it reaches this many commitments.
	MaxPositions int
	// Window flushes a non-empty buffer this long after its first entry,
	// even if the size cap was not reached.
	Window time.Duration
	// FlushTick is the poll interval of the Run loop.
	FlushTick time.Duration
}

// DefaultConfig returns the standard flush parameters.
func DefaultConfig() Config {
	return Config{
		MaxPositions: 100,
		Window:       30 * time.Second,
		FlushTick:    time.Second,
	}
}

// buffer accumulates commitments for a single market between flushes.
type buffer struct {
	entries  []domain.BatchEntry
	leaves   []common.Hash
	total    *big.Int
	acc      *ValueAccumulator
	openedAt time.Time
}

// Batcher buffers incoming commitments per market and flushes them into
// batches at the size cap or time window, whichever comes first. It is safe
// for concurrent use.
type Batcher struct {
	cfg    Config
	apply  ApplyFunc
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	buffers map[string]*buffer
	retries []domain.Batch
}

// New creates a Batcher that delivers flushed batches through apply.
func New(cfg Config, apply ApplyFunc, logger *slog.Logger) *Batcher {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = DefaultConfig().MaxPositions
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.FlushTick <= 0 {
		cfg.FlushTick = DefaultConfig().FlushTick
	}
	return &Batcher{
		cfg:     cfg,
		apply:   apply,
		logger:  logger.With(slog.String("component", "batcher")),
		now:     time.Now,
		buffers: make(map[string]*buffer),
	}
}

// Add buffers one commitment for the market and returns its leaf index in
// the batch under construction. The index stays valid in the flushed batch
// because leaves are never reordered. Reaching the size cap flushes the
// buffer synchronously.
func (b *Batcher) Add(ctx context.Context, marketID string, commitment common.Hash, amount *big.Int, outcome domain.Outcome) (int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, domain.NewError(domain.CodeInvalidPosition, "batch entry amount must be positive", nil)
	}
	if !outcome.Valid() {
		return 0, domain.NewError(domain.CodeInvalidPosition, "batch entry outcome must be YES or NO", nil)
	}

	b.mu.Lock()
	buf, ok := b.buffers[marketID]
	if !ok {
		buf = &buffer{total: new(big.Int), acc: NewValueAccumulator(), openedAt: b.now()}
		b.buffers[marketID] = buf
	}

	index := len(buf.entries)
	if err := buf.acc.Accumulate(amount); err != nil {
		b.mu.Unlock()
		return 0, fmt.Errorf("batch: accumulate stake: %w", err)
	}
	buf.entries = append(buf.entries, domain.BatchEntry{
		Index:      index,
		Commitment: commitment.Hex(),
		Amount:     new(big.Int).Set(amount),
		Outcome:    outcome,
	})
	buf.leaves = append(buf.leaves, commitment)
	buf.total.Add(buf.total, amount)

	var flushed *domain.Batch
	if len(buf.entries) >= b.cfg.MaxPositions {
		flushed = b.sealLocked(marketID, buf)
	}
	b.mu.Unlock()

	if flushed != nil {
		b.dispatch(ctx, *flushed)
	}
	return index, nil
}

// FlushMarket forces the market's buffer out regardless of cap or window,
// used when a market ends or during shutdown. A missing or empty buffer is a
// no-op.
func (b *Batcher) FlushMarket(ctx context.Context, marketID string) {
	b.mu.Lock()
	buf, ok := b.buffers[marketID]
	var flushed *domain.Batch
	if ok && len(buf.entries) > 0 {
		flushed = b.sealLocked(marketID, buf)
	}
	b.mu.Unlock()

	if flushed != nil {
		b.dispatch(ctx, *flushed)
	}
}

// Run drives window-based flushing and redelivery of failed batches until
// the context is cancelled.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *Batcher) tick(ctx context.Context) {
	now := b.now()

	b.mu.Lock()
	var due []domain.Batch
	for marketID, buf := range b.buffers {
		if len(buf.entries) > 0 && now.Sub(buf.openedAt) >= b.cfg.Window {
			due = append(due, *b.sealLocked(marketID, buf))
		}
	}
	due = append(due, b.retries...)
	b.retries = nil
	b.mu.Unlock()

	for _, batch := range due {
		b.dispatch(ctx, batch)
	}
}

// sealLocked builds the immutable batch from a buffer and resets the
// market's slot. Caller holds b.mu.
func (b *Batcher) sealLocked(marketID string, buf *buffer) *domain.Batch {
	batch := &domain.Batch{
		ID:              uuid.New().String(),
		MarketID:        marketID,
		Root:            MerkleRoot(buf.leaves).Hex(),
		TotalValue:      new(big.Int).Set(buf.total),
		ValueCommitment: buf.acc.Commitment(),
		PositionCount:   len(buf.entries),
		Timestamp:       b.now(),
		Entries:         buf.entries,
	}
	delete(b.buffers, marketID)
	return batch
}

// dispatch hands a batch to the engine, queueing it for redelivery on
// failure. The engine's idempotency on batch id makes redelivery safe.
func (b *Batcher) dispatch(ctx context.Context, batch domain.Batch) {
	if err := b.apply(ctx, batch); err != nil {
		// Logical rejections (ended market, invalid batch) cannot succeed on
		// redelivery; only transient failures are requeued.
		if code := domain.CodeOf(err); code != "" && !domain.IsRetryable(err) {
			b.logger.ErrorContext(ctx, "batch rejected",
				slog.String("batch_id", batch.ID),
				slog.String("market_id", batch.MarketID),
				slog.String("code", string(code)),
				slog.String("error", err.Error()),
			)
			return
		}
		b.logger.WarnContext(ctx, "batch apply failed, queued for retry",
			slog.String("batch_id", batch.ID),
			slog.String("market_id", batch.MarketID),
			slog.Int("positions", batch.PositionCount),
			slog.String("error", err.Error()),
		)
		b.mu.Lock()
		b.retries = append(b.retries, batch)
		b.mu.Unlock()
		return
	}

	b.logger.InfoContext(ctx, "batch flushed",
		slog.String("batch_id", batch.ID),
		slog.String("market_id", batch.MarketID),
		slog.Int("positions", batch.PositionCount),
		slog.String("total_value", batch.TotalValue.String()),
	)
}

// PendingCount returns the number of buffered commitments for a market,
// mainly for introspection and tests.
func (b *Batcher) PendingCount(marketID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[marketID]; ok {
		return len(buf.entries)
	}
	return 0
}
