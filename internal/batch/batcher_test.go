package batch

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bodega-labs/bodegad/internal/crypto"
	"github.com/bodega-labs/bodegad/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// batchSink captures applied batches and can fail a configurable number of
// deliveries first.
type batchSink struct {
	mu       sync.Mutex
	applied  []domain.Batch
	failNext int
	failWith error
}

func (s *batchSink) apply(_ context.Context, b domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return s.failWith
	}
	s.applied = append(s.applied, b)
	return nil
}

func (s *batchSink) batches() []domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Batch(nil), s.applied...)
}

func newTestBatcher(cfg Config, sink *batchSink) *Batcher {
	return New(cfg, sink.apply, testLogger())
}

func commitmentFor(i int) common.Hash {
	return crypto.TranscriptHash("position", string(rune('a'+i)))
}

func TestAddAssignsSequentialLeafIndexes(t *testing.T) {
	sink := &batchSink{}
	b := newTestBatcher(Config{MaxPositions: 100, Window: time.Minute, FlushTick: time.Second}, sink)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		idx, err := b.Add(ctx, "mkt-1", commitmentFor(i), big.NewInt(100), domain.OutcomeYes)
		if err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
		if idx != i {
			t.Errorf("leaf index = %d, want %d", idx, i)
		}
	}
	if got := b.PendingCount("mkt-1"); got != 5 {
		t.Errorf("pending = %d, want 5", got)
	}
	if got := b.PendingCount("mkt-2"); got != 0 {
		t.Errorf("pending for other market = %d, want 0", got)
	}
}

func TestAddValidation(t *testing.T) {
	sink := &batchSink{}
	b := newTestBatcher(Config{MaxPositions: 10, Window: time.Minute, FlushTick: time.Second}, sink)
	ctx := context.Background()

	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), nil, domain.OutcomeYes); domain.CodeOf(err) != domain.CodeInvalidPosition {
		t.Errorf("nil amount: err = %v, want INVALID_POSITION", err)
	}
	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), big.NewInt(0), domain.OutcomeYes); domain.CodeOf(err) != domain.CodeInvalidPosition {
		t.Errorf("zero amount: err = %v, want INVALID_POSITION", err)
	}
	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), big.NewInt(1), domain.Outcome(7)); domain.CodeOf(err) != domain.CodeInvalidPosition {
		t.Errorf("bad outcome: err = %v, want INVALID_POSITION", err)
	}
	if got := b.PendingCount("mkt-1"); got != 0 {
		t.Errorf("rejected entries buffered: %d", got)
	}
}

func TestCapFlushesSynchronously(t *testing.T) {
	sink := &batchSink{}
	b := newTestBatcher(Config{MaxPositions: 3, Window: time.Hour, FlushTick: time.Second}, sink)
	ctx := context.Background()

	leaves := make([]common.Hash, 3)
	total := new(big.Int)
	for i := 0; i < 3; i++ {
		leaves[i] = commitmentFor(i)
		amount := big.NewInt(int64(100 * (i + 1)))
		total.Add(total, amount)
		if _, err := b.Add(ctx, "mkt-1", leaves[i], amount, domain.OutcomeNo); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}

	got := sink.batches()
	if len(got) != 1 {
		t.Fatalf("flushed batches = %d, want 1", len(got))
	}
	flushed := got[0]
	if flushed.MarketID != "mkt-1" {
		t.Errorf("market = %s", flushed.MarketID)
	}
	if flushed.PositionCount != 3 || len(flushed.Entries) != 3 {
		t.Errorf("position count = %d/%d, want 3", flushed.PositionCount, len(flushed.Entries))
	}
	if flushed.TotalValue.Cmp(total) != 0 {
		t.Errorf("total = %s, want %s", flushed.TotalValue, total)
	}
	if flushed.Root != MerkleRoot(leaves).Hex() {
		t.Errorf("root = %s, want %s", flushed.Root, MerkleRoot(leaves).Hex())
	}
	if len(flushed.ValueCommitment) == 0 {
		t.Error("flushed batch has no value commitment")
	}
	for i, e := range flushed.Entries {
		if e.Index != i {
			t.Errorf("entry %d has index %d", i, e.Index)
		}
		if e.Commitment != leaves[i].Hex() {
			t.Errorf("entry %d commitment mismatch", i)
		}
	}
	if got := b.PendingCount("mkt-1"); got != 0 {
		t.Errorf("buffer not reset after flush: %d", got)
	}
}

func TestWindowFlushOnTick(t *testing.T) {
	sink := &batchSink{}
	b := newTestBatcher(Config{MaxPositions: 100, Window: 30 * time.Second, FlushTick: time.Second}, sink)
	ctx := context.Background()

	base := time.Now()
	b.now = func() time.Time { return base }

	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), big.NewInt(500), domain.OutcomeYes); err != nil {
		t.Fatal(err)
	}

	// Inside the window nothing flushes.
	b.now = func() time.Time { return base.Add(10 * time.Second) }
	b.tick(ctx)
	if len(sink.batches()) != 0 {
		t.Fatal("batch flushed before the window elapsed")
	}

	b.now = func() time.Time { return base.Add(31 * time.Second) }
	b.tick(ctx)
	got := sink.batches()
	if len(got) != 1 {
		t.Fatalf("flushed batches = %d, want 1", len(got))
	}
	if got[0].PositionCount != 1 {
		t.Errorf("position count = %d, want 1", got[0].PositionCount)
	}
}

func TestFlushMarketForcesBufferOut(t *testing.T) {
	sink := &batchSink{}
	b := newTestBatcher(Config{MaxPositions: 100, Window: time.Hour, FlushTick: time.Second}, sink)
	ctx := context.Background()

	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), big.NewInt(42), domain.OutcomeYes); err != nil {
		t.Fatal(err)
	}
	b.FlushMarket(ctx, "mkt-1")
	if len(sink.batches()) != 1 {
		t.Fatalf("flushed batches = %d, want 1", len(sink.batches()))
	}

	// Flushing an empty or unknown market is a no-op.
	b.FlushMarket(ctx, "mkt-1")
	b.FlushMarket(ctx, "never-seen")
	if len(sink.batches()) != 1 {
		t.Errorf("empty flush produced a batch")
	}
}

func TestMarketsBufferIndependently(t *testing.T) {
	sink := &batchSink{}
	b := newTestBatcher(Config{MaxPositions: 2, Window: time.Hour, FlushTick: time.Second}, sink)
	ctx := context.Background()

	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), big.NewInt(1), domain.OutcomeYes); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Add(ctx, "mkt-2", commitmentFor(1), big.NewInt(1), domain.OutcomeNo); err != nil {
		t.Fatal(err)
	}
	if len(sink.batches()) != 0 {
		t.Fatal("cross-market entries flushed a batch")
	}

	// The second mkt-1 entry hits that market's cap alone.
	if _, err := b.Add(ctx, "mkt-1", commitmentFor(2), big.NewInt(1), domain.OutcomeYes); err != nil {
		t.Fatal(err)
	}
	got := sink.batches()
	if len(got) != 1 || got[0].MarketID != "mkt-1" {
		t.Fatalf("batches = %+v, want one mkt-1 batch", got)
	}
	if b.PendingCount("mkt-2") != 1 {
		t.Errorf("mkt-2 buffer disturbed")
	}
}

func TestTransientFailureIsRedelivered(t *testing.T) {
	sink := &batchSink{
		failNext: 1,
		failWith: domain.NewError(domain.CodeLedger, "node unreachable", nil),
	}
	b := newTestBatcher(Config{MaxPositions: 1, Window: time.Hour, FlushTick: time.Second}, sink)
	ctx := context.Background()

	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), big.NewInt(10), domain.OutcomeYes); err != nil {
		t.Fatal(err)
	}
	if len(sink.batches()) != 0 {
		t.Fatal("failed delivery counted as applied")
	}

	// The next tick redelivers the queued batch.
	b.tick(ctx)
	got := sink.batches()
	if len(got) != 1 {
		t.Fatalf("redelivered batches = %d, want 1", len(got))
	}
	if got[0].PositionCount != 1 {
		t.Errorf("redelivered batch position count = %d", got[0].PositionCount)
	}
}

func TestLogicalRejectionIsDropped(t *testing.T) {
	sink := &batchSink{
		failNext: 1,
		failWith: domain.NewError(domain.CodeMarketEnded, "market over", nil),
	}
	b := newTestBatcher(Config{MaxPositions: 1, Window: time.Hour, FlushTick: time.Second}, sink)
	ctx := context.Background()

	if _, err := b.Add(ctx, "mkt-1", commitmentFor(0), big.NewInt(10), domain.OutcomeYes); err != nil {
		t.Fatal(err)
	}

	// A rejection for cause is never requeued.
	b.tick(ctx)
	b.tick(ctx)
	if len(sink.batches()) != 0 {
		t.Errorf("rejected batch was redelivered")
	}
}

func TestDefaultsAppliedForZeroConfig(t *testing.T) {
	sink := &batchSink{}
	b := New(Config{}, sink.apply, testLogger())
	def := DefaultConfig()
	if b.cfg.MaxPositions != def.MaxPositions {
		t.Errorf("max positions = %d, want %d", b.cfg.MaxPositions, def.MaxPositions)
	}
	if b.cfg.Window != def.Window {
		t.Errorf("window = %v, want %v", b.cfg.Window, def.Window)
	}
	if b.cfg.FlushTick != def.FlushTick {
		t.Errorf("flush tick = %v, want %v", b.cfg.FlushTick, def.FlushTick)
	}
}
