package amm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// lockTTL bounds how long a batch application may hold the per-market lock.
const lockTTL = 10 * time.Second

// Engine applies batches against market state and drives the market
// lifecycle. All reserve math is integer; the constant-product invariant
// sharesYes * sharesNo is preserved per trade up to integer rounding.
type Engine struct {
	markets domain.MarketStore
	states  domain.MarketStateStore
	batches domain.BatchStore
	locks   domain.LockManager
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewEngine creates an Engine. audit may be nil when transition auditing is
// disabled.
func NewEngine(
	markets domain.MarketStore,
	states domain.MarketStateStore,
	batches domain.BatchStore,
	locks domain.LockManager,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		markets: markets,
		states:  states,
		batches: batches,
		locks:   locks,
		audit:   audit,
		logger:  logger.With(slog.String("component", "amm_engine")),
	}
}

// Activate moves a CREATED market to ACTIVE once the creator supplies
// initial liquidity of at least the market's configured minimum, and seeds
// the reserves evenly across both outcomes.
func (e *Engine) Activate(ctx context.Context, marketID string, liquidity *big.Int) (domain.Market, error) {
	m, err := e.getMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Status != domain.MarketStatusCreated {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"only a CREATED market can be activated", nil).
			WithDetail("status", string(m.Status))
	}
	if liquidity == nil || liquidity.Cmp(m.MinLiquidity) < 0 {
		return domain.Market{}, domain.NewError(domain.CodeInvalidMarket,
			"initial liquidity below the market minimum", nil).
			WithDetail("min_liquidity", m.MinLiquidity.String())
	}

	half := new(big.Int).Rsh(liquidity, 1)
	state := domain.MarketState{
		MarketID:           marketID,
		SharesYes:          new(big.Int).Set(half),
		SharesNo:           new(big.Int).Set(half),
		Invariant:          new(big.Int).Mul(half, half),
		LiquidityParameter: new(big.Int).Set(liquidity),
		TotalVolume:        new(big.Int),
	}
	if err := e.states.Save(ctx, state); err != nil {
		return domain.Market{}, fmt.Errorf("amm: seed state for %s: %w", marketID, err)
	}

	return e.transition(ctx, m, domain.MarketStatusActive, map[string]any{
		"liquidity": liquidity.String(),
	})
}

// ApplyBatch folds a batch of trades into market state. Application is
// totally ordered per market via the distributed lock and idempotent on
// batch id: a redelivered, already-processed batch is a no-op.
func (e *Engine) ApplyBatch(ctx context.Context, b domain.Batch) error {
	if len(b.Entries) == 0 {
		return domain.NewError(domain.CodeBatchRejected, "empty batch", nil).
			WithDetail("batch_id", b.ID)
	}

	unlock, err := e.locks.Acquire(ctx, "amm:"+b.MarketID, lockTTL)
	if err != nil {
		// Lock contention is transient; the batcher redelivers.
		return fmt.Errorf("amm: acquire market lock %s: %w", b.MarketID, err)
	}
	defer unlock()

	m, err := e.getMarket(ctx, b.MarketID)
	if err != nil {
		return err
	}
	if m.Status != domain.MarketStatusActive {
		return domain.NewError(domain.CodeMarketNotActive,
			"batch applied to non-active market", nil).
			WithDetail("status", string(m.Status)).WithDetail("batch_id", b.ID)
	}
	if !b.Timestamp.Before(m.EndTime) {
		return domain.NewError(domain.CodeMarketEnded,
			"batch stamped at or after market end", nil).
			WithDetail("batch_id", b.ID)
	}

	state, err := e.states.Get(ctx, b.MarketID)
	if err != nil {
		return fmt.Errorf("amm: load state %s: %w", b.MarketID, err)
	}

	// Compute the post-batch state before touching the processed flag, so a
	// rejected batch leaves no trace.
	next := state.Clone()
	if err := applyEntries(&next, b.Entries); err != nil {
		return err
	}
	next.BatchCounter++
	next.LastTradeTime = b.Timestamp

	// Create tolerates a replayed id, so a redelivered batch falls through to
	// the commit gate instead of tripping over its own earlier record.
	if err := e.batches.Create(ctx, b); err != nil {
		return fmt.Errorf("amm: record batch %s: %w", b.ID, err)
	}

	// Commit is the idempotency gate: the processed flip and the post-batch
	// state land in one atomic step, and exactly one applier wins the flip.
	// A redelivered batch short-circuits here; a failed commit leaves the
	// batch unprocessed so redelivery applies it cleanly.
	fresh, err := e.batches.Commit(ctx, b.ID, next)
	if err != nil {
		return fmt.Errorf("amm: commit batch %s: %w", b.ID, err)
	}
	if !fresh {
		e.logger.InfoContext(ctx, "batch already processed, skipping",
			slog.String("batch_id", b.ID),
			slog.String("market_id", b.MarketID),
		)
		return nil
	}

	e.logger.InfoContext(ctx, "batch applied",
		slog.String("batch_id", b.ID),
		slog.String("market_id", b.MarketID),
		slog.Int("positions", b.PositionCount),
		slog.Int64("batch_counter", next.BatchCounter),
		slog.String("shares_yes", next.SharesYes.String()),
		slog.String("shares_no", next.SharesNo.String()),
	)
	return nil
}

// applyEntries folds trades into the state in leaf order. Each trade moves
// its stake into the chosen outcome's pool and recomputes the opposite pool
// so the constant product holds. A trade that would zero either pool rejects
// the whole batch: prices would be undefined.
func applyEntries(st *domain.MarketState, entries []domain.BatchEntry) error {
	for _, entry := range entries {
		if entry.Amount == nil || entry.Amount.Sign() <= 0 {
			return domain.NewError(domain.CodeBatchRejected,
				"batch entry with non-positive amount", nil).
				WithDetail("index", entry.Index)
		}

		chosen, opposite := st.SharesYes, st.SharesNo
		if entry.Outcome == domain.OutcomeNo {
			chosen, opposite = st.SharesNo, st.SharesYes
		}

		// Invariant for this trade is the product of the pools as they
		// stand; integer division introduces at most one unit of rounding
		// in the opposite pool.
		k := new(big.Int).Mul(chosen, opposite)
		chosen.Add(chosen, entry.Amount)
		opposite.Div(k, chosen)

		if opposite.Sign() == 0 || chosen.Sign() == 0 {
			return domain.NewError(domain.CodeBatchRejected,
				"trade would exhaust a share pool", nil).
				WithDetail("index", entry.Index)
		}

		st.TotalVolume.Add(st.TotalVolume, entry.Amount)
		st.ActivePositions++
	}

	st.Invariant.Mul(st.SharesYes, st.SharesNo)
	return nil
}

// End moves an ACTIVE market to ENDED once its end time has passed. Batches
// stamped after the end time are already rejected by ApplyBatch; End makes
// the refusal permanent.
func (e *Engine) End(ctx context.Context, marketID string, now time.Time) (domain.Market, error) {
	m, err := e.getMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"only an ACTIVE market can end", nil).WithDetail("status", string(m.Status))
	}
	if now.Before(m.EndTime) {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"market end time has not been reached", nil)
	}
	return e.transition(ctx, m, domain.MarketStatusEnded, nil)
}

// Resolve moves an ENDED (or re-voting DISPUTED) market to RESOLVED on the
// strength of a reached consensus.
func (e *Engine) Resolve(ctx context.Context, marketID string, result domain.ConsensusResult) (domain.Market, error) {
	if !result.ConsensusReached {
		return domain.Market{}, domain.NewError(domain.CodeMarketNotResolved,
			"consensus has not been reached", nil)
	}
	m, err := e.getMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Status != domain.MarketStatusEnded && m.Status != domain.MarketStatusDisputed {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"only an ENDED or DISPUTED market can resolve", nil).
			WithDetail("status", string(m.Status))
	}
	return e.transition(ctx, m, domain.MarketStatusResolved, map[string]any{
		"outcome": result.Outcome.String(),
		"round":   result.Round,
	})
}

// Dispute moves a RESOLVED market into DISPUTED while its challenge period
// is still open. Voting reopens at an escalated threshold under the oracle
// engine.
func (e *Engine) Dispute(ctx context.Context, marketID string, now time.Time) (domain.Market, error) {
	m, err := e.getMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Status != domain.MarketStatusResolved {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"only a RESOLVED market can be disputed", nil).
			WithDetail("status", string(m.Status))
	}
	if !now.Before(m.ChallengePeriodEnd) {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"challenge period has closed", nil)
	}
	return e.transition(ctx, m, domain.MarketStatusDisputed, nil)
}

// Settle finalizes a RESOLVED market after its challenge period: the creator
// bond is released and the market becomes immutable.
func (e *Engine) Settle(ctx context.Context, marketID string, now time.Time) (domain.Market, error) {
	m, err := e.getMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Status != domain.MarketStatusResolved {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"only a RESOLVED market can settle", nil).WithDetail("status", string(m.Status))
	}
	if now.Before(m.ChallengePeriodEnd) {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"challenge period still open", nil)
	}
	return e.transition(ctx, m, domain.MarketStatusSettled, map[string]any{
		"bond_released": m.CreatorBond.String(),
	})
}

// Cancel aborts a market before or during trading. Only the creator may
// cancel; cancellation releases the bond and makes every position eligible
// for a full refund claim.
func (e *Engine) Cancel(ctx context.Context, marketID, caller string) (domain.Market, error) {
	m, err := e.getMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if caller != m.Creator {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"only the market creator may cancel", nil)
	}
	if m.Status != domain.MarketStatusCreated && m.Status != domain.MarketStatusActive {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"market can no longer be cancelled", nil).WithDetail("status", string(m.Status))
	}
	return e.transition(ctx, m, domain.MarketStatusCancelled, map[string]any{
		"caller": caller,
	})
}

// Expire is the safety valve: a market whose resolution never completed by
// the hard deadline is expired, which behaves like cancellation for payout
// purposes.
func (e *Engine) Expire(ctx context.Context, marketID string, now time.Time) (domain.Market, error) {
	m, err := e.getMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Status != domain.MarketStatusActive && m.Status != domain.MarketStatusEnded {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"market is not eligible for expiry", nil).WithDetail("status", string(m.Status))
	}
	if now.Before(m.ResolutionDeadline) {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			"resolution deadline has not passed", nil)
	}
	return e.transition(ctx, m, domain.MarketStatusExpired, nil)
}

// transition applies a guarded status change, persists it, and audits it.
func (e *Engine) transition(ctx context.Context, m domain.Market, to domain.MarketStatus, detail map[string]any) (domain.Market, error) {
	if !CanTransition(m.Status, to) {
		return domain.Market{}, domain.NewError(domain.CodeInvalidTransition,
			fmt.Sprintf("no transition %s -> %s", m.Status, to), nil)
	}

	from := m.Status
	m.Status = to
	m.UpdatedAt = time.Now()
	if err := e.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("amm: persist transition %s -> %s for %s: %w", from, to, m.ID, err)
	}

	if e.audit != nil {
		entry := map[string]any{"market_id": m.ID, "from": string(from), "to": string(to)}
		for k, v := range detail {
			entry[k] = v
		}
		if err := e.audit.Log(ctx, "market_transition", entry); err != nil {
			e.logger.WarnContext(ctx, "audit log failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "market transition",
		slog.String("market_id", m.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return m, nil
}

func (e *Engine) getMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.NewError(domain.CodeMarketNotFound,
			"market not found", err).WithDetail("market_id", marketID)
	}
	return m, nil
}
