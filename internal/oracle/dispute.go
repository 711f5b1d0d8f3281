package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// OpenDispute challenges a resolved outcome and opens the next voting round
// at an escalated threshold. The caller is responsible for having checked
// the market's challenge period; this records the dispute and returns it
// together with the new round number.
func (e *Engine) OpenDispute(ctx context.Context, marketID, challenger, reason string) (domain.Dispute, int, error) {
	res, err := e.results.GetResult(ctx, marketID)
	if err != nil {
		return domain.Dispute{}, 0, domain.NewError(domain.CodeMarketNotResolved,
			"cannot dispute a market without a consensus result", err).
			WithDetail("market_id", marketID)
	}
	if !res.ConsensusReached {
		return domain.Dispute{}, 0, domain.NewError(domain.CodeMarketNotResolved,
			"cannot dispute before consensus", nil).WithDetail("market_id", marketID)
	}

	d := domain.Dispute{
		ID:         uuid.New().String(),
		MarketID:   marketID,
		Challenger: challenger,
		Round:      res.Round,
		Reason:     reason,
		OpenedAt:   time.Now(),
	}
	if err := e.results.SaveDispute(ctx, d); err != nil {
		return domain.Dispute{}, 0, fmt.Errorf("oracle: save dispute for %s: %w", marketID, err)
	}

	nextRound := res.Round + 1
	e.logger.InfoContext(ctx, "dispute opened",
		slog.String("market_id", marketID),
		slog.String("dispute_id", d.ID),
		slog.Int("next_round", nextRound),
		slog.Int64("next_threshold", e.ThresholdForRound(nextRound)),
	)
	return d, nextRound, nil
}

// ResolveDispute closes a dispute once the escalated round has been tallied.
// The dispute is upheld when the new round reached consensus on a different
// outcome than the challenged round; otherwise the original outcome stands.
// The returned result is the one that now binds the market.
func (e *Engine) ResolveDispute(ctx context.Context, d domain.Dispute, challenged domain.ConsensusResult) (domain.ConsensusResult, bool, error) {
	nextRound := d.Round + 1
	res, err := e.Tally(ctx, d.MarketID, nextRound)
	if err != nil {
		return domain.ConsensusResult{}, false, err
	}
	if !res.ConsensusReached {
		return domain.ConsensusResult{}, false, domain.NewError(domain.CodeMarketNotResolved,
			"escalated round has not reached consensus", nil).
			WithDetail("market_id", d.MarketID).WithDetail("round", nextRound)
	}

	upheld := res.Outcome != challenged.Outcome
	now := time.Now()
	d.ResolvedAt = &now
	d.Upheld = &upheld
	if err := e.results.SaveDispute(ctx, d); err != nil {
		return domain.ConsensusResult{}, false, fmt.Errorf("oracle: close dispute %s: %w", d.ID, err)
	}

	binding := res
	if !upheld {
		// An unsuccessful dispute confirms the original outcome.
		binding = challenged
	}
	if err := e.results.SaveResult(ctx, binding); err != nil {
		return domain.ConsensusResult{}, false, fmt.Errorf("oracle: save binding result for %s: %w", d.MarketID, err)
	}

	e.logger.InfoContext(ctx, "dispute resolved",
		slog.String("market_id", d.MarketID),
		slog.String("dispute_id", d.ID),
		slog.Bool("upheld", upheld),
		slog.String("outcome", binding.Outcome.String()),
	)
	return binding, upheld, nil
}
