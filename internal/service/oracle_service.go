package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bodega-labs/bodegad/internal/amm"
	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/events"
	"github.com/bodega-labs/bodegad/internal/ledger"
	"github.com/bodega-labs/bodegad/internal/oracle"
)

// OracleService bridges oracle voting and the market lifecycle: it accepts
// votes, tallies rounds, resolves markets on reached consensus, and runs the
// dispute flow.
type OracleService struct {
	consensus *oracle.Engine
	engine    *amm.Engine
	markets   domain.MarketStore
	ledger    ledger.Client
	addresses ledger.Addresses
	bus       *events.Bus
	logger    *slog.Logger
}

// NewOracleService creates an OracleService.
func NewOracleService(
	consensus *oracle.Engine,
	engine *amm.Engine,
	markets domain.MarketStore,
	lc ledger.Client,
	addresses ledger.Addresses,
	bus *events.Bus,
	logger *slog.Logger,
) *OracleService {
	return &OracleService{
		consensus: consensus,
		engine:    engine,
		markets:   markets,
		ledger:    lc,
		addresses: addresses,
		bus:       bus,
		logger:    logger.With(slog.String("component", "oracle_service")),
	}
}

// SubmitVote records one oracle's vote for an ENDED or re-voting market and
// mirrors it to the consensus contract.
func (s *OracleService) SubmitVote(ctx context.Context, vote domain.OracleVote) error {
	m, err := s.markets.GetByID(ctx, vote.MarketID)
	if err != nil {
		return domain.NewError(domain.CodeMarketNotFound, "market not found", err).
			WithDetail("market_id", vote.MarketID)
	}
	if m.Status != domain.MarketStatusEnded && m.Status != domain.MarketStatusDisputed {
		return domain.NewError(domain.CodeInvalidTransition,
			"voting is only open on ended or disputed markets", nil).
			WithDetail("status", string(m.Status))
	}
	if vote.SubmittedAt.IsZero() {
		vote.SubmittedAt = time.Now()
	}

	if err := s.consensus.SubmitVote(ctx, vote); err != nil {
		return err
	}

	if _, err := s.ledger.Submit(ctx, s.addresses.OracleConsensus, "submitVote", map[string]any{
		"marketId":   vote.MarketID,
		"oracleId":   vote.OracleID,
		"round":      vote.Round,
		"outcome":    int(vote.Outcome),
		"confidence": vote.Confidence,
	}); err != nil {
		return fmt.Errorf("service: mirror vote to ledger: %w", err)
	}

	s.publish(ctx, domain.VoteSubmittedEvent{
		MarketID: vote.MarketID,
		OracleID: vote.OracleID,
		Round:    vote.Round,
		At:       vote.SubmittedAt,
	})
	return nil
}

// TallyAndResolve tallies the round and, if consensus is reached, resolves
// the market. Returns the tally either way.
func (s *OracleService) TallyAndResolve(ctx context.Context, marketID string, round int) (domain.ConsensusResult, error) {
	res, err := s.consensus.Tally(ctx, marketID, round)
	if err != nil {
		return domain.ConsensusResult{}, err
	}
	if !res.ConsensusReached {
		return res, nil
	}

	m, err := s.engine.Resolve(ctx, marketID, res)
	if err != nil {
		// Tally is idempotent for a reached round; resolution can be retried.
		return res, err
	}

	if _, err := s.ledger.Submit(ctx, s.addresses.OracleConsensus, "finalizeOutcome", map[string]any{
		"marketId": marketID,
		"outcome":  int(res.Outcome),
		"round":    res.Round,
	}); err != nil {
		return res, fmt.Errorf("service: finalize outcome on ledger: %w", err)
	}

	s.publish(ctx, domain.ConsensusReachedEvent{
		MarketID:   marketID,
		Outcome:    res.Outcome,
		Confidence: res.Confidence,
		Round:      res.Round,
		At:         res.FinalizedAt,
	})
	s.publish(ctx, domain.MarketStatusChangedEvent{
		MarketID: marketID,
		From:     domain.MarketStatusEnded,
		To:       m.Status,
		At:       m.UpdatedAt,
	})
	return res, nil
}

// OpenDispute challenges a resolved outcome within the market's challenge
// period. The market moves to DISPUTED and voting reopens one round up at an
// escalated threshold.
func (s *OracleService) OpenDispute(ctx context.Context, marketID, challenger, reason string) (domain.Dispute, error) {
	now := time.Now()
	if _, err := s.engine.Dispute(ctx, marketID, now); err != nil {
		return domain.Dispute{}, err
	}

	d, nextRound, err := s.consensus.OpenDispute(ctx, marketID, challenger, reason)
	if err != nil {
		return domain.Dispute{}, err
	}

	if _, err := s.ledger.Submit(ctx, s.addresses.OracleConsensus, "openDispute", map[string]any{
		"marketId":   marketID,
		"disputeId":  d.ID,
		"challenger": challenger,
		"round":      d.Round,
	}); err != nil {
		return d, fmt.Errorf("service: open dispute on ledger: %w", err)
	}

	s.logger.InfoContext(ctx, "dispute escalated",
		slog.String("market_id", marketID),
		slog.Int("next_round", nextRound),
	)
	s.publish(ctx, domain.DisputeOpenedEvent{
		MarketID:  marketID,
		DisputeID: d.ID,
		Round:     d.Round,
		At:        d.OpenedAt,
	})
	return d, nil
}

// ResolveDispute tallies the escalated round and closes the dispute. An
// upheld dispute re-resolves the market on the new outcome; a failed one
// confirms the original.
func (s *OracleService) ResolveDispute(ctx context.Context, d domain.Dispute) (domain.ConsensusResult, error) {
	challenged, err := s.consensus.Result(ctx, d.MarketID)
	if err != nil {
		return domain.ConsensusResult{}, err
	}

	binding, upheld, err := s.consensus.ResolveDispute(ctx, d, challenged)
	if err != nil {
		return domain.ConsensusResult{}, err
	}

	m, err := s.engine.Resolve(ctx, d.MarketID, binding)
	if err != nil {
		return binding, err
	}

	s.logger.InfoContext(ctx, "dispute closed",
		slog.String("market_id", d.MarketID),
		slog.Bool("upheld", upheld),
		slog.String("outcome", binding.Outcome.String()),
	)
	s.publish(ctx, domain.MarketStatusChangedEvent{
		MarketID: d.MarketID,
		From:     domain.MarketStatusDisputed,
		To:       m.Status,
		At:       m.UpdatedAt,
	})
	return binding, nil
}

// Result returns the binding consensus result for a market.
func (s *OracleService) Result(ctx context.Context, marketID string) (domain.ConsensusResult, error) {
	return s.consensus.Result(ctx, marketID)
}

func (s *OracleService) publish(ctx context.Context, e domain.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("kind", string(e.Kind())),
			slog.String("error", err.Error()),
		)
	}
}
