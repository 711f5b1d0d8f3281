// Package oracle aggregates independent oracle votes into one canonical
// consensus result per market, with dispute handling that escalates the
// agreement threshold between rounds.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// Config holds the consensus parameters.
type Config struct {
	// BaseThresholdPct is the percentage of participating oracle weight
	// that must agree on one outcome in round 1.
	BaseThresholdPct int64
	// DisputeEscalationPct is added to the threshold for each dispute
	// round beyond the first.
	DisputeEscalationPct int64
	// MaxThresholdPct caps escalation.
	MaxThresholdPct int64
	// MinOracles is the minimum number of participating oracles before a
	// result can be declared.
	MinOracles int
}

// DefaultConfig returns the standard consensus parameters.
func DefaultConfig() Config {
	return Config{
		BaseThresholdPct:     66,
		DisputeEscalationPct: 10,
		MaxThresholdPct:      95,
		MinOracles:           3,
	}
}

// Engine aggregates votes. Aggregation is commutative: any permutation of
// vote arrival yields the same decision once all votes are in.
type Engine struct {
	votes   domain.VoteStore
	results domain.ConsensusStore
	cfg     Config
	logger  *slog.Logger
}

// NewEngine creates a consensus Engine.
func NewEngine(votes domain.VoteStore, results domain.ConsensusStore, cfg Config, logger *slog.Logger) *Engine {
	if cfg.BaseThresholdPct <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		votes:   votes,
		results: results,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "oracle_consensus")),
	}
}

// ThresholdForRound returns the agreement threshold for a voting round.
// Round 1 uses the base threshold; each dispute round raises it by the
// configured increment, capped at the maximum.
func (e *Engine) ThresholdForRound(round int) int64 {
	if round < 1 {
		round = 1
	}
	t := e.cfg.BaseThresholdPct + e.cfg.DisputeEscalationPct*int64(round-1)
	if t > e.cfg.MaxThresholdPct {
		t = e.cfg.MaxThresholdPct
	}
	return t
}

// SubmitVote records one oracle's vote for a market round. Each oracle votes
// at most once per round; the store rejects duplicates.
func (e *Engine) SubmitVote(ctx context.Context, vote domain.OracleVote) error {
	if vote.OracleID == "" || vote.MarketID == "" {
		return domain.NewError(domain.CodeInvalidMarket, "vote missing oracle or market id", nil)
	}
	if !vote.Outcome.Valid() {
		return domain.NewError(domain.CodeInvalidMarket, "vote outcome must be YES or NO", nil)
	}
	if vote.Confidence < 0 || vote.Confidence > 100 {
		return domain.NewError(domain.CodeInvalidMarket, "vote confidence must be in [0,100]", nil)
	}
	if vote.Weight <= 0 {
		return domain.NewError(domain.CodeInvalidMarket, "vote weight must be positive", nil)
	}
	if vote.Round < 1 {
		vote.Round = 1
	}

	if err := e.votes.Insert(ctx, vote); err != nil {
		return fmt.Errorf("oracle: record vote from %s on %s: %w", vote.OracleID, vote.MarketID, err)
	}

	e.logger.InfoContext(ctx, "vote recorded",
		slog.String("market_id", vote.MarketID),
		slog.String("oracle_id", vote.OracleID),
		slog.Int("round", vote.Round),
	)
	return nil
}

// Tally aggregates the round's votes into a ConsensusResult and persists it.
// The result is reached when the winning outcome's share of participating
// weight meets the round threshold and enough oracles took part. A result
// that already reached consensus for this round is immutable and returned
// as-is.
func (e *Engine) Tally(ctx context.Context, marketID string, round int) (domain.ConsensusResult, error) {
	if round < 1 {
		round = 1
	}

	if existing, err := e.results.GetResult(ctx, marketID); err == nil &&
		existing.ConsensusReached && existing.Round == round {
		return existing, nil
	}

	votes, err := e.votes.ListByRound(ctx, marketID, round)
	if err != nil {
		return domain.ConsensusResult{}, fmt.Errorf("oracle: list votes for %s round %d: %w", marketID, round, err)
	}

	threshold := e.ThresholdForRound(round)
	result := domain.ConsensusResult{
		MarketID:         marketID,
		Round:            round,
		DisputeThreshold: threshold,
	}

	if len(votes) == 0 {
		return result, nil
	}

	var totalWeight, yesWeight, noWeight int64
	var yesConf, noConf int64 // confidence weighted by vote weight
	for _, v := range votes {
		totalWeight += v.Weight
		if v.Outcome == domain.OutcomeYes {
			yesWeight += v.Weight
			yesConf += v.Confidence * v.Weight
		} else {
			noWeight += v.Weight
			noConf += v.Confidence * v.Weight
		}
	}

	winning, winWeight, winConf := domain.OutcomeYes, yesWeight, yesConf
	if noWeight > yesWeight {
		winning, winWeight, winConf = domain.OutcomeNo, noWeight, noConf
	}

	result.Outcome = winning
	result.ParticipatingOracles = int64(len(votes))
	if winWeight > 0 {
		result.Confidence = winConf / winWeight
	}

	// Agreement is measured against participating weight, not all
	// registered oracles.
	agreementPct := winWeight * 100 / totalWeight
	if agreementPct >= threshold && len(votes) >= e.cfg.MinOracles {
		result.ConsensusReached = true
		result.FinalizedAt = time.Now()
	}

	if err := e.results.SaveResult(ctx, result); err != nil {
		return domain.ConsensusResult{}, fmt.Errorf("oracle: save result for %s: %w", marketID, err)
	}

	if result.ConsensusReached {
		e.logger.InfoContext(ctx, "consensus reached",
			slog.String("market_id", marketID),
			slog.String("outcome", result.Outcome.String()),
			slog.Int64("agreement_pct", agreementPct),
			slog.Int("round", round),
		)
	}
	return result, nil
}

// Result returns the latest persisted consensus result for a market.
func (e *Engine) Result(ctx context.Context, marketID string) (domain.ConsensusResult, error) {
	res, err := e.results.GetResult(ctx, marketID)
	if err != nil {
		return domain.ConsensusResult{}, domain.NewError(domain.CodeMarketNotResolved,
			"no consensus result for market", err).WithDetail("market_id", marketID)
	}
	return res, nil
}
