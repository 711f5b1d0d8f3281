package settle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/proof"
)

const (
	// guardTTL covers the window in which a duplicate in-flight claim can
	// race the durable spent-set insert.
	guardTTL = 5 * time.Minute
	// guardCleanupEvery bounds guard memory.
	guardCleanupEvery = time.Minute
)

// Config holds settlement parameters.
type Config struct {
	// MaxPayoutRatio clamps the payout multiplier; 0 disables clamping.
	MaxPayoutRatio int64
}

// DefaultConfig allows up to a 100x payout.
func DefaultConfig() Config {
	return Config{MaxPayoutRatio: 10_000}
}

// Settler validates claims against the published consensus and pays out
// exactly once per position. The durable nullifier spent-set provides the
// atomic check-and-insert; the in-process guard only short-circuits racing
// duplicates before proof verification.
type Settler struct {
	markets    domain.MarketStore
	states     domain.MarketStateStore
	results    domain.ConsensusStore
	nullifiers domain.NullifierStore
	verifier   proof.Verifier
	guard      *claimGuard
	cfg        Config
	logger     *slog.Logger
}

// NewSettler creates a Settler.
func NewSettler(
	markets domain.MarketStore,
	states domain.MarketStateStore,
	results domain.ConsensusStore,
	nullifiers domain.NullifierStore,
	verifier proof.Verifier,
	cfg Config,
	logger *slog.Logger,
) *Settler {
	if cfg.MaxPayoutRatio < 0 {
		cfg.MaxPayoutRatio = 0
	}
	return &Settler{
		markets:    markets,
		states:     states,
		results:    results,
		nullifiers: nullifiers,
		verifier:   verifier,
		guard:      newClaimGuard(guardTTL),
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "settler")),
	}
}

// Ratio returns the payout ratio currently in force for the market, without
// mutating anything. Cancelled and expired markets refund principal.
func (s *Settler) Ratio(ctx context.Context, marketID string) (*big.Int, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, domain.NewError(domain.CodeMarketNotFound, "market not found", err).
			WithDetail("market_id", marketID)
	}
	if m.Status.Refundable() {
		return RefundRatio(), nil
	}

	res, err := s.results.GetResult(ctx, marketID)
	if err != nil || !res.ConsensusReached {
		return nil, domain.NewError(domain.CodeMarketNotResolved, "market not resolved", err).
			WithDetail("market_id", marketID)
	}
	state, err := s.states.Get(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("settle: load state %s: %w", marketID, err)
	}
	return PayoutRatio(state, res.Outcome, s.cfg.MaxPayoutRatio), nil
}

// Claim validates and executes one claim. On success the nullifier is in
// the spent-set and the returned amount is released to the claimant. Every
// rejection leaves all state untouched.
//
// Two claims racing on the same position yield exactly one success; the
// loser fails with POSITION_ALREADY_CLAIMED.
func (s *Settler) Claim(
	ctx context.Context,
	position domain.PrivatePosition,
	nullifier common.Hash,
	settlementProof proof.Proof,
) (*big.Int, error) {
	if err := position.Validate(); err != nil {
		return nil, err
	}

	m, err := s.markets.GetByID(ctx, position.MarketID)
	if err != nil {
		return nil, domain.NewError(domain.CodeMarketNotFound, "market not found", err).
			WithDetail("market_id", position.MarketID)
	}

	var ratio *big.Int
	switch {
	case m.Status.Refundable():
		// Cancelled or expired market: every position refunds its
		// principal, outcome irrelevant.
		ratio = RefundRatio()

	case m.Status == domain.MarketStatusResolved || m.Status == domain.MarketStatusSettled:
		res, err := s.results.GetResult(ctx, position.MarketID)
		if err != nil || !res.ConsensusReached {
			return nil, domain.NewError(domain.CodeMarketNotResolved, "market not resolved", err).
				WithDetail("market_id", position.MarketID)
		}
		if position.Outcome != res.Outcome {
			return nil, domain.NewError(domain.CodePositionLost, "position outcome did not win", nil).
				WithDetail("winning_outcome", res.Outcome.String())
		}
		state, err := s.states.Get(ctx, position.MarketID)
		if err != nil {
			return nil, fmt.Errorf("settle: load state %s: %w", position.MarketID, err)
		}
		ratio = PayoutRatio(state, res.Outcome, s.cfg.MaxPayoutRatio)

	default:
		return nil, domain.NewError(domain.CodeMarketNotResolved, "market not resolved", nil).
			WithDetail("status", string(m.Status))
	}

	payout := Winnings(position.Amount, ratio)

	if err := s.checkProof(ctx, settlementProof, nullifier, payout); err != nil {
		return nil, err
	}

	nhex := nullifier.Hex()
	if !s.guard.acquire(nhex) {
		return nil, domain.NewError(domain.CodePositionAlreadyClaimed,
			"position already claimed", nil).WithDetail("nullifier", nhex)
	}

	// The durable check-and-insert is the single atomic step that decides
	// the race.
	fresh, err := s.nullifiers.Spend(ctx, nhex, position.MarketID, payout)
	if err != nil {
		// Let the caller retry a transient store failure.
		s.guard.release(nhex)
		return nil, fmt.Errorf("settle: spend nullifier: %w", err)
	}
	if !fresh {
		return nil, domain.NewError(domain.CodePositionAlreadyClaimed,
			"position already claimed", nil).WithDetail("nullifier", nhex)
	}

	s.logger.InfoContext(ctx, "claim settled",
		slog.String("market_id", position.MarketID),
		slog.String("nullifier", nhex),
		slog.String("ratio", ratio.String()),
		slog.String("payout", payout.String()),
	)
	return payout, nil
}

// checkProof verifies the settlement proof and that its public inputs match
// this claim.
func (s *Settler) checkProof(ctx context.Context, prf proof.Proof, nullifier common.Hash, payout *big.Int) error {
	if prf.Circuit != proof.CircuitProveWinnings {
		return domain.NewError(domain.CodeInvalidPosition, "wrong proof circuit", nil).
			WithDetail("circuit", prf.Circuit)
	}
	if prf.PublicInputs["nullifier"] != nullifier.Hex() {
		return domain.NewError(domain.CodeInvalidPosition, "proof nullifier mismatch", nil)
	}
	if prf.PublicInputs["winningsAmount"] != payout.String() {
		return domain.NewError(domain.CodeInvalidPosition, "proof payout mismatch", nil).
			WithDetail("expected", payout.String())
	}

	ok, err := s.verifier.Verify(ctx, prf)
	if err != nil {
		return domain.NewError(domain.CodeProofGeneration, "settlement proof verification failed", err)
	}
	if !ok {
		return domain.NewError(domain.CodeInvalidPosition, "settlement proof invalid", nil)
	}
	return nil
}

// RunGuardCleanup evicts expired guard entries until ctx is cancelled.
func (s *Settler) RunGuardCleanup(ctx context.Context) error {
	ticker := time.NewTicker(guardCleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.guard.cleanup()
		}
	}
}
