package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/events"
	"github.com/bodega-labs/bodegad/internal/ledger"
	"github.com/bodega-labs/bodegad/internal/privstate"
	"github.com/bodega-labs/bodegad/internal/proof"
	"github.com/bodega-labs/bodegad/internal/settle"
)

// ClaimService turns a stored private position into a payout: it derives the
// nullifier, proves the winnings, runs the claim through the settler, and
// submits the result to the contract.
type ClaimService struct {
	positions *privstate.Store
	settler   *settle.Settler
	proofs    *proof.Manager
	oracles   *OracleService
	ledger    ledger.Client
	addresses ledger.Addresses
	bus       *events.Bus
	logger    *slog.Logger
}

// NewClaimService creates a ClaimService.
func NewClaimService(
	positions *privstate.Store,
	settler *settle.Settler,
	proofs *proof.Manager,
	oracles *OracleService,
	lc ledger.Client,
	addresses ledger.Addresses,
	bus *events.Bus,
	logger *slog.Logger,
) *ClaimService {
	return &ClaimService{
		positions: positions,
		settler:   settler,
		proofs:    proofs,
		oracles:   oracles,
		ledger:    lc,
		addresses: addresses,
		bus:       bus,
		logger:    logger.With(slog.String("component", "claim_service")),
	}
}

// Claim pays out a stored position. userAddress is the on-ledger address the
// position's user secret is bound to. The claim succeeds at most once per
// position.
func (s *ClaimService) Claim(ctx context.Context, positionID, userAddress string) (*big.Int, error) {
	rec, ok := s.positions.Get(positionID)
	if !ok {
		return nil, domain.NewError(domain.CodeInvalidPosition, "unknown position", nil).
			WithDetail("position_id", positionID)
	}
	if rec.Claimed {
		return nil, domain.NewError(domain.CodePositionAlreadyClaimed,
			"position already claimed", nil).WithDetail("position_id", positionID)
	}
	p := rec.Position

	ratio, err := s.settler.Ratio(ctx, p.MarketID)
	if err != nil {
		return nil, err
	}

	// Refunds (cancelled or expired markets) prove against the position's
	// own outcome; winning claims prove against the consensus outcome.
	winning := p.Outcome
	if res, err := s.oracles.Result(ctx, p.MarketID); err == nil && res.ConsensusReached {
		winning = res.Outcome
	}

	secret := proof.UserSecret(p.UserID, userAddress)
	nullifier := proof.Nullifier(p, secret)

	prf, err := s.proofs.ProveSettlement(ctx, p, winning, ratio, nullifier)
	if err != nil {
		return nil, err
	}

	payout, err := s.settler.Claim(ctx, p, nullifier, prf)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Submit(ctx, s.addresses.PredictionMarket, "claimWinnings", map[string]any{
		"marketId":  p.MarketID,
		"nullifier": nullifier.Hex(),
		"amount":    payout.String(),
		"proof":     prf.Data,
	}); err != nil {
		// The nullifier is spent locally; the ledger submit must be retried
		// by the operator, not re-proven.
		return payout, fmt.Errorf("service: submit claim to ledger: %w", err)
	}

	if err := s.positions.MarkClaimed(positionID); err != nil {
		s.logger.WarnContext(ctx, "mark claimed failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, domain.WinningsClaimedEvent{
			MarketID:  p.MarketID,
			Nullifier: nullifier.Hex(),
			Payout:    payout,
			At:        time.Now(),
		}); err != nil {
			s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "position claimed",
		slog.String("position_id", positionID),
		slog.String("market_id", p.MarketID),
		slog.String("payout", payout.String()),
	)
	return payout, nil
}

// ClaimableRatio reports the payout ratio a position would claim at right
// now, without mutating anything.
func (s *ClaimService) ClaimableRatio(ctx context.Context, positionID string) (*big.Int, error) {
	rec, ok := s.positions.Get(positionID)
	if !ok {
		return nil, domain.NewError(domain.CodeInvalidPosition, "unknown position", nil).
			WithDetail("position_id", positionID)
	}
	return s.settler.Ratio(ctx, rec.Position.MarketID)
}
