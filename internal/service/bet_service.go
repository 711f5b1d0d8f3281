package service

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/bodega-labs/bodegad/internal/batch"
	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/ledger"
	"github.com/bodega-labs/bodegad/internal/privstate"
	"github.com/bodega-labs/bodegad/internal/proof"
)

// nonceBits sizes the random nonce blinding each commitment.
const nonceBits = 128

// BetService places private positions: it proves the commitment, submits it
// to the contract, hands it to the batcher, and records the private half
// locally so the position can be claimed later.
type BetService struct {
	markets   domain.MarketStore
	proofs    *proof.Manager
	batcher   *batch.Batcher
	positions *privstate.Store
	ledger    ledger.Client
	addresses ledger.Addresses
	logger    *slog.Logger
}

// NewBetService creates a BetService.
func NewBetService(
	markets domain.MarketStore,
	proofs *proof.Manager,
	batcher *batch.Batcher,
	positions *privstate.Store,
	lc ledger.Client,
	addresses ledger.Addresses,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		markets:   markets,
		proofs:    proofs,
		batcher:   batcher,
		positions: positions,
		ledger:    lc,
		addresses: addresses,
		logger:    logger.With(slog.String("component", "bet_service")),
	}
}

// PlaceBet commits a stake on one outcome of an active market. The returned
// record holds everything needed to claim: the private position, its leaf
// index, and the local position id.
func (s *BetService) PlaceBet(
	ctx context.Context,
	userID, marketID string,
	amount *big.Int,
	outcome domain.Outcome,
) (privstate.Record, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return privstate.Record{}, domain.NewError(domain.CodeMarketNotFound, "market not found", err).
			WithDetail("market_id", marketID)
	}
	now := time.Now()
	if !m.TradingOpen(now) {
		if m.Status == domain.MarketStatusActive {
			return privstate.Record{}, domain.NewError(domain.CodeMarketEnded,
				"market end time has passed", nil).WithDetail("market_id", marketID)
		}
		return privstate.Record{}, domain.NewError(domain.CodeMarketNotActive,
			"market is not accepting positions", nil).
			WithDetail("market_id", marketID).WithDetail("status", string(m.Status))
	}

	nonce, err := randomNonce()
	if err != nil {
		return privstate.Record{}, fmt.Errorf("service: generate nonce: %w", err)
	}

	position := domain.PrivatePosition{
		UserID:    userID,
		Amount:    amount,
		Outcome:   outcome,
		Nonce:     nonce,
		MarketID:  marketID,
		Timestamp: now,
	}

	commitment, prf, err := s.proofs.ProvePosition(ctx, position)
	if err != nil {
		return privstate.Record{}, err
	}

	_, err = s.ledger.Submit(ctx, s.addresses.PredictionMarket, "placeBet", map[string]any{
		"marketId":   marketID,
		"commitment": commitment.Hex(),
		"amount":     amount.String(),
		"outcome":    int(outcome),
		"proof":      prf.Data,
	})
	if err != nil {
		return privstate.Record{}, fmt.Errorf("service: submit bet to ledger: %w", err)
	}

	leafIndex, err := s.batcher.Add(ctx, marketID, commitment, amount, outcome)
	if err != nil {
		return privstate.Record{}, err
	}

	rec := privstate.Record{
		PositionID: uuid.New().String(),
		Position:   position,
		LeafIndex:  leafIndex,
	}
	if err := s.positions.Put(rec); err != nil {
		// The bet is on the ledger but the private half is lost; surface
		// loudly, the claim depends on it.
		return privstate.Record{}, fmt.Errorf("service: store private position: %w", err)
	}

	s.logger.InfoContext(ctx, "bet placed",
		slog.String("market_id", marketID),
		slog.String("position_id", rec.PositionID),
		slog.String("commitment", commitment.Hex()),
		slog.Int("leaf_index", leafIndex),
	)
	return rec, nil
}

// Positions returns the caller's stored positions for a market.
func (s *BetService) Positions(marketID string) []privstate.Record {
	return s.positions.ByMarket(marketID)
}

// Exposure returns the total unclaimed stake across all markets.
func (s *BetService) Exposure() *big.Int {
	return s.positions.TotalExposure()
}

func randomNonce() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), nonceBits)
	return crand.Int(crand.Reader, limit)
}
