package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/privstate"
)

// BetService defines what the bet handler needs from the service layer.
type BetService interface {
	PlaceBet(ctx context.Context, userID, marketID string, amount *big.Int, outcome domain.Outcome) (privstate.Record, error)
	Positions(marketID string) []privstate.Record
}

// BetHandler serves position endpoints. Responses expose only what the
// local owner already knows; commitments and nonces never leave the node.
type BetHandler struct {
	bets   BetService
	userID string
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler bound to the local user identity.
func NewBetHandler(bets BetService, userID string, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		userID: userID,
		logger: logger,
	}
}

type placeBetRequest struct {
	Amount  string `json:"amount"`
	Outcome string `json:"outcome"`
}

type positionResponse struct {
	PositionID string `json:"position_id"`
	MarketID   string `json:"market_id"`
	Amount     string `json:"amount"`
	Outcome    string `json:"outcome"`
	LeafIndex  int    `json:"leaf_index"`
	Claimed    bool   `json:"claimed"`
}

func toPositionResponse(rec privstate.Record) positionResponse {
	return positionResponse{
		PositionID: rec.PositionID,
		MarketID:   rec.Position.MarketID,
		Amount:     rec.Position.Amount.String(),
		Outcome:    rec.Position.Outcome.String(),
		LeafIndex:  rec.LeafIndex,
		Claimed:    rec.Claimed,
	}
}

// PlaceBet commits a stake on one side of an active market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount: "+err.Error())
		return
	}
	outcome, err := parseOutcome(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.bets.PlaceBet(r.Context(), h.userID, marketID, amount, outcome)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: place bet failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPositionResponse(rec))
}

// ListPositions returns the local positions held on a market.
// GET /api/markets/{id}/positions
func (h *BetHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	recs := h.bets.Positions(marketID)
	out := make([]positionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toPositionResponse(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}
