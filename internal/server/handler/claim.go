package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
)

// ClaimService defines what the claim handler needs from the service layer.
type ClaimService interface {
	Claim(ctx context.Context, positionID, userAddress string) (*big.Int, error)
	ClaimableRatio(ctx context.Context, positionID string) (*big.Int, error)
}

// ClaimHandler serves settlement endpoints for locally held positions.
type ClaimHandler struct {
	claims  ClaimService
	address string
	logger  *slog.Logger
}

// NewClaimHandler creates a ClaimHandler bound to the local payout address.
func NewClaimHandler(claims ClaimService, address string, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims:  claims,
		address: address,
		logger:  logger,
	}
}

// Claim settles a position exactly once and returns the payout.
// POST /api/positions/{id}/claim
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	positionID := pathParam(r, "id")
	if positionID == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	payout, err := h.claims.Claim(r.Context(), positionID, h.address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: claim failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"position_id": positionID,
		"payout":      payout.String(),
	})
}

// ClaimableRatio previews the payout ratio for a position without spending
// its nullifier.
// GET /api/positions/{id}/claimable
func (h *ClaimHandler) ClaimableRatio(w http.ResponseWriter, r *http.Request) {
	positionID := pathParam(r, "id")

	ratio, err := h.claims.ClaimableRatio(r.Context(), positionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"position_id":  positionID,
		"payout_ratio": ratio.String(),
	})
}
