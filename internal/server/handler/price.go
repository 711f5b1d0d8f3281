package handler

import (
	"context"
	"net/http"

	"github.com/bodega-labs/bodegad/internal/service"
)

// PriceService defines what the price handler needs from the service layer.
type PriceService interface {
	Quote(ctx context.Context, marketID string) (service.Quote, error)
}

// PriceHandler serves derived price endpoints.
type PriceHandler struct {
	prices PriceService
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceService) *PriceHandler {
	return &PriceHandler{prices: prices}
}

// GetQuote returns the implied YES/NO prices for a market.
// GET /api/markets/{id}/price
func (h *PriceHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	q, err := h.prices.Quote(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}
