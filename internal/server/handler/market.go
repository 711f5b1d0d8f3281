package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/service"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler can be tested against
// a fake.
type MarketService interface {
	CreateMarket(ctx context.Context, p service.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Activate(ctx context.Context, id string, liquidity *big.Int) (domain.Market, error)
	Cancel(ctx context.Context, id, caller string) (domain.Market, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type createMarketRequest struct {
	Question           string    `json:"question"`
	Description        string    `json:"description"`
	ResolutionCriteria string    `json:"resolution_criteria"`
	Creator            string    `json:"creator"`
	EndTime            time.Time `json:"end_time"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
	ChallengePeriodEnd time.Time `json:"challenge_period_end"`
	CreatorBond        string    `json:"creator_bond"`
	MinLiquidity       string    `json:"min_liquidity,omitempty"`
}

// CreateMarket registers a new binary market in CREATED state.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bond, err := parseAmount(req.CreatorBond)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid creator_bond: "+err.Error())
		return
	}
	var minLiquidity *big.Int
	if req.MinLiquidity != "" {
		if minLiquidity, err = parseAmount(req.MinLiquidity); err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_liquidity: "+err.Error())
			return
		}
	}

	m, err := h.markets.CreateMarket(r.Context(), service.CreateMarketParams{
		Question:           req.Question,
		Description:        req.Description,
		ResolutionCriteria: req.ResolutionCriteria,
		Creator:            req.Creator,
		EndTime:            req.EndTime,
		ResolutionDeadline: req.ResolutionDeadline,
		ChallengePeriodEnd: req.ChallengePeriodEnd,
		CreatorBond:        bond,
		MinLiquidity:       minLiquidity,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the list endpoint output with paging metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets filtered by status, ACTIVE by default.
// GET /api/markets?status=ACTIVE&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusActive
	}

	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

type activateMarketRequest struct {
	Liquidity string `json:"liquidity"`
}

// ActivateMarket funds a CREATED market and opens trading.
// POST /api/markets/{id}/activate
func (h *MarketHandler) ActivateMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req activateMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	liquidity, err := parseAmount(req.Liquidity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid liquidity: "+err.Error())
		return
	}

	m, err := h.markets.Activate(r.Context(), id, liquidity)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

type cancelMarketRequest struct {
	Caller string `json:"caller"`
}

// CancelMarket cancels a market before resolution; all stakes become
// refundable.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req cancelMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := h.markets.Cancel(r.Context(), id, req.Caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}
