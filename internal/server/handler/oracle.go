package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// OracleService defines what the oracle handler needs from the service layer.
type OracleService interface {
	SubmitVote(ctx context.Context, vote domain.OracleVote) error
	TallyAndResolve(ctx context.Context, marketID string, round int) (domain.ConsensusResult, error)
	OpenDispute(ctx context.Context, marketID, challenger, reason string) (domain.Dispute, error)
	Result(ctx context.Context, marketID string) (domain.ConsensusResult, error)
}

// OracleHandler serves consensus endpoints.
type OracleHandler struct {
	oracles OracleService
	logger  *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(oracles OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracles: oracles,
		logger:  logger,
	}
}

type submitVoteRequest struct {
	OracleID   string `json:"oracle_id"`
	Round      int    `json:"round"`
	Outcome    string `json:"outcome"`
	Confidence int64  `json:"confidence"`
	Weight     int64  `json:"weight"`
}

// SubmitVote records one oracle's vote for a round.
// POST /api/markets/{id}/votes
func (h *OracleHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req submitVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	outcome, err := parseOutcome(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Round < 1 {
		req.Round = 1
	}

	vote := domain.OracleVote{
		OracleID:    req.OracleID,
		MarketID:    marketID,
		Round:       req.Round,
		Outcome:     outcome,
		Confidence:  req.Confidence,
		Weight:      req.Weight,
		SubmittedAt: time.Now(),
	}
	if err := h.oracles.SubmitVote(r.Context(), vote); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: submit vote failed",
			slog.String("market_id", marketID),
			slog.String("oracle_id", req.OracleID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"market_id": marketID,
		"round":     req.Round,
	})
}

type tallyRequest struct {
	Round int `json:"round"`
}

// Tally aggregates the round's votes and resolves the market when the
// weighted threshold is met.
// POST /api/markets/{id}/tally
func (h *OracleHandler) Tally(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req tallyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Round < 1 {
		req.Round = 1
	}

	result, err := h.oracles.TallyAndResolve(r.Context(), marketID, req.Round)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type openDisputeRequest struct {
	Challenger string `json:"challenger"`
	Reason     string `json:"reason"`
}

// OpenDispute challenges a resolved outcome within the challenge period.
// POST /api/markets/{id}/disputes
func (h *OracleHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	var req openDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := h.oracles.OpenDispute(r.Context(), marketID, req.Challenger, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

// GetResult returns the latest consensus result for a market.
// GET /api/markets/{id}/result
func (h *OracleHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	result, err := h.oracles.Result(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
