// Package handler serves the HTTP API over the service layer. Handlers
// depend on locally declared interfaces so they can be tested against fakes.
package handler

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a service error onto an HTTP status and a stable
// error code the client can branch on.
func writeDomainError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := statusForCode(code, err)

	body := map[string]string{"error": err.Error()}
	if code != "" {
		body["code"] = string(code)
	}
	writeJSON(w, status, body)
}

func statusForCode(code domain.ErrorCode, err error) int {
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound
	}
	switch code {
	case domain.CodeMarketNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidMarket, domain.CodeInvalidPosition:
		return http.StatusBadRequest
	case domain.CodeMarketNotActive, domain.CodeMarketEnded,
		domain.CodeMarketNotResolved, domain.CodeInvalidTransition,
		domain.CodePositionAlreadyClaimed, domain.CodePositionLost,
		domain.CodeBatchRejected:
		return http.StatusConflict
	case domain.CodeLedger, domain.CodeProofGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseAmount decodes a positive decimal string into a big.Int.
func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errors.New("not a decimal integer")
	}
	if n.Sign() <= 0 {
		return nil, errors.New("must be positive")
	}
	return n, nil
}

// parseOutcome decodes "YES" or "NO" (case-insensitive).
func parseOutcome(s string) (domain.Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES":
		return domain.OutcomeYes, nil
	case "NO":
		return domain.OutcomeNo, nil
	default:
		return 0, errors.New(`outcome must be "YES" or "NO"`)
	}
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
