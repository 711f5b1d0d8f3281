package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/privstate"
)

type fakeBetService struct {
	record     privstate.Record
	records    []privstate.Record
	err        error
	lastUser   string
	lastMarket string
	lastAmount *big.Int
}

func (f *fakeBetService) PlaceBet(_ context.Context, userID, marketID string, amount *big.Int, outcome domain.Outcome) (privstate.Record, error) {
	f.lastUser = userID
	f.lastMarket = marketID
	f.lastAmount = amount
	return f.record, f.err
}

func (f *fakeBetService) Positions(marketID string) []privstate.Record {
	f.lastMarket = marketID
	return f.records
}

func betRecord(id string, amount int64, outcome domain.Outcome) privstate.Record {
	return privstate.Record{
		PositionID: id,
		Position: domain.PrivatePosition{
			UserID:    "user-1",
			MarketID:  "mkt-1",
			Amount:    big.NewInt(amount),
			Outcome:   outcome,
			Nonce:     big.NewInt(42),
			Timestamp: time.Unix(1_700_000_000, 0),
		},
		LeafIndex: 3,
	}
}

func betMux(svc BetService) *http.ServeMux {
	h := NewBetHandler(svc, "user-1", testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets/{id}/bets", h.PlaceBet)
	mux.HandleFunc("GET /api/markets/{id}/positions", h.ListPositions)
	return mux
}

func TestPlaceBet(t *testing.T) {
	svc := &fakeBetService{record: betRecord("pos-1", 5_000, domain.OutcomeYes)}
	mux := betMux(svc)

	body := `{"amount":"5000","outcome":"YES"}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/bets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.lastUser != "user-1" || svc.lastMarket != "mkt-1" || svc.lastAmount.Int64() != 5_000 {
		t.Errorf("bet = %s/%s/%s", svc.lastUser, svc.lastMarket, svc.lastAmount)
	}
	var resp positionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PositionID != "pos-1" || resp.Amount != "5000" || resp.Outcome != "YES" || resp.LeafIndex != 3 {
		t.Errorf("response = %+v", resp)
	}
}

func TestPlaceBetRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero amount", `{"amount":"0","outcome":"YES"}`},
		{"bad outcome", `{"amount":"100","outcome":"MAYBE"}`},
		{"not json", "nope"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := &fakeBetService{}
			mux := betMux(svc)
			req := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/bets", strings.NewReader(c.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if svc.lastUser != "" {
				t.Error("service reached despite invalid input")
			}
		})
	}
}

func TestPlaceBetOnEndedMarket(t *testing.T) {
	svc := &fakeBetService{err: domain.NewError(domain.CodeMarketEnded, "market ended", nil)}
	mux := betMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/bets",
		strings.NewReader(`{"amount":"100","outcome":"NO"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestListPositions(t *testing.T) {
	svc := &fakeBetService{records: []privstate.Record{
		betRecord("pos-1", 5_000, domain.OutcomeYes),
		betRecord("pos-2", 2_000, domain.OutcomeNo),
	}}
	mux := betMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1/positions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Positions []positionResponse `json:"positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(resp.Positions))
	}
	if resp.Positions[1].Outcome != "NO" || resp.Positions[1].Amount != "2000" {
		t.Errorf("second position = %+v", resp.Positions[1])
	}
}

func TestListPositionsEmpty(t *testing.T) {
	mux := betMux(&fakeBetService{})

	req := httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1/positions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"positions":[]`) {
		t.Errorf("body = %s", rec.Body)
	}
}
