package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMarketService returns canned values and records the last call.
type fakeMarketService struct {
	market     domain.Market
	markets    []domain.Market
	err        error
	lastParams service.CreateMarketParams
	lastID     string
	lastCaller string
	liquidity  *big.Int
}

func (f *fakeMarketService) CreateMarket(_ context.Context, p service.CreateMarketParams) (domain.Market, error) {
	f.lastParams = p
	return f.market, f.err
}

func (f *fakeMarketService) GetMarket(_ context.Context, id string) (domain.Market, error) {
	f.lastID = id
	return f.market, f.err
}

func (f *fakeMarketService) ListMarkets(_ context.Context, _ domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
	return f.markets, f.err
}

func (f *fakeMarketService) Activate(_ context.Context, id string, liquidity *big.Int) (domain.Market, error) {
	f.lastID = id
	f.liquidity = liquidity
	return f.market, f.err
}

func (f *fakeMarketService) Cancel(_ context.Context, id, caller string) (domain.Market, error) {
	f.lastID = id
	f.lastCaller = caller
	return f.market, f.err
}

func marketMux(svc MarketService) *http.ServeMux {
	h := NewMarketHandler(svc, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/activate", h.ActivateMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", h.CancelMarket)
	return mux
}

func TestCreateMarket(t *testing.T) {
	svc := &fakeMarketService{market: domain.Market{ID: "mkt-1", Status: domain.MarketStatusCreated}}
	mux := marketMux(svc)

	body := `{
		"question": "Will it rain?",
		"creator": "alice",
		"end_time": "2027-01-01T00:00:00Z",
		"resolution_deadline": "2027-01-02T00:00:00Z",
		"challenge_period_end": "2027-01-03T00:00:00Z",
		"creator_bond": "1000"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.lastParams.Question != "Will it rain?" {
		t.Errorf("question = %q", svc.lastParams.Question)
	}
	if svc.lastParams.CreatorBond.Int64() != 1_000 {
		t.Errorf("bond = %s", svc.lastParams.CreatorBond)
	}
	wantEnd, _ := time.Parse(time.RFC3339, "2027-01-01T00:00:00Z")
	if !svc.lastParams.EndTime.Equal(wantEnd) {
		t.Errorf("end time = %v", svc.lastParams.EndTime)
	}
}

func TestCreateMarketBadBody(t *testing.T) {
	mux := marketMux(&fakeMarketService{})

	cases := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"unknown field", `{"question":"q","creator_bond":"10","surprise":true}`},
		{"bad bond", `{"question":"q","creator_bond":"-5"}`},
		{"non-numeric bond", `{"question":"q","creator_bond":"lots"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(c.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateMarketServiceError(t *testing.T) {
	svc := &fakeMarketService{err: domain.NewError(domain.CodeInvalidMarket, "end time must be in the future", nil)}
	mux := marketMux(svc)

	body := `{"question":"q","creator":"alice","creator_bond":"1000"}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["code"] != string(domain.CodeInvalidMarket) {
		t.Errorf("code = %q", resp["code"])
	}
}

func TestGetMarket(t *testing.T) {
	svc := &fakeMarketService{market: domain.Market{ID: "mkt-1", Question: "q"}}
	mux := marketMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.lastID != "mkt-1" {
		t.Errorf("requested id = %q", svc.lastID)
	}
}

func TestGetMarketNotFound(t *testing.T) {
	svc := &fakeMarketService{err: domain.NewError(domain.CodeMarketNotFound, "market not found", nil)}
	mux := marketMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListMarkets(t *testing.T) {
	svc := &fakeMarketService{markets: []domain.Market{{ID: "a"}, {ID: "b"}}}
	mux := marketMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/markets?limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Markets []domain.Market `json:"markets"`
		Limit   int             `json:"limit"`
		Offset  int             `json:"offset"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Markets) != 2 {
		t.Errorf("markets = %d, want 2", len(resp.Markets))
	}
	if resp.Limit != 10 || resp.Offset != 5 {
		t.Errorf("paging = %d/%d", resp.Limit, resp.Offset)
	}
}

func TestActivateMarket(t *testing.T) {
	svc := &fakeMarketService{market: domain.Market{ID: "mkt-1", Status: domain.MarketStatusActive}}
	mux := marketMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/activate", strings.NewReader(`{"liquidity":"100000"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.liquidity.Int64() != 100_000 {
		t.Errorf("liquidity = %s", svc.liquidity)
	}
}

func TestActivateMarketConflict(t *testing.T) {
	svc := &fakeMarketService{err: domain.NewError(domain.CodeInvalidTransition, "only a CREATED market can be activated", nil)}
	mux := marketMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/activate", strings.NewReader(`{"liquidity":"100000"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCancelMarket(t *testing.T) {
	svc := &fakeMarketService{market: domain.Market{ID: "mkt-1", Status: domain.MarketStatusCancelled}}
	mux := marketMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/markets/mkt-1/cancel", strings.NewReader(`{"caller":"alice"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.lastCaller != "alice" {
		t.Errorf("caller = %q", svc.lastCaller)
	}
}
