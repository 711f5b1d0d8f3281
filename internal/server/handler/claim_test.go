package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/service"
)

type fakeClaimService struct {
	payout      *big.Int
	ratio       *big.Int
	err         error
	lastID      string
	lastAddress string
}

func (f *fakeClaimService) Claim(_ context.Context, positionID, userAddress string) (*big.Int, error) {
	f.lastID = positionID
	f.lastAddress = userAddress
	return f.payout, f.err
}

func (f *fakeClaimService) ClaimableRatio(_ context.Context, positionID string) (*big.Int, error) {
	f.lastID = positionID
	return f.ratio, f.err
}

func claimMux(svc ClaimService, address string) *http.ServeMux {
	h := NewClaimHandler(svc, address, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/positions/{id}/claim", h.Claim)
	mux.HandleFunc("GET /api/positions/{id}/claimable", h.ClaimableRatio)
	return mux
}

func TestClaim(t *testing.T) {
	svc := &fakeClaimService{payout: big.NewInt(100)}
	mux := claimMux(svc, "0xabc")

	req := httptest.NewRequest(http.MethodPost, "/api/positions/pos-1/claim", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.lastID != "pos-1" || svc.lastAddress != "0xabc" {
		t.Errorf("claimed %s for %s", svc.lastID, svc.lastAddress)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["position_id"] != "pos-1" || resp["payout"] != "100" {
		t.Errorf("response = %v", resp)
	}
}

func TestClaimStatusMapping(t *testing.T) {
	cases := []struct {
		code domain.ErrorCode
		want int
	}{
		{domain.CodePositionAlreadyClaimed, http.StatusConflict},
		{domain.CodePositionLost, http.StatusConflict},
		{domain.CodeMarketNotResolved, http.StatusConflict},
		{domain.CodeMarketNotFound, http.StatusNotFound},
		{domain.CodeInvalidPosition, http.StatusBadRequest},
		{domain.CodeProofGeneration, http.StatusBadGateway},
		{domain.CodeLedger, http.StatusBadGateway},
	}
	for _, c := range cases {
		t.Run(string(c.code), func(t *testing.T) {
			svc := &fakeClaimService{err: domain.NewError(c.code, "claim failed", nil)}
			mux := claimMux(svc, "0xabc")

			req := httptest.NewRequest(http.MethodPost, "/api/positions/pos-1/claim", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != c.want {
				t.Errorf("status = %d, want %d", rec.Code, c.want)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp["code"] != string(c.code) {
				t.Errorf("code = %q, want %q", resp["code"], c.code)
			}
		})
	}
}

func TestClaimableRatio(t *testing.T) {
	svc := &fakeClaimService{ratio: big.NewInt(400)}
	mux := claimMux(svc, "0xabc")

	req := httptest.NewRequest(http.MethodGet, "/api/positions/pos-1/claimable", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["payout_ratio"] != "400" {
		t.Errorf("ratio = %q", resp["payout_ratio"])
	}
}

type fakePriceService struct {
	quote  service.Quote
	err    error
	lastID string
}

func (f *fakePriceService) Quote(_ context.Context, marketID string) (service.Quote, error) {
	f.lastID = marketID
	return f.quote, f.err
}

func TestGetQuote(t *testing.T) {
	svc := &fakePriceService{quote: service.Quote{
		MarketID: "mkt-1",
		Yes:      0.55,
		No:       0.45,
		AsOf:     time.Now(),
	}}
	h := NewPriceHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}/price", h.GetQuote)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/mkt-1/price", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got service.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Yes != 0.55 || got.No != 0.45 || got.MarketID != "mkt-1" {
		t.Errorf("quote = %+v", got)
	}
}

func TestGetQuoteUnknownMarket(t *testing.T) {
	svc := &fakePriceService{err: domain.NewError(domain.CodeMarketNotFound, "no state for market", nil)}
	h := NewPriceHandler(svc)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}/price", h.GetQuote)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/nope/price", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
