package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

func TestSubmitSendsCallEnvelope(t *testing.T) {
	var gotPath string
	var gotReq callRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(callResponse{Result: Result{"market_id": "mkt-1"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	res, err := c.Submit(context.Background(), "0xmarket", "create_market", map[string]any{
		"question": "q",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gotPath != "/contracts/0xmarket/submit" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Method != "create_market" || gotReq.Params["question"] != "q" {
		t.Errorf("request = %+v", gotReq)
	}
	if res["market_id"] != "mkt-1" {
		t.Errorf("result = %v", res)
	}
}

func TestQueryUsesQueryPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(callResponse{Result: Result{}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	if _, err := c.Query(context.Background(), "0xoracle", "get_result", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotPath != "/contracts/0xoracle/query" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestSubmitContractRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(callResponse{Error: "market already exists"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), "0xmarket", "create_market", nil)
	if domain.CodeOf(err) != domain.CodeLedger {
		t.Fatalf("code = %q, err %v", domain.CodeOf(err), err)
	}
}

func TestSubmitNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Submit(context.Background(), "0xmarket", "end_market", nil)
	if domain.CodeOf(err) != domain.CodeLedger {
		t.Fatalf("code = %q, err %v", domain.CodeOf(err), err)
	}
	if !domain.IsRetryable(err) {
		t.Error("ledger failure should be retryable")
	}
}

func TestSubmitNodeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Submit(context.Background(), "0xmarket", "create_market", nil)
	if domain.CodeOf(err) != domain.CodeLedger {
		t.Fatalf("code = %q, err %v", domain.CodeOf(err), err)
	}
}

func TestSubmitGarbageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Query(context.Background(), "0xmarket", "get_market", nil)
	if domain.CodeOf(err) != domain.CodeLedger {
		t.Fatalf("code = %q, err %v", domain.CodeOf(err), err)
	}
}
