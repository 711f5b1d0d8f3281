// Package ledger is the contract boundary: state-changing submits,
// read-only queries, the remote prove/verify oracle, and the contract event
// stream. Raw connectivity failures never leave this package unwrapped;
// they surface as coded LEDGER_ERROR values.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// Result is a decoded contract call result.
type Result map[string]any

// Client is the ledger/contract boundary.
type Client interface {
	// Submit executes a state-changing contract method.
	Submit(ctx context.Context, contractAddress, method string, params map[string]any) (Result, error)
	// Query executes a read-only contract method.
	Query(ctx context.Context, contractAddress, method string, params map[string]any) (Result, error)
}

// Addresses holds the deployed contract addresses the engine talks to.
type Addresses struct {
	MarketFactory    string
	PredictionMarket string
	OracleConsensus  string
}

// HTTPClient talks JSON over HTTP to a ledger node.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a ledger client for the given node URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// callRequest is the node's contract call envelope.
type callRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type callResponse struct {
	Result Result `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Submit executes a state-changing contract method.
func (c *HTTPClient) Submit(ctx context.Context, contractAddress, method string, params map[string]any) (Result, error) {
	return c.call(ctx, "/contracts/"+contractAddress+"/submit", method, params)
}

// Query executes a read-only contract method.
func (c *HTTPClient) Query(ctx context.Context, contractAddress, method string, params map[string]any) (Result, error) {
	return c.call(ctx, "/contracts/"+contractAddress+"/query", method, params)
}

func (c *HTTPClient) call(ctx context.Context, path, method string, params map[string]any) (Result, error) {
	body, err := json.Marshal(callRequest{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ledger: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.CodeLedger, "ledger call failed", err).
			WithDetail("method", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewError(domain.CodeLedger, "ledger response read failed", err).
			WithDetail("method", method)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(domain.CodeLedger,
			fmt.Sprintf("ledger call returned status %d", resp.StatusCode), nil).
			WithDetail("method", method).WithDetail("body", string(raw))
	}

	var out callResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.NewError(domain.CodeLedger, "ledger response decode failed", err).
			WithDetail("method", method)
	}
	if out.Error != "" {
		return nil, domain.NewError(domain.CodeLedger, "contract call rejected", nil).
			WithDetail("method", method).WithDetail("reason", out.Error)
	}
	return out.Result, nil
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)
