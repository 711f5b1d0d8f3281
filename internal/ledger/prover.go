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
	"github.com/bodega-labs/bodegad/internal/proof"
)

// RemoteProver delegates circuit proving and verification to the proving
// service that ships with the ledger node.
type RemoteProver struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteProver creates a prover client for the given proving service URL.
func NewRemoteProver(baseURL string, timeout time.Duration) *RemoteProver {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteProver{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type proveRequest struct {
	Circuit string            `json:"circuit"`
	Private map[string]string `json:"privateInputs"`
	Public  map[string]string `json:"publicInputs"`
}

type proveResponse struct {
	Proof  string            `json:"proof"`
	Inputs map[string]string `json:"publicInputs"`
	Error  string            `json:"error,omitempty"`
}

// Prove asks the proving service for a proof over the given circuit.
func (p *RemoteProver) Prove(ctx context.Context, circuit string, private, public map[string]string) (proof.Proof, error) {
	body, err := json.Marshal(proveRequest{Circuit: circuit, Private: private, Public: public})
	if err != nil {
		return proof.Proof{}, fmt.Errorf("ledger: marshal prove request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/prove", bytes.NewReader(body))
	if err != nil {
		return proof.Proof{}, fmt.Errorf("ledger: build prove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return proof.Proof{}, fmt.Errorf("ledger: proving service unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return proof.Proof{}, fmt.Errorf("ledger: read prove response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return proof.Proof{}, fmt.Errorf("ledger: proving service returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out proveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return proof.Proof{}, fmt.Errorf("ledger: decode prove response: %w", err)
	}
	if out.Error != "" {
		return proof.Proof{}, fmt.Errorf("ledger: proving service rejected circuit %s: %s", circuit, out.Error)
	}

	inputs := out.Inputs
	if inputs == nil {
		inputs = public
	}
	return proof.Proof{
		Circuit:      circuit,
		Data:         out.Proof,
		PublicInputs: inputs,
	}, nil
}

type verifyRequest struct {
	Circuit string            `json:"circuit"`
	Proof   string            `json:"proof"`
	Public  map[string]string `json:"publicInputs"`
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Verify checks a proof against the proving service verifier.
func (p *RemoteProver) Verify(ctx context.Context, prf proof.Proof) (bool, error) {
	body, err := json.Marshal(verifyRequest{Circuit: prf.Circuit, Proof: prf.Data, Public: prf.PublicInputs})
	if err != nil {
		return false, fmt.Errorf("ledger: marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("ledger: build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, domain.NewError(domain.CodeLedger, "verifier unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, domain.NewError(domain.CodeLedger, "read verify response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, domain.NewError(domain.CodeLedger,
			fmt.Sprintf("verifier returned status %d", resp.StatusCode), nil)
	}

	var out verifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, domain.NewError(domain.CodeLedger, "decode verify response", err)
	}
	if out.Error != "" {
		return false, nil
	}
	return out.Valid, nil
}

var (
	_ proof.Prover   = (*RemoteProver)(nil)
	_ proof.Verifier = (*RemoteProver)(nil)
)
