package proof

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyProver fails the first failures calls, then succeeds, echoing the
// public inputs back into the proof.
type flakyProver struct {
	mu       sync.Mutex
	failures int
	calls    int
	lastCirc string
	lastPriv map[string]string
}

func (p *flakyProver) Prove(_ context.Context, circuit string, private, public map[string]string) (Proof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastCirc = circuit
	p.lastPriv = private
	if p.calls <= p.failures {
		return Proof{}, errors.New("prover overloaded")
	}
	return Proof{Circuit: circuit, Data: "ok", PublicInputs: public}, nil
}

func TestProvePositionSucceeds(t *testing.T) {
	prover := &flakyProver{}
	m := NewManager(prover, 3, time.Millisecond, testLogger())
	pos := testPosition()

	commitment, prf, err := m.ProvePosition(context.Background(), pos)
	if err != nil {
		t.Fatalf("ProvePosition: %v", err)
	}
	if commitment != Commitment(pos) {
		t.Error("returned commitment disagrees with Commitment()")
	}
	if prf.Circuit != CircuitPositionCommitment {
		t.Errorf("circuit = %s", prf.Circuit)
	}
	if prf.PublicInputs["commitment"] != commitment.Hex() {
		t.Error("commitment missing from public inputs")
	}
	if prf.PublicInputs["marketId"] != pos.MarketID {
		t.Error("market id missing from public inputs")
	}
	if prover.lastPriv["amount"] != pos.Amount.String() {
		t.Error("stake missing from private inputs")
	}
}

func TestProvePositionRetriesTransientFailures(t *testing.T) {
	prover := &flakyProver{failures: 2}
	m := NewManager(prover, 3, time.Millisecond, testLogger())

	_, _, err := m.ProvePosition(context.Background(), testPosition())
	if err != nil {
		t.Fatalf("ProvePosition after retries: %v", err)
	}
	if prover.calls != 3 {
		t.Errorf("prover calls = %d, want 3", prover.calls)
	}
}

func TestProvePositionExhaustsAttempts(t *testing.T) {
	prover := &flakyProver{failures: 100}
	m := NewManager(prover, 3, time.Millisecond, testLogger())

	_, _, err := m.ProvePosition(context.Background(), testPosition())
	if domain.CodeOf(err) != domain.CodeProofGeneration {
		t.Fatalf("err = %v, want PROOF_GENERATION_ERROR", err)
	}
	if prover.calls != 3 {
		t.Errorf("prover calls = %d, want 3", prover.calls)
	}
}

func TestProvePositionValidatesFirst(t *testing.T) {
	prover := &flakyProver{}
	m := NewManager(prover, 3, time.Millisecond, testLogger())

	bad := testPosition()
	bad.Amount = big.NewInt(0)
	_, _, err := m.ProvePosition(context.Background(), bad)
	if domain.CodeOf(err) != domain.CodeInvalidPosition {
		t.Fatalf("err = %v, want INVALID_POSITION", err)
	}
	if prover.calls != 0 {
		t.Error("invalid position reached the prover")
	}
}

func TestProvePositionHonorsCancellation(t *testing.T) {
	prover := &flakyProver{failures: 100}
	m := NewManager(prover, 5, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := m.ProvePosition(ctx, testPosition())
		done <- err
	}()

	// Let the first attempt fail, then cancel during the backoff wait.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not interrupt the backoff")
	}
}

func TestProveSettlement(t *testing.T) {
	prover := &flakyProver{}
	m := NewManager(prover, 3, time.Millisecond, testLogger())
	pos := testPosition()
	nullifier := Nullifier(pos, UserSecret(pos.UserID, "0xabc"))

	prf, err := m.ProveSettlement(context.Background(), pos, domain.OutcomeYes, big.NewInt(400), nullifier)
	if err != nil {
		t.Fatalf("ProveSettlement: %v", err)
	}
	if prf.Circuit != CircuitProveWinnings {
		t.Errorf("circuit = %s", prf.Circuit)
	}
	// Stake 5000 at ratio 400 claims 20000.
	if prf.PublicInputs["winningsAmount"] != "20000" {
		t.Errorf("winningsAmount = %s, want 20000", prf.PublicInputs["winningsAmount"])
	}
	if prf.PublicInputs["nullifier"] != nullifier.Hex() {
		t.Error("nullifier missing from public inputs")
	}
}

func TestProveSettlementIsNotRetried(t *testing.T) {
	prover := &flakyProver{failures: 1}
	m := NewManager(prover, 5, time.Millisecond, testLogger())
	pos := testPosition()
	nullifier := Nullifier(pos, UserSecret(pos.UserID, "0xabc"))

	_, err := m.ProveSettlement(context.Background(), pos, domain.OutcomeYes, big.NewInt(400), nullifier)
	if domain.CodeOf(err) != domain.CodeProofGeneration {
		t.Fatalf("err = %v, want PROOF_GENERATION_ERROR", err)
	}
	if prover.calls != 1 {
		t.Errorf("prover calls = %d, want 1", prover.calls)
	}
}

func TestManagerDefaults(t *testing.T) {
	m := NewManager(&flakyProver{}, 0, 0, testLogger())
	if m.maxAttempts != defaultMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", m.maxAttempts, defaultMaxAttempts)
	}
	if m.backoff != defaultBackoff {
		t.Errorf("backoff = %v, want %v", m.backoff, defaultBackoff)
	}
}
