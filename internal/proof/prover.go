// Package proof implements the commitment and proof layer: it turns a
// private position into a public commitment plus a zero-knowledge proof, and
// later turns a winning position into a nullifier-bearing settlement proof.
// The proving system itself sits behind the Prover boundary; this layer
// never mutates shared state.
package proof

import "context"

// Circuit names understood by the proof oracle.
const (
	CircuitPositionCommitment = "createPositionCommitment"
	CircuitProveWinnings      = "proveWinnings"
)

// Proof is an opaque proof artifact together with the public inputs it was
// produced against.
type Proof struct {
	Circuit      string            `json:"circuit"`
	Data         string            `json:"proof"`
	PublicInputs map[string]string `json:"public_inputs"`
}

// Prover is the opaque prove oracle boundary. Implementations may run a
// local prover or delegate to a remote proving service; either way failures
// surface as plain errors that the manager wraps into the coded taxonomy.
type Prover interface {
	Prove(ctx context.Context, circuit string, private, public map[string]string) (Proof, error)
}

// Verifier is the other half of the prove/verify oracle: it checks a proof
// against its public inputs.
type Verifier interface {
	Verify(ctx context.Context, prf Proof) (bool, error)
}
