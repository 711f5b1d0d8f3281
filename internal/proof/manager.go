package proof

import (
	"context"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bodega-labs/bodegad/internal/domain"
)

const (
	// defaultMaxAttempts bounds commitment proof generation.
	defaultMaxAttempts = 3
	// defaultBackoff is multiplied by the attempt number between retries.
	defaultBackoff = time.Second
)

// Manager drives proof generation against a Prover with bounded, cancellable
// retries. Commitment proofs are retried because the prover can fail
// transiently; settlement proofs are not, since whether a position won
// cannot change by retrying.
type Manager struct {
	prover      Prover
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

// NewManager creates a Manager. maxAttempts and backoff fall back to the
// defaults when zero.
func NewManager(prover Prover, maxAttempts int, backoff time.Duration, logger *slog.Logger) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Manager{
		prover:      prover,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger.With(slog.String("component", "proof_manager")),
	}
}

// ProvePosition computes the position commitment and generates the
// zero-knowledge proof that the commitment was formed over a valid position
// for the given market, without revealing the position.
//
// The prover is retried up to the attempt bound with a linearly increasing
// delay. The caller's context cancels the wait between attempts; nothing is
// published until a proof exists, so cancellation leaves no partial state.
func (m *Manager) ProvePosition(ctx context.Context, p domain.PrivatePosition) (common.Hash, Proof, error) {
	if err := p.Validate(); err != nil {
		return common.Hash{}, Proof{}, err
	}

	commitment := Commitment(p)

	private := map[string]string{
		"userId":    p.UserID,
		"amount":    p.Amount.String(),
		"outcome":   strconv.Itoa(int(p.Outcome)),
		"nonce":     p.Nonce.String(),
		"marketId":  p.MarketID,
		"timestamp": strconv.FormatInt(p.Timestamp.Unix(), 10),
	}
	public := map[string]string{
		"commitment": commitment.Hex(),
		"marketId":   p.MarketID,
	}

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		prf, err := m.prover.Prove(ctx, CircuitPositionCommitment, private, public)
		if err == nil {
			return commitment, prf, nil
		}
		lastErr = err

		m.logger.WarnContext(ctx, "proof attempt failed",
			slog.String("circuit", CircuitPositionCommitment),
			slog.String("market_id", p.MarketID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if attempt == m.maxAttempts {
			break
		}
		if err := sleep(ctx, m.backoff*time.Duration(attempt)); err != nil {
			return common.Hash{}, Proof{}, err
		}
	}

	return common.Hash{}, Proof{}, domain.NewError(
		domain.CodeProofGeneration,
		"failed to generate position commitment proof",
		lastErr,
	).WithDetail("attempts", m.maxAttempts).WithDetail("market_id", p.MarketID)
}

// ProveSettlement generates the proof that the claimant knows a previously
// committed position whose outcome equals winningOutcome, and that the
// claimed payout equals amount * payoutRatio / 100. Not retried.
func (m *Manager) ProveSettlement(
	ctx context.Context,
	p domain.PrivatePosition,
	winningOutcome domain.Outcome,
	payoutRatio *big.Int,
	nullifier common.Hash,
) (Proof, error) {
	if err := p.Validate(); err != nil {
		return Proof{}, err
	}

	winnings := new(big.Int).Mul(p.Amount, payoutRatio)
	winnings.Div(winnings, big.NewInt(100))

	private := map[string]string{
		"userId":         p.UserID,
		"amount":         p.Amount.String(),
		"outcome":        strconv.Itoa(int(p.Outcome)),
		"nonce":          p.Nonce.String(),
		"marketId":       p.MarketID,
		"timestamp":      strconv.FormatInt(p.Timestamp.Unix(), 10),
		"winningOutcome": strconv.Itoa(int(winningOutcome)),
		"payoutRatio":    payoutRatio.String(),
	}
	public := map[string]string{
		"winningsAmount": winnings.String(),
		"nullifier":      nullifier.Hex(),
	}

	prf, err := m.prover.Prove(ctx, CircuitProveWinnings, private, public)
	if err != nil {
		return Proof{}, domain.NewError(
			domain.CodeProofGeneration,
			"failed to generate settlement proof",
			err,
		).WithDetail("market_id", p.MarketID)
	}
	return prf, nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
