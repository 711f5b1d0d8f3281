package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// EventRelay converts contract events into operator notifications. Register
// its Handle method on the ledger event stream.
type EventRelay struct {
	notifier *Notifier
	timeout  time.Duration
}

// NewEventRelay creates a relay delivering through the given notifier.
func NewEventRelay(n *Notifier) *EventRelay {
	return &EventRelay{notifier: n, timeout: 10 * time.Second}
}

// Handle formats and forwards a single event. Delivery failures are logged by
// the notifier and never propagate; notifications are best-effort.
func (r *EventRelay) Handle(ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	switch e := ev.(type) {
	case domain.MarketCreatedEvent:
		r.notifier.Notify(ctx, string(e.Kind()), "Market created",
			fmt.Sprintf("Market %s: %s", e.MarketID, e.Question))
	case domain.MarketStatusChangedEvent:
		r.notifier.Notify(ctx, string(e.Kind()), "Market status changed",
			fmt.Sprintf("Market %s: %s -> %s", e.MarketID, e.From, e.To))
	case domain.BatchAppliedEvent:
		r.notifier.Notify(ctx, string(e.Kind()), "Batch applied",
			fmt.Sprintf("Market %s: batch %s with %d positions", e.MarketID, e.BatchID, e.PositionCount))
	case domain.ConsensusReachedEvent:
		r.notifier.Notify(ctx, string(e.Kind()), "Consensus reached",
			fmt.Sprintf("Market %s resolved %s (confidence %d%%, round %d)",
				e.MarketID, e.Outcome, e.Confidence, e.Round))
	case domain.DisputeOpenedEvent:
		r.notifier.Notify(ctx, string(e.Kind()), "Dispute opened",
			fmt.Sprintf("Market %s: dispute %s against round %d", e.MarketID, e.DisputeID, e.Round))
	case domain.WinningsClaimedEvent:
		r.notifier.Notify(ctx, string(e.Kind()), "Winnings claimed",
			fmt.Sprintf("Market %s: payout %s", e.MarketID, e.Payout))
	}
}
