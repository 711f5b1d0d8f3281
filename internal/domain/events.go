package domain

import (
	"encoding/json"
	"math/big"
	"time"
)

// EventKind discriminates the event union. Payloads are typed per kind;
// events of a kind this build does not know arrive as UnknownEvent.
type EventKind string

const (
	EventMarketCreated       EventKind = "market_created"
	EventMarketStatusChanged EventKind = "market_status_changed"
	EventBatchApplied        EventKind = "batch_applied"
	EventVoteSubmitted       EventKind = "vote_submitted"
	EventConsensusReached    EventKind = "consensus_reached"
	EventDisputeOpened       EventKind = "dispute_opened"
	EventWinningsClaimed     EventKind = "winnings_claimed"
	EventUnknown             EventKind = "unknown"
)

// Event is one member of the market event union.
type Event interface {
	Kind() EventKind
	Market() string
	OccurredAt() time.Time
}

// MarketCreatedEvent announces a new market.
type MarketCreatedEvent struct {
	MarketID string
	Creator  string
	Question string
	EndTime  time.Time
	At       time.Time
}

func (e MarketCreatedEvent) Kind() EventKind       { return EventMarketCreated }
func (e MarketCreatedEvent) Market() string        { return e.MarketID }
func (e MarketCreatedEvent) OccurredAt() time.Time { return e.At }

// MarketStatusChangedEvent announces a lifecycle transition.
type MarketStatusChangedEvent struct {
	MarketID string
	From     MarketStatus
	To       MarketStatus
	At       time.Time
}

func (e MarketStatusChangedEvent) Kind() EventKind       { return EventMarketStatusChanged }
func (e MarketStatusChangedEvent) Market() string        { return e.MarketID }
func (e MarketStatusChangedEvent) OccurredAt() time.Time { return e.At }

// BatchAppliedEvent announces that a batch was folded into market state.
type BatchAppliedEvent struct {
	MarketID      string
	BatchID       string
	Root          string
	PositionCount int
	BatchCounter  int64
	At            time.Time
}

func (e BatchAppliedEvent) Kind() EventKind       { return EventBatchApplied }
func (e BatchAppliedEvent) Market() string        { return e.MarketID }
func (e BatchAppliedEvent) OccurredAt() time.Time { return e.At }

// VoteSubmittedEvent announces an accepted oracle vote. The vote content
// stays private to the consensus engine until the round closes; only the
// participation fact is public.
type VoteSubmittedEvent struct {
	MarketID string
	OracleID string
	Round    int
	At       time.Time
}

func (e VoteSubmittedEvent) Kind() EventKind       { return EventVoteSubmitted }
func (e VoteSubmittedEvent) Market() string        { return e.MarketID }
func (e VoteSubmittedEvent) OccurredAt() time.Time { return e.At }

// ConsensusReachedEvent announces a finalized outcome.
type ConsensusReachedEvent struct {
	MarketID   string
	Outcome    Outcome
	Confidence int64
	Round      int
	At         time.Time
}

func (e ConsensusReachedEvent) Kind() EventKind       { return EventConsensusReached }
func (e ConsensusReachedEvent) Market() string        { return e.MarketID }
func (e ConsensusReachedEvent) OccurredAt() time.Time { return e.At }

// DisputeOpenedEvent announces a challenge against a resolved outcome.
type DisputeOpenedEvent struct {
	MarketID  string
	DisputeID string
	Round     int
	At        time.Time
}

func (e DisputeOpenedEvent) Kind() EventKind       { return EventDisputeOpened }
func (e DisputeOpenedEvent) Market() string        { return e.MarketID }
func (e DisputeOpenedEvent) OccurredAt() time.Time { return e.At }

// WinningsClaimedEvent announces a successful claim. Only the nullifier and
// payout are public; the claimant stays hidden.
type WinningsClaimedEvent struct {
	MarketID  string
	Nullifier string
	Payout    *big.Int
	At        time.Time
}

func (e WinningsClaimedEvent) Kind() EventKind       { return EventWinningsClaimed }
func (e WinningsClaimedEvent) Market() string        { return e.MarketID }
func (e WinningsClaimedEvent) OccurredAt() time.Time { return e.At }

// UnknownEvent carries an event kind this build does not recognize. The raw
// payload is preserved so subscribers can log or forward it.
type UnknownEvent struct {
	RawKind  string
	MarketID string
	Raw      json.RawMessage
	At       time.Time
}

func (e UnknownEvent) Kind() EventKind       { return EventUnknown }
func (e UnknownEvent) Market() string        { return e.MarketID }
func (e UnknownEvent) OccurredAt() time.Time { return e.At }
