// Package events carries the typed market event union across the signal
// bus and the ledger event stream. Payloads are typed per kind; an event
// kind this build does not know decodes into domain.UnknownEvent rather
// than untyped data.
package events

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// envelope is the wire shape shared by the bus and the ledger stream.
type envelope struct {
	Kind     string          `json:"kind"`
	MarketID string          `json:"market_id"`
	At       int64           `json:"at"` // unix seconds
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type marketCreatedPayload struct {
	Creator  string `json:"creator"`
	Question string `json:"question"`
	EndTime  int64  `json:"end_time"`
}

type statusChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type batchAppliedPayload struct {
	BatchID       string `json:"batch_id"`
	Root          string `json:"root"`
	PositionCount int    `json:"position_count"`
	BatchCounter  int64  `json:"batch_counter"`
}

type voteSubmittedPayload struct {
	OracleID string `json:"oracle_id"`
	Round    int    `json:"round"`
}

type consensusReachedPayload struct {
	Outcome    int   `json:"outcome"`
	Confidence int64 `json:"confidence"`
	Round      int   `json:"round"`
}

type disputeOpenedPayload struct {
	DisputeID string `json:"dispute_id"`
	Round     int    `json:"round"`
}

type winningsClaimedPayload struct {
	Nullifier string `json:"nullifier"`
	Payout    string `json:"payout"`
}

// Encode serializes an event for the bus.
func Encode(e domain.Event) ([]byte, error) {
	env := envelope{
		Kind:     string(e.Kind()),
		MarketID: e.Market(),
		At:       e.OccurredAt().Unix(),
	}

	var payload any
	switch ev := e.(type) {
	case domain.MarketCreatedEvent:
		payload = marketCreatedPayload{Creator: ev.Creator, Question: ev.Question, EndTime: ev.EndTime.Unix()}
	case domain.MarketStatusChangedEvent:
		payload = statusChangedPayload{From: string(ev.From), To: string(ev.To)}
	case domain.BatchAppliedEvent:
		payload = batchAppliedPayload{BatchID: ev.BatchID, Root: ev.Root, PositionCount: ev.PositionCount, BatchCounter: ev.BatchCounter}
	case domain.VoteSubmittedEvent:
		payload = voteSubmittedPayload{OracleID: ev.OracleID, Round: ev.Round}
	case domain.ConsensusReachedEvent:
		payload = consensusReachedPayload{Outcome: int(ev.Outcome), Confidence: ev.Confidence, Round: ev.Round}
	case domain.DisputeOpenedEvent:
		payload = disputeOpenedPayload{DisputeID: ev.DisputeID, Round: ev.Round}
	case domain.WinningsClaimedEvent:
		payload = winningsClaimedPayload{Nullifier: ev.Nullifier, Payout: ev.Payout.String()}
	case domain.UnknownEvent:
		env.Kind = ev.RawKind
		env.Payload = ev.Raw
		return json.Marshal(env)
	default:
		return nil, fmt.Errorf("events: unsupported event type %T", e)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	env.Payload = raw
	return json.Marshal(env)
}

// Decode parses a wire event. Unrecognized kinds come back as
// domain.UnknownEvent with the raw payload preserved.
func Decode(data []byte) (domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: parse envelope: %w", err)
	}
	at := time.Unix(env.At, 0).UTC()

	switch domain.EventKind(env.Kind) {
	case domain.EventMarketCreated:
		var p marketCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("events: parse %s payload: %w", env.Kind, err)
		}
		return domain.MarketCreatedEvent{
			MarketID: env.MarketID, Creator: p.Creator, Question: p.Question,
			EndTime: time.Unix(p.EndTime, 0).UTC(), At: at,
		}, nil

	case domain.EventMarketStatusChanged:
		var p statusChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("events: parse %s payload: %w", env.Kind, err)
		}
		return domain.MarketStatusChangedEvent{
			MarketID: env.MarketID,
			From:     domain.MarketStatus(p.From),
			To:       domain.MarketStatus(p.To),
			At:       at,
		}, nil

	case domain.EventBatchApplied:
		var p batchAppliedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("events: parse %s payload: %w", env.Kind, err)
		}
		return domain.BatchAppliedEvent{
			MarketID: env.MarketID, BatchID: p.BatchID, Root: p.Root,
			PositionCount: p.PositionCount, BatchCounter: p.BatchCounter, At: at,
		}, nil

	case domain.EventVoteSubmitted:
		var p voteSubmittedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("events: parse %s payload: %w", env.Kind, err)
		}
		return domain.VoteSubmittedEvent{
			MarketID: env.MarketID, OracleID: p.OracleID, Round: p.Round, At: at,
		}, nil

	case domain.EventConsensusReached:
		var p consensusReachedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("events: parse %s payload: %w", env.Kind, err)
		}
		return domain.ConsensusReachedEvent{
			MarketID: env.MarketID, Outcome: domain.Outcome(p.Outcome),
			Confidence: p.Confidence, Round: p.Round, At: at,
		}, nil

	case domain.EventDisputeOpened:
		var p disputeOpenedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("events: parse %s payload: %w", env.Kind, err)
		}
		return domain.DisputeOpenedEvent{
			MarketID: env.MarketID, DisputeID: p.DisputeID, Round: p.Round, At: at,
		}, nil

	case domain.EventWinningsClaimed:
		var p winningsClaimedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("events: parse %s payload: %w", env.Kind, err)
		}
		payout, ok := new(big.Int).SetString(p.Payout, 10)
		if !ok {
			return nil, fmt.Errorf("events: invalid payout %q", p.Payout)
		}
		return domain.WinningsClaimedEvent{
			MarketID: env.MarketID, Nullifier: p.Nullifier, Payout: payout, At: at,
		}, nil

	default:
		return domain.UnknownEvent{
			RawKind: env.Kind, MarketID: env.MarketID, Raw: env.Payload, At: at,
		}, nil
	}
}
