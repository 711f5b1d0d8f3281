package events

import (
	"math/big"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

var eventAt = time.Unix(1_700_000_000, 0).UTC()

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   domain.Event
	}{
		{"market created", domain.MarketCreatedEvent{
			MarketID: "mkt-1", Creator: "alice", Question: "Will it rain?",
			EndTime: eventAt.Add(24 * time.Hour), At: eventAt,
		}},
		{"status changed", domain.MarketStatusChangedEvent{
			MarketID: "mkt-1", From: domain.MarketStatusActive, To: domain.MarketStatusEnded, At: eventAt,
		}},
		{"batch applied", domain.BatchAppliedEvent{
			MarketID: "mkt-1", BatchID: "batch-7", Root: "0xroot",
			PositionCount: 12, BatchCounter: 3, At: eventAt,
		}},
		{"vote submitted", domain.VoteSubmittedEvent{
			MarketID: "mkt-1", OracleID: "oracle-2", Round: 2, At: eventAt,
		}},
		{"consensus reached", domain.ConsensusReachedEvent{
			MarketID: "mkt-1", Outcome: domain.OutcomeNo, Confidence: 87, Round: 2, At: eventAt,
		}},
		{"dispute opened", domain.DisputeOpenedEvent{
			MarketID: "mkt-1", DisputeID: "d-1", Round: 1, At: eventAt,
		}},
		{"winnings claimed", domain.WinningsClaimedEvent{
			MarketID: "mkt-1", Nullifier: "0xdead", Payout: big.NewInt(20_000), At: eventAt,
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, err := Encode(c.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out.Kind() != c.in.Kind() {
				t.Errorf("kind = %s, want %s", out.Kind(), c.in.Kind())
			}
			if out.Market() != c.in.Market() {
				t.Errorf("market = %s, want %s", out.Market(), c.in.Market())
			}
			if !out.OccurredAt().Equal(c.in.OccurredAt()) {
				t.Errorf("at = %v, want %v", out.OccurredAt(), c.in.OccurredAt())
			}
		})
	}
}

func TestDecodePreservesTypedFields(t *testing.T) {
	in := domain.WinningsClaimedEvent{
		MarketID: "mkt-1", Nullifier: "0xbeef", Payout: big.NewInt(12_345), At: eventAt,
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := out.(domain.WinningsClaimedEvent)
	if !ok {
		t.Fatalf("decoded type %T", out)
	}
	if got.Nullifier != in.Nullifier {
		t.Errorf("nullifier = %s", got.Nullifier)
	}
	if got.Payout.Cmp(in.Payout) != 0 {
		t.Errorf("payout = %s, want %s", got.Payout, in.Payout)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	raw := []byte(`{"kind":"market.liquidity_migrated","market_id":"mkt-9","at":1700000000,"payload":{"pool":"v2"}}`)
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ev, ok := out.(domain.UnknownEvent)
	if !ok {
		t.Fatalf("decoded type %T, want UnknownEvent", out)
	}
	if ev.RawKind != "market.liquidity_migrated" {
		t.Errorf("raw kind = %s", ev.RawKind)
	}
	if ev.MarketID != "mkt-9" {
		t.Errorf("market = %s", ev.MarketID)
	}
	if len(ev.Raw) == 0 {
		t.Error("raw payload dropped")
	}
}

func TestUnknownEventRoundTrips(t *testing.T) {
	// An unknown event re-encodes with its original kind so relays can
	// forward it untouched.
	raw := []byte(`{"kind":"future.kind","market_id":"mkt-1","at":1700000000,"payload":{"a":1}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	data, err := Encode(ev)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	again, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	unk, ok := again.(domain.UnknownEvent)
	if !ok || unk.RawKind != "future.kind" {
		t.Errorf("round trip lost the raw kind: %T %+v", again, again)
	}
}

func TestDecodeCorruptPayload(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("garbage decoded")
	}
	bad := []byte(`{"kind":"winnings_claimed","market_id":"mkt-1","at":1,"payload":{"nullifier":"0x1","payout":"not-a-number"}}`)
	if _, err := Decode(bad); err == nil {
		t.Error("invalid payout decoded")
	}
}
