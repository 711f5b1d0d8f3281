package privstate

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

func testRecord(id, marketID string, amount int64) Record {
	return Record{
		PositionID: id,
		Position: domain.PrivatePosition{
			UserID:    "user-1",
			Amount:    big.NewInt(amount),
			Outcome:   domain.OutcomeYes,
			Nonce:     big.NewInt(42),
			MarketID:  marketID,
			Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		},
		LeafIndex: 3,
		BatchID:   "batch-1",
	}
}

func TestOpenFreshStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := len(s.All()); got != 0 {
		t.Errorf("fresh store has %d records", got)
	}
}

func TestPutGetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}

	rec := testRecord("p-1", "mkt-1", 5_000)
	if err := s.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := Open(path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get("p-1")
	if !ok {
		t.Fatal("record missing after reopen")
	}
	if got.Position.Amount.Cmp(rec.Position.Amount) != 0 {
		t.Errorf("amount = %s, want %s", got.Position.Amount, rec.Position.Amount)
	}
	if got.Position.Nonce.Cmp(rec.Position.Nonce) != 0 {
		t.Errorf("nonce = %s, want %s", got.Position.Nonce, rec.Position.Nonce)
	}
	if !got.Position.Timestamp.Equal(rec.Position.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Position.Timestamp, rec.Position.Timestamp)
	}
	if got.LeafIndex != rec.LeafIndex || got.BatchID != rec.BatchID {
		t.Errorf("bookkeeping = %d/%s, want %d/%s", got.LeafIndex, got.BatchID, rec.LeafIndex, rec.BatchID)
	}
	if got.Claimed {
		t.Error("fresh record marked claimed")
	}
}

func TestEncryptedStoreRequiresPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testRecord("p-1", "mkt-1", 5_000)); err != nil {
		t.Fatal(err)
	}

	// The file on disk must not contain plaintext position data.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "mkt-1") || strings.Contains(string(raw), "position_id") {
		t.Error("encrypted store leaks plaintext")
	}

	if _, err := Open(path, "wrong"); err == nil {
		t.Error("wrong passphrase opened the store")
	}

	reopened, err := Open(path, "hunter2")
	if err != nil {
		t.Fatalf("reopen with passphrase: %v", err)
	}
	if _, ok := reopened.Get("p-1"); !ok {
		t.Error("record missing after encrypted reopen")
	}
}

func TestPutValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Put(Record{}); err == nil {
		t.Error("record without position id accepted")
	}

	bad := testRecord("p-1", "mkt-1", 5_000)
	bad.Position.Amount = big.NewInt(0)
	if err := s.Put(bad); domain.CodeOf(err) != domain.CodeInvalidPosition {
		t.Errorf("err = %v, want INVALID_POSITION", err)
	}
}

func TestMarkClaimedFlipsExactlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testRecord("p-1", "mkt-1", 5_000)); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkClaimed("p-1"); err != nil {
		t.Fatalf("MarkClaimed: %v", err)
	}
	rec, _ := s.Get("p-1")
	if !rec.Claimed || rec.ClaimedAt == nil {
		t.Error("claim bookkeeping not set")
	}

	if err := s.MarkClaimed("p-1"); domain.CodeOf(err) != domain.CodePositionAlreadyClaimed {
		t.Errorf("second claim: err = %v, want POSITION_ALREADY_CLAIMED", err)
	}
	if err := s.MarkClaimed("missing"); domain.CodeOf(err) != domain.CodeInvalidPosition {
		t.Errorf("unknown id: err = %v, want INVALID_POSITION", err)
	}

	// The claimed flag survives a reopen.
	reopened, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ = reopened.Get("p-1")
	if !rec.Claimed {
		t.Error("claimed flag lost on reopen")
	}
}

func TestByMarketAndExposure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}

	recs := []Record{
		testRecord("p-1", "mkt-1", 1_000),
		testRecord("p-2", "mkt-1", 2_000),
		testRecord("p-3", "mkt-2", 4_000),
	}
	for i, rec := range recs {
		// Distinct timestamps keep All() ordering stable.
		rec.Position.Timestamp = rec.Position.Timestamp.Add(time.Duration(i) * time.Second)
		if err := s.Put(rec); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(s.ByMarket("mkt-1")); got != 2 {
		t.Errorf("mkt-1 records = %d, want 2", got)
	}
	if got := s.TotalExposure(); got.Int64() != 7_000 {
		t.Errorf("total exposure = %s, want 7000", got)
	}
	if got := s.MarketExposure("mkt-1"); got.Int64() != 3_000 {
		t.Errorf("mkt-1 exposure = %s, want 3000", got)
	}

	// Claiming removes a position from exposure.
	if err := s.MarkClaimed("p-2"); err != nil {
		t.Fatal(err)
	}
	if got := s.TotalExposure(); got.Int64() != 5_000 {
		t.Errorf("exposure after claim = %s, want 5000", got)
	}
	if got := s.MarketExposure("mkt-1"); got.Int64() != 1_000 {
		t.Errorf("mkt-1 exposure after claim = %s, want 1000", got)
	}
}

func TestAllSortedByCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}

	base := time.Unix(1_700_000_000, 0).UTC()
	for i, id := range []string{"p-c", "p-a", "p-b"} {
		rec := testRecord(id, "mkt-1", 100)
		rec.Position.Timestamp = base.Add(time.Duration(2-i) * time.Hour)
		if err := s.Put(rec); err != nil {
			t.Fatal(err)
		}
	}

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("records = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Position.Timestamp.Before(all[i-1].Position.Timestamp) {
			t.Errorf("records out of order at %d", i)
		}
	}
}
