// Package privstate is the user-owned local position store. Positions never
// leave this store in plaintext; the file on disk is optionally encrypted
// with a passphrase. Each store belongs to exactly one user and must never
// be mutated by any other party.
package privstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bodega-labs/bodegad/internal/crypto"
	"github.com/bodega-labs/bodegad/internal/domain"
)

// Record is one stored position plus its claim bookkeeping. Claimed flips
// exactly once; a claimed position is dead and can never be claimed again.
type Record struct {
	PositionID string
	Position   domain.PrivatePosition
	LeafIndex  int
	BatchID    string
	Claimed    bool
	ClaimedAt  *time.Time
}

// recordJSON is the on-disk shape. Big integers are string-encoded so
// amounts and nonces round-trip without precision loss; timestamps are unix
// seconds, which is the precision the commitment hash binds.
type recordJSON struct {
	PositionID string `json:"position_id"`
	UserID     string `json:"user_id"`
	Amount     string `json:"amount"`
	Outcome    int    `json:"outcome"`
	Nonce      string `json:"nonce"`
	MarketID   string `json:"market_id"`
	Timestamp  int64  `json:"timestamp"`
	LeafIndex  int    `json:"leaf_index"`
	BatchID    string `json:"batch_id,omitempty"`
	Claimed    bool   `json:"claimed"`
	ClaimedAt  *int64 `json:"claimed_at,omitempty"`
}

// Store holds a single user's positions, persisted to one file.
type Store struct {
	mu         sync.Mutex
	path       string
	passphrase string // empty disables at-rest encryption
	records    map[string]Record
}

// Open loads (or initializes) the position store at path. A non-empty
// passphrase enables AES-GCM encryption at rest.
func Open(path, passphrase string) (*Store, error) {
	s := &Store{
		path:       path,
		passphrase: passphrase,
		records:    make(map[string]Record),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("privstate: read %s: %w", path, err)
	}

	if passphrase != "" {
		data, err = crypto.Open(data, passphrase)
		if err != nil {
			return nil, fmt.Errorf("privstate: decrypt %s: %w", path, err)
		}
	}

	var rows []recordJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("privstate: parse %s: %w", path, err)
	}
	for _, row := range rows {
		rec, err := decodeRecord(row)
		if err != nil {
			return nil, fmt.Errorf("privstate: record %s: %w", row.PositionID, err)
		}
		s.records[rec.PositionID] = rec
	}
	return s, nil
}

// Put stores a record and persists the file.
func (s *Store) Put(rec Record) error {
	if rec.PositionID == "" {
		return errors.New("privstate: record has no position id")
	}
	if err := rec.Position.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.PositionID] = rec
	return s.persistLocked()
}

// Get returns the record for a position id.
func (s *Store) Get(positionID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[positionID]
	return rec, ok
}

// MarkClaimed consumes a position. A second call for the same position
// fails: the position is already dead.
func (s *Store) MarkClaimed(positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[positionID]
	if !ok {
		return domain.NewError(domain.CodeInvalidPosition, "position not found in private storage", nil).
			WithDetail("position_id", positionID)
	}
	if rec.Claimed {
		return domain.NewError(domain.CodePositionAlreadyClaimed, "position already consumed", nil).
			WithDetail("position_id", positionID)
	}
	now := time.Now()
	rec.Claimed = true
	rec.ClaimedAt = &now
	s.records[positionID] = rec
	return s.persistLocked()
}

// All returns every record, sorted by creation time for stable output.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Position.Timestamp.Before(out[j].Position.Timestamp)
	})
	return out
}

// ByMarket returns the user's records for one market.
func (s *Store) ByMarket(marketID string) []Record {
	var out []Record
	for _, rec := range s.All() {
		if rec.Position.MarketID == marketID {
			out = append(out, rec)
		}
	}
	return out
}

// TotalExposure sums the stake of every unclaimed position.
func (s *Store) TotalExposure() *big.Int {
	total := new(big.Int)
	for _, rec := range s.All() {
		if !rec.Claimed {
			total.Add(total, rec.Position.Amount)
		}
	}
	return total
}

// MarketExposure sums the stake of unclaimed positions in one market.
func (s *Store) MarketExposure(marketID string) *big.Int {
	total := new(big.Int)
	for _, rec := range s.ByMarket(marketID) {
		if !rec.Claimed {
			total.Add(total, rec.Position.Amount)
		}
	}
	return total
}

// persistLocked writes the store file atomically via a temp file rename.
// Caller holds s.mu.
func (s *Store) persistLocked() error {
	rows := make([]recordJSON, 0, len(s.records))
	for _, rec := range s.records {
		rows = append(rows, encodeRecord(rec))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PositionID < rows[j].PositionID })

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("privstate: marshal: %w", err)
	}

	if s.passphrase != "" {
		data, err = crypto.Seal(data, s.passphrase)
		if err != nil {
			return fmt.Errorf("privstate: encrypt: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("privstate: mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("privstate: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("privstate: rename: %w", err)
	}
	return nil
}

func encodeRecord(rec Record) recordJSON {
	row := recordJSON{
		PositionID: rec.PositionID,
		UserID:     rec.Position.UserID,
		Amount:     rec.Position.Amount.String(),
		Outcome:    int(rec.Position.Outcome),
		Nonce:      rec.Position.Nonce.String(),
		MarketID:   rec.Position.MarketID,
		Timestamp:  rec.Position.Timestamp.Unix(),
		LeafIndex:  rec.LeafIndex,
		BatchID:    rec.BatchID,
		Claimed:    rec.Claimed,
	}
	if rec.ClaimedAt != nil {
		ts := rec.ClaimedAt.Unix()
		row.ClaimedAt = &ts
	}
	return row
}

func decodeRecord(row recordJSON) (Record, error) {
	amount, ok := new(big.Int).SetString(row.Amount, 10)
	if !ok {
		return Record{}, fmt.Errorf("invalid amount %q", row.Amount)
	}
	nonce, ok := new(big.Int).SetString(row.Nonce, 10)
	if !ok {
		return Record{}, fmt.Errorf("invalid nonce %q", row.Nonce)
	}

	rec := Record{
		PositionID: row.PositionID,
		Position: domain.PrivatePosition{
			UserID:    row.UserID,
			Amount:    amount,
			Outcome:   domain.Outcome(row.Outcome),
			Nonce:     nonce,
			MarketID:  row.MarketID,
			Timestamp: time.Unix(row.Timestamp, 0).UTC(),
		},
		LeafIndex: row.LeafIndex,
		BatchID:   row.BatchID,
		Claimed:   row.Claimed,
	}
	if row.ClaimedAt != nil {
		ts := time.Unix(*row.ClaimedAt, 0).UTC()
		rec.ClaimedAt = &ts
	}
	return rec, nil
}
