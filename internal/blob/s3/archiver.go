package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these through their ListProcessedBefore / ListBefore methods.

// BatchArchiveStore provides read access to processed batches for archival.
type BatchArchiveStore interface {
	// ListProcessedBefore returns all processed batches, entries included,
	// whose batch time is strictly before the cutoff.
	ListProcessedBefore(ctx context.Context, before time.Time) ([]domain.Batch, error)
}

// AuditArchiveStore provides read access to aged audit entries for archival.
type AuditArchiveStore interface {
	// ListBefore returns all audit entries created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for aged
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	batches BatchArchiveStore
	aged    AuditArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	batches BatchArchiveStore,
	aged AuditArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		batches: batches,
		aged:    aged,
		audit:   audit,
	}
}

// batchRecord is the archived shape of a batch. Amounts are decimal strings
// so the archive round-trips without precision loss.
type batchRecord struct {
	ID              string        `json:"id"`
	MarketID        string        `json:"market_id"`
	Root            string        `json:"root"`
	TotalValue      string        `json:"total_value"`
	ValueCommitment []byte        `json:"value_commitment,omitempty"`
	PositionCount   int           `json:"position_count"`
	Timestamp       time.Time     `json:"timestamp"`
	Entries         []entryRecord `json:"entries,omitempty"`
}

type entryRecord struct {
	Index      int    `json:"index"`
	Commitment string `json:"commitment"`
	Amount     string `json:"amount"`
	Outcome    int    `json:"outcome"`
}

// ArchiveBatches queries all processed batches before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/batches/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveBatches(ctx context.Context, before time.Time) (int64, error) {
	batches, err := a.batches.ListProcessedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive batches query: %w", err)
	}
	if len(batches) == 0 {
		return 0, nil
	}

	records := make([]batchRecord, 0, len(batches))
	for _, b := range batches {
		rec := batchRecord{
			ID:              b.ID,
			MarketID:        b.MarketID,
			Root:            b.Root,
			TotalValue:      b.TotalValue.String(),
			ValueCommitment: b.ValueCommitment,
			PositionCount:   b.PositionCount,
			Timestamp:       b.Timestamp,
		}
		for _, e := range b.Entries {
			rec.Entries = append(rec.Entries, entryRecord{
				Index:      e.Index,
				Commitment: e.Commitment,
				Amount:     e.Amount.String(),
				Outcome:    int(e.Outcome),
			})
		}
		records = append(records, rec)
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive batches marshal: %w", err)
	}

	path := archivePath("batches", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive batches upload: %w", err)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive.batches", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive batches audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuditLog queries all audit entries before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/audit/YYYY-MM.jsonl.
func (a *ArchiveImpl) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.aged.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/batches/2025-01.jsonl
//	archive/audit/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
