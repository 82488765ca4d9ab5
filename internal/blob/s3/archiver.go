package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blendtrade/auctiond/internal/domain"
)

// Archiver uploads closed batches to cold storage as JSONL. The engine hands
// over a batch only after it reaches a terminal outcome, so every archived
// record is immutable.
//
// Deletion of the corresponding rows from the primary store is intentionally
// NOT performed here; that is a separate, explicit step executed after the
// archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil, in which case archival
// events are not logged.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// batchHeader is the first line of a batch archive.
type batchHeader struct {
	Kind      string              `json:"kind"` // "batch"
	BatchID   int64               `json:"batch_id"`
	Market    string              `json:"market"`
	OpenedAt  time.Time           `json:"opened_at"`
	Outcome   domain.BatchOutcome `json:"outcome"`
	NumCommit int                 `json:"commitments"`
	NumReveal int                 `json:"revealed"`
}

type commitmentLine struct {
	Kind        string    `json:"kind"` // "commitment"
	Submitter   string    `json:"submitter"`
	CommitHash  string    `json:"commit_hash"`
	EscrowWei   string    `json:"escrow_wei"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type orderLine struct {
	Kind  string       `json:"kind"` // "order"
	Order domain.Order `json:"order"`
}

type settlementLine struct {
	Kind       string            `json:"kind"` // "settlement"
	Settlement domain.Settlement `json:"settlement"`
}

// ArchiveBatch serializes one closed batch to JSONL and uploads it at
// archive/{market}/batch-{id}.jsonl. One line per record: a header, then
// every commitment, every revealed order, and the settlement if one exists.
func (a *Archiver) ArchiveBatch(ctx context.Context, b *domain.Batch) error {
	if b.Outcome == "" {
		return fmt.Errorf("s3blob: archive of live batch %d refused", b.ID)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	header := batchHeader{
		Kind:      "batch",
		BatchID:   b.ID,
		Market:    b.Market,
		OpenedAt:  b.OpenedAt,
		Outcome:   b.Outcome,
		NumCommit: len(b.Commitments),
		NumReveal: len(b.RevealedOrders),
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("s3blob: encode batch header: %w", err)
	}

	for submitter, c := range b.Commitments {
		line := commitmentLine{
			Kind:        "commitment",
			Submitter:   submitter,
			CommitHash:  fmt.Sprintf("0x%x", c.CommitHash),
			EscrowWei:   c.EscrowWei.String(),
			SubmittedAt: c.SubmittedAt,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("s3blob: encode commitment: %w", err)
		}
	}

	for _, o := range b.RevealedOrders {
		if err := enc.Encode(orderLine{Kind: "order", Order: o}); err != nil {
			return fmt.Errorf("s3blob: encode order: %w", err)
		}
	}

	if b.Settlement != nil {
		if err := enc.Encode(settlementLine{Kind: "settlement", Settlement: *b.Settlement}); err != nil {
			return fmt.Errorf("s3blob: encode settlement: %w", err)
		}
	}

	key := archiveKey(b.Market, b.ID)
	if err := a.writer.Write(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive batch %d: %w", b.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.batch", map[string]any{
			"key":      key,
			"batch_id": b.ID,
			"market":   b.Market,
			"outcome":  string(b.Outcome),
		}); err != nil {
			return fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return nil
}

func archiveKey(market string, batchID int64) string {
	return fmt.Sprintf("archive/%s/batch-%d.jsonl", market, batchID)
}
