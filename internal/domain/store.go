package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// BatchRecord is the persisted form of a batch's lifecycle row.
type BatchRecord struct {
	ID          int64        `json:"id"`
	Market      string       `json:"market"`
	OpenedAt    time.Time    `json:"opened_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
	Outcome     BatchOutcome `json:"outcome,omitempty"`
	Commitments int          `json:"commitments"`
	Revealed    int          `json:"revealed"`
}

// BatchStore persists batch lifecycle rows.
type BatchStore interface {
	Open(ctx context.Context, rec BatchRecord) error
	Close(ctx context.Context, id int64, outcome BatchOutcome, commitments, revealed int, closedAt time.Time) error
	GetByID(ctx context.Context, id int64) (BatchRecord, error)
	ListRecent(ctx context.Context, market string, opts ListOpts) ([]BatchRecord, error)
}

// CommitmentRecord is the persisted form of one commitment plus its terminal
// resolution, written once the batch closes.
type CommitmentRecord struct {
	BatchID     int64
	Submitter   string
	CommitHash  string
	EscrowWei   *big.Int
	SubmittedAt time.Time
	Revealed    bool
	Outcome     ResolutionOutcome
}

// CommitmentStore persists commitments and their resolutions.
type CommitmentStore interface {
	Insert(ctx context.Context, rec CommitmentRecord) error
	Resolve(ctx context.Context, batchID int64, submitter string, revealed bool, outcome ResolutionOutcome) error
	ListByBatch(ctx context.Context, batchID int64) ([]CommitmentRecord, error)
}

// SettlementStore persists settlements and their fills.
type SettlementStore interface {
	Insert(ctx context.Context, s Settlement) error
	GetByBatch(ctx context.Context, batchID int64) (Settlement, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Settlement, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
