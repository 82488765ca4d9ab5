package domain

import (
	"math/big"
	"time"
)

// Commitment is one hidden order: a digest binding the order payload plus the
// escrow reserved behind it. Exactly one commitment is accepted per submitter
// per batch; a second attempt is rejected, never overwritten. Commitments are
// immutable once accepted and cannot be withdrawn before Reveal.
type Commitment struct {
	Submitter   string
	CommitHash  [32]byte
	EscrowWei   *big.Int // must be > 0
	SubmittedAt time.Time
}

// CommitReceipt is returned to the submitter after a commitment is accepted.
// The secret is generated engine-side at commit time and handed back to the
// client; the engine does not retain it between phases.
type CommitReceipt struct {
	ReceiptID  string    `json:"receipt_id"`
	BatchID    int64     `json:"batch_id"`
	Submitter  string    `json:"submitter"`
	CommitHash string    `json:"commit_hash"`
	Secret     string    `json:"secret"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// RevealReceipt is returned after a reveal is validated and the order is
// admitted into the batch's open order book.
type RevealReceipt struct {
	ReceiptID  string    `json:"receipt_id"`
	BatchID    int64     `json:"batch_id"`
	Submitter  string    `json:"submitter"`
	RevealRank int       `json:"reveal_rank"` // 0-based admission order
	AcceptedAt time.Time `json:"accepted_at"`
}

// ResolutionOutcome is the terminal disposition of a commitment's escrow.
type ResolutionOutcome string

const (
	// ResolutionSettled releases escrow per the settlement fill.
	ResolutionSettled ResolutionOutcome = "settled"
	// ResolutionRefunded returns escrow for unrevealed or priced-out orders.
	ResolutionRefunded ResolutionOutcome = "refunded"
)
