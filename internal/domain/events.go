package domain

import "math/big"

// EventKind identifies an engine lifecycle event emitted from a tick or a
// client call. The service layer consumes these for persistence, escrow
// resolution, and bus publishing; the engine itself performs no I/O.
type EventKind string

const (
	EventBatchOpened    EventKind = "batch_opened"
	EventPhaseChanged   EventKind = "phase_changed"
	EventCommitAccepted EventKind = "commit_accepted"
	EventRevealAccepted EventKind = "reveal_accepted"
	EventBatchSettled   EventKind = "batch_settled"
	EventBatchFailed    EventKind = "batch_failed"
	EventEscrowResolve  EventKind = "escrow_resolve"
)

// Event is one engine lifecycle event.
type Event struct {
	Kind    EventKind
	BatchID int64
	Phase   Phase

	// Commit/reveal detail, set for the corresponding kinds.
	Submitter  string
	Commitment *Commitment
	Order      *Order

	// Settlement detail, set for EventBatchSettled.
	Settlement *Settlement
	Batch      *Batch

	// Escrow resolution detail, set for EventEscrowResolve.
	EscrowWei *big.Int
	Outcome   ResolutionOutcome
	Revealed  bool

	// Reason describes why a batch failed, set for EventBatchFailed.
	Reason string
}
