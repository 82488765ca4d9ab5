// Package domain defines the core types of the batch auction engine: batches,
// commitments, orders, settlements, and the store/cache interfaces implemented
// by the infrastructure packages.
package domain

import "time"

// Phase is one stage of the repeating auction cycle.
type Phase string

const (
	PhaseCommit   Phase = "commit"
	PhaseReveal   Phase = "reveal"
	PhaseSettling Phase = "settling"
)

// BatchOutcome records how a batch ended.
type BatchOutcome string

const (
	// BatchOutcomeSettled means settlement completed and produced a Settlement.
	BatchOutcomeSettled BatchOutcome = "settled"
	// BatchOutcomeFailed means settlement did not complete within the grace
	// period (or hit a fatal invariant violation) and all outstanding
	// commitments were resolved as failed.
	BatchOutcomeFailed BatchOutcome = "failed"
)

// Batch is one auction round. Batch IDs are monotonically increasing and
// never reused. A Batch is mutated only by the auction engine; once settled
// it is immutable and handed off for archival.
type Batch struct {
	ID             int64
	Market         string
	Phase          Phase
	PhaseDeadline  time.Time
	OpenedAt       time.Time
	Commitments    map[string]Commitment // keyed by submitter
	RevealedOrders []Order               // reveal order preserved for tie-breaks
	Settlement     *Settlement           // nil until the batch settles
	Outcome        BatchOutcome          // empty while the batch is live
}

// Commitment returns the commitment for submitter, if any.
func (b *Batch) Commitment(submitter string) (Commitment, bool) {
	c, ok := b.Commitments[submitter]
	return c, ok
}

// Revealed returns the revealed order for submitter, if any.
func (b *Batch) Revealed(submitter string) (Order, bool) {
	for _, o := range b.RevealedOrders {
		if o.Submitter == submitter {
			return o, true
		}
	}
	return Order{}, false
}

// BatchSnapshot is the read-only projection of scheduler state that the API
// layer serves to pollers. It carries everything a client needs to render a
// countdown without another round trip.
type BatchSnapshot struct {
	BatchID        int64         `json:"batch_id"`
	Market         string        `json:"market"`
	Phase          Phase         `json:"phase"`
	PhaseDeadline  time.Time     `json:"phase_deadline"`
	TimeRemaining  time.Duration `json:"time_remaining_ms"`
	CommitDuration time.Duration `json:"commit_duration_ms"`
	RevealDuration time.Duration `json:"reveal_duration_ms"`
	Commitments    int           `json:"commitments"`
	Revealed       int           `json:"revealed"`
}
