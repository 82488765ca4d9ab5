package auction

import (
	"fmt"
	"math/big"
	"time"

	"github.com/blendtrade/auctiond/internal/domain"
)

// Ledger validates and records commitments against the current batch. It is
// append-only: an accepted commitment is immutable and cannot be withdrawn
// or altered before Reveal, which is what removes the incentive to watch the
// batch and bail out.
type Ledger struct {
	minEscrowWei *big.Int // nil means any positive amount
}

// NewLedger returns a Ledger enforcing the given minimum escrow. Pass nil to
// accept any positive amount.
func NewLedger(minEscrowWei *big.Int) *Ledger {
	return &Ledger{minEscrowWei: minEscrowWei}
}

// Commit validates and appends a commitment to the batch. It returns
// domain.ErrWrongPhase outside the Commit phase, domain.ErrInvalidEscrow for
// a non-positive or sub-minimum escrow, and domain.ErrDuplicateCommitment
// when the submitter already holds one this batch — the existing commitment
// is never overwritten.
func (l *Ledger) Commit(b *domain.Batch, submitter string, commitHash [32]byte, escrowWei *big.Int, now time.Time) (domain.Commitment, error) {
	if b.Phase != domain.PhaseCommit {
		return domain.Commitment{}, fmt.Errorf("ledger: batch %d in phase %s: %w", b.ID, b.Phase, domain.ErrWrongPhase)
	}
	if escrowWei == nil || escrowWei.Sign() <= 0 {
		return domain.Commitment{}, fmt.Errorf("ledger: %w", domain.ErrInvalidEscrow)
	}
	if l.minEscrowWei != nil && escrowWei.Cmp(l.minEscrowWei) < 0 {
		return domain.Commitment{}, fmt.Errorf("ledger: escrow below minimum %s: %w", l.minEscrowWei, domain.ErrInvalidEscrow)
	}
	if _, exists := b.Commitments[submitter]; exists {
		return domain.Commitment{}, fmt.Errorf("ledger: %s batch %d: %w", submitter, b.ID, domain.ErrDuplicateCommitment)
	}

	c := domain.Commitment{
		Submitter:   submitter,
		CommitHash:  commitHash,
		EscrowWei:   new(big.Int).Set(escrowWei),
		SubmittedAt: now,
	}
	b.Commitments[submitter] = c
	return c, nil
}
