package auction

import (
	"fmt"
	"time"

	"github.com/blendtrade/auctiond/internal/crypto"
	"github.com/blendtrade/auctiond/internal/domain"
)

// RevealParams is the plaintext order plus the secret generated at commit
// time. The engine does not hold the secret between phases; the submitter
// supplies it here.
type RevealParams struct {
	Submitter    string
	Side         domain.OrderSide
	AmountIn     int64
	MinAmountOut int64
	PriorityBid  int64
	Secret       string
}

// Revealer matches plaintext orders against recorded commitments and admits
// verified orders into the batch's open order book.
type Revealer struct{}

// NewRevealer returns a Revealer.
func NewRevealer() *Revealer {
	return &Revealer{}
}

// Reveal recomputes the commitment digest from the plaintext order, the
// secret, and the escrow recorded at commit time, and compares it to the
// stored hash in constant time. On match the order joins RevealedOrders with
// the next reveal rank; on mismatch nothing is mutated.
//
// Errors: domain.ErrWrongPhase outside Reveal, domain.ErrNoCommitmentFound
// without a matching commitment, domain.ErrHashMismatch when any field
// differs from what was committed. Callers must check for a prior reveal
// before calling; Reveal itself admits at most one order per submitter.
func (r *Revealer) Reveal(b *domain.Batch, p RevealParams, now time.Time) (domain.Order, error) {
	if b.Phase != domain.PhaseReveal {
		return domain.Order{}, fmt.Errorf("revealer: batch %d in phase %s: %w", b.ID, b.Phase, domain.ErrWrongPhase)
	}
	c, ok := b.Commitment(p.Submitter)
	if !ok {
		return domain.Order{}, fmt.Errorf("revealer: %s batch %d: %w", p.Submitter, b.ID, domain.ErrNoCommitmentFound)
	}
	if _, revealed := b.Revealed(p.Submitter); revealed {
		// The engine answers repeat reveals idempotently before reaching
		// here; a duplicate at this level means the caller skipped that
		// check.
		return domain.Order{}, fmt.Errorf("revealer: %s batch %d already revealed", p.Submitter, b.ID)
	}

	payload := crypto.CommitPayload{
		Side:         p.Side,
		AmountIn:     p.AmountIn,
		MinAmountOut: p.MinAmountOut,
		PriorityBid:  p.PriorityBid,
		Secret:       p.Secret,
		EscrowWei:    c.EscrowWei,
	}
	if !crypto.VerifyCommit(payload, c.CommitHash) {
		return domain.Order{}, fmt.Errorf("revealer: %s batch %d: %w", p.Submitter, b.ID, domain.ErrHashMismatch)
	}

	o := domain.Order{
		Submitter:    p.Submitter,
		Side:         p.Side,
		AmountIn:     p.AmountIn,
		MinAmountOut: p.MinAmountOut,
		PriorityBid:  p.PriorityBid,
		RevealedAt:   now,
		RevealRank:   len(b.RevealedOrders),
	}
	b.RevealedOrders = append(b.RevealedOrders, o)
	return o, nil
}
