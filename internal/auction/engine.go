package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blendtrade/auctiond/internal/crypto"
	"github.com/blendtrade/auctiond/internal/domain"
	"github.com/blendtrade/auctiond/internal/settlement"
)

// settleLockTTL bounds how long the distributed settlement lock is held.
const settleLockTTL = 30 * time.Second

// Config holds the engine parameters for one market.
type Config struct {
	Market         string
	CommitDuration time.Duration
	RevealDuration time.Duration
	SettleGrace    time.Duration
	MinEscrowWei   *big.Int
}

// CommitParams carries a commit request. The commit hash is computed
// engine-side from these fields plus a freshly generated secret.
type CommitParams struct {
	Submitter    string
	Side         domain.OrderSide
	AmountIn     int64
	MinAmountOut int64
	PriorityBid  int64
	EscrowWei    *big.Int
}

// Engine is the batch auction orchestrator: the sole writer of the
// authoritative batch state. Client calls (commit, reveal, query) and the
// periodic tick are serialized under one mutex, so no commit is admitted
// mid-transition into Reveal and no reveal mid-transition into Settling;
// calls arriving during a boundary are rejected with ErrWrongPhase, never
// queued into the wrong phase.
//
// The engine performs no I/O of its own: side effects (persistence, escrow
// movement, bus publishing) are emitted as events drained by the service
// layer. The one exception is the optional distributed settlement lock,
// which guards against a second instance settling the same batch.
type Engine struct {
	mu       sync.RWMutex
	cfg      Config
	clock    Clock
	sched    *Scheduler
	ledger   *Ledger
	revealer *Revealer
	locks    domain.LockManager // optional
	logger   *slog.Logger

	cur         *domain.Batch
	lastSettled *domain.Batch

	// Per-submitter state for the current batch.
	statuses       map[string]domain.OrderStatus
	commitReceipts map[string]domain.CommitReceipt
	revealReceipts map[string]domain.RevealReceipt

	// Projection state for the most recently closed batch.
	lastStatuses map[string]domain.OrderStatus

	// failedSticky holds submitters whose last order ended Failed; they must
	// ResetOrder before committing again.
	failedSticky map[string]struct{}

	// resolved guards escrow resolution: at most one release per
	// (batch, submitter) no matter how often resolution is retried.
	resolved map[int64]map[string]bool

	events []domain.Event
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithLockManager attaches a distributed lock manager used to guard
// settlement.
func WithLockManager(lm domain.LockManager) Option {
	return func(e *Engine) { e.locks = lm }
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates an Engine for one market and opens batch 1 in the Commit
// phase.
func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:          cfg,
		clock:        time.Now,
		ledger:       NewLedger(cfg.MinEscrowWei),
		revealer:     NewRevealer(),
		logger:       logger.With(slog.String("component", "auction_engine"), slog.String("market", cfg.Market)),
		failedSticky: make(map[string]struct{}),
		resolved:     make(map[int64]map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	now := e.clock()
	e.sched = NewScheduler(cfg.CommitDuration, cfg.RevealDuration, cfg.SettleGrace, now)
	e.openBatch(e.sched.BatchID(), now)
	return e
}

// openBatch installs a fresh, empty batch. Caller holds the lock (or is the
// constructor).
func (e *Engine) openBatch(id int64, now time.Time) {
	e.cur = &domain.Batch{
		ID:          id,
		Market:      e.cfg.Market,
		Phase:       domain.PhaseCommit,
		OpenedAt:    now,
		Commitments: make(map[string]domain.Commitment),
	}
	e.cur.PhaseDeadline = e.sched.Deadline()
	e.statuses = make(map[string]domain.OrderStatus)
	e.commitReceipts = make(map[string]domain.CommitReceipt)
	e.revealReceipts = make(map[string]domain.RevealReceipt)
	e.resolved[id] = make(map[string]bool)

	// Only the current and previous batch resolutions are consulted.
	for bid := range e.resolved {
		if bid < id-1 {
			delete(e.resolved, bid)
		}
	}

	e.emit(domain.Event{Kind: domain.EventBatchOpened, BatchID: id, Phase: domain.PhaseCommit})
}

func (e *Engine) emit(ev domain.Event) {
	e.events = append(e.events, ev)
}

// DrainEvents returns and clears all pending engine events. The service
// layer calls this after every mutating call and every tick.
func (e *Engine) DrainEvents() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	evs := e.events
	e.events = nil
	return evs
}

// Snapshot returns the read-only projection of current scheduler and batch
// state.
func (e *Engine) Snapshot() domain.BatchSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	commitDur, revealDur := e.sched.Durations()
	return domain.BatchSnapshot{
		BatchID:        e.cur.ID,
		Market:         e.cfg.Market,
		Phase:          e.cur.Phase,
		PhaseDeadline:  e.sched.Deadline(),
		TimeRemaining:  e.sched.TimeRemaining(e.clock()),
		CommitDuration: commitDur,
		RevealDuration: revealDur,
		Commitments:    len(e.cur.Commitments),
		Revealed:       len(e.cur.RevealedOrders),
	}
}

// CanCommit reports whether submitter may commit right now: the phase is
// Commit, no commitment exists this batch, and no failed order is awaiting
// reset.
func (e *Engine) CanCommit(submitter string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cur.Phase != domain.PhaseCommit {
		return false
	}
	if _, failed := e.failedSticky[submitter]; failed {
		return false
	}
	_, committed := e.cur.Commitments[submitter]
	return !committed
}

// CommitOrder computes the commitment hash from the supplied order fields
// and a freshly generated secret, records the commitment, and returns the
// receipt carrying the secret. The engine does not retain the secret; the
// submitter must present it at reveal time.
func (e *Engine) CommitOrder(p CommitParams) (domain.CommitReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, failed := e.failedSticky[p.Submitter]; failed {
		return domain.CommitReceipt{}, fmt.Errorf("engine: %s has a failed order awaiting reset: %w", p.Submitter, domain.ErrResetRequired)
	}
	if p.Side != domain.OrderSideBuy && p.Side != domain.OrderSideSell {
		return domain.CommitReceipt{}, fmt.Errorf("engine: side %q: %w", p.Side, domain.ErrInvalidOrder)
	}
	if p.AmountIn <= 0 || p.MinAmountOut <= 0 || p.PriorityBid < 0 {
		return domain.CommitReceipt{}, fmt.Errorf("engine: non-positive amounts: %w", domain.ErrInvalidOrder)
	}

	secret, err := crypto.NewSecret()
	if err != nil {
		return domain.CommitReceipt{}, err
	}
	digest := crypto.CommitDigest(crypto.CommitPayload{
		Side:         p.Side,
		AmountIn:     p.AmountIn,
		MinAmountOut: p.MinAmountOut,
		PriorityBid:  p.PriorityBid,
		Secret:       secret,
		EscrowWei:    p.EscrowWei,
	})

	now := e.clock()
	c, err := e.ledger.Commit(e.cur, p.Submitter, digest, p.EscrowWei, now)
	if err != nil {
		return domain.CommitReceipt{}, err
	}

	e.statuses[p.Submitter] = domain.OrderStatusCommitted
	receipt := domain.CommitReceipt{
		ReceiptID:  uuid.New().String(),
		BatchID:    e.cur.ID,
		Submitter:  p.Submitter,
		CommitHash: crypto.EncodeHash(digest),
		Secret:     secret,
		AcceptedAt: now,
	}
	e.commitReceipts[p.Submitter] = receipt
	e.emit(domain.Event{
		Kind:       domain.EventCommitAccepted,
		BatchID:    e.cur.ID,
		Phase:      e.cur.Phase,
		Submitter:  p.Submitter,
		Commitment: &c,
	})
	return receipt, nil
}

// RevealOrder validates the plaintext order against the commitment recorded
// in the Commit phase and admits it into the batch's order book. A repeated
// reveal after success returns the original receipt unchanged: one admitted
// order, never two.
func (e *Engine) RevealOrder(p RevealParams) (domain.RevealReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.revealReceipts[p.Submitter]; ok && r.BatchID == e.cur.ID {
		return r, nil
	}

	now := e.clock()
	o, err := e.revealer.Reveal(e.cur, p, now)
	if err != nil {
		return domain.RevealReceipt{}, err
	}

	e.statuses[p.Submitter] = domain.OrderStatusRevealed
	receipt := domain.RevealReceipt{
		ReceiptID:  uuid.New().String(),
		BatchID:    e.cur.ID,
		Submitter:  p.Submitter,
		RevealRank: o.RevealRank,
		AcceptedAt: now,
	}
	e.revealReceipts[p.Submitter] = receipt
	e.emit(domain.Event{
		Kind:      domain.EventRevealAccepted,
		BatchID:   e.cur.ID,
		Phase:     e.cur.Phase,
		Submitter: p.Submitter,
		Order:     &o,
	})
	return receipt, nil
}

// GetUserOrder projects the submitter's current order status. During
// Settling the view is either pre-settlement or fully settled, never
// partial: settlement mutates batch state under the same mutex this read
// takes.
func (e *Engine) GetUserOrder(submitter string) domain.UserOrderView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// Activity in the current batch wins.
	if st, ok := e.statuses[submitter]; ok {
		return e.viewFromBatch(e.cur, submitter, st)
	}

	// Otherwise project the most recently closed batch.
	if e.lastSettled != nil {
		if st, ok := e.lastStatuses[submitter]; ok {
			return e.viewFromBatch(e.lastSettled, submitter, st)
		}
	}

	st := domain.OrderStatusNone
	if _, failed := e.failedSticky[submitter]; failed {
		st = domain.OrderStatusFailed
	}
	return domain.UserOrderView{Submitter: submitter, BatchID: e.cur.ID, Status: st}
}

func (e *Engine) viewFromBatch(b *domain.Batch, submitter string, st domain.OrderStatus) domain.UserOrderView {
	view := domain.UserOrderView{
		Submitter: submitter,
		BatchID:   b.ID,
		Status:    st,
	}
	if c, ok := b.Commitment(submitter); ok {
		view.CommitHash = crypto.EncodeHash(c.CommitHash)
	}
	if o, ok := b.Revealed(submitter); ok {
		view.Order = &o
	}
	if b.Settlement != nil {
		view.Settlement = b.Settlement
		if f, ok := b.Settlement.FillFor(submitter); ok {
			view.Fill = &f
		}
	}
	return view
}

// ResetOrder clears a terminal Failed state so the submitter can commit in a
// later batch. It is a no-op for submitters not in the failed state.
func (e *Engine) ResetOrder(submitter string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failedSticky, submitter)
	if st, ok := e.statuses[submitter]; ok && st == domain.OrderStatusFailed {
		delete(e.statuses, submitter)
	}
}

// Tick drives phase transitions. It is safe to call redundantly: before any
// deadline it is a no-op. On Reveal close it resolves unrevealed
// commitments, runs settlement exactly once, and opens the next batch with a
// fresh empty ledger.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	phase, changed := e.sched.Tick(now)
	if changed {
		e.cur.Phase = phase
		e.cur.PhaseDeadline = e.sched.Deadline()
		e.emit(domain.Event{Kind: domain.EventPhaseChanged, BatchID: e.cur.ID, Phase: phase})

		if phase == domain.PhaseSettling {
			e.closeReveals()
		}
	}

	if e.cur.Phase == domain.PhaseSettling {
		e.settle(ctx, now)
	}
}

// closeReveals resolves every commitment that was never revealed: escrow
// returned, status Failed. Deadline misses are routine outcomes, not
// exceptional ones.
func (e *Engine) closeReveals() {
	for submitter, c := range e.cur.Commitments {
		if _, revealed := e.cur.Revealed(submitter); revealed {
			e.statuses[submitter] = domain.OrderStatusSettling
			continue
		}
		e.failSubmitter(submitter, c, false)
	}
}

// failSubmitter marks the submitter's order Failed and emits an idempotent
// escrow refund.
func (e *Engine) failSubmitter(submitter string, c domain.Commitment, revealed bool) {
	e.statuses[submitter] = domain.OrderStatusFailed
	e.failedSticky[submitter] = struct{}{}
	e.resolveEscrow(submitter, c.EscrowWei, domain.ResolutionRefunded, revealed)
}

// resolveEscrow emits at most one escrow resolution per (batch, submitter).
// Retried calls are dropped so a duplicated external release can never
// happen.
func (e *Engine) resolveEscrow(submitter string, amount *big.Int, outcome domain.ResolutionOutcome, revealed bool) {
	guard := e.resolved[e.cur.ID]
	if guard[submitter] {
		return
	}
	guard[submitter] = true
	e.emit(domain.Event{
		Kind:      domain.EventEscrowResolve,
		BatchID:   e.cur.ID,
		Submitter: submitter,
		EscrowWei: amount,
		Outcome:   outcome,
		Revealed:  revealed,
	})
}

// settle runs the settlement once, publishes the result, and opens the next
// batch. If the distributed settlement lock is held elsewhere it retries on
// subsequent ticks until the grace period lapses, at which point the batch
// is force-failed rather than left to deadlock the cycle.
func (e *Engine) settle(ctx context.Context, now time.Time) {
	if e.cur.Settlement != nil {
		// Settling twice would break the uniform-price guarantee; the
		// scheduler only enters this path once per batch.
		e.logger.Error("invariant violation: settle called on settled batch",
			slog.Int64("batch_id", e.cur.ID))
		e.failBatch(now, "invariant violation: settle called on settled batch")
		return
	}

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, fmt.Sprintf("settle:%s:%d", e.cfg.Market, e.cur.ID), settleLockTTL)
		if err != nil {
			// A held lock and a transient acquire failure look the same from
			// here: settlement has not completed yet. Keep retrying on later
			// ticks; only a lapsed grace period force-fails the batch.
			if !e.sched.GraceExceeded(now) {
				if !errors.Is(err, domain.ErrLockHeld) {
					e.logger.Warn("settlement lock acquire failed, retrying",
						slog.Int64("batch_id", e.cur.ID),
						slog.String("error", err.Error()))
				}
				return
			}
			e.logger.Error("settlement lock unavailable past grace, force-failing batch",
				slog.Int64("batch_id", e.cur.ID),
				slog.String("error", err.Error()))
			e.failBatch(now, "settlement lock unavailable past grace: "+err.Error())
			return
		}
		defer unlock()
	}

	result, err := settlement.Clear(e.cur.ID, e.cur.RevealedOrders)
	if err != nil {
		// Invariant violation: halt this batch and alert, never publish a
		// partial settlement.
		e.logger.Error("settlement invariant violation, halting batch",
			slog.Int64("batch_id", e.cur.ID),
			slog.String("error", err.Error()))
		e.failBatch(now, "settlement invariant violation: "+err.Error())
		return
	}

	s := result.Settlement
	s.SettledAt = now
	e.cur.Settlement = &s
	e.cur.Outcome = domain.BatchOutcomeSettled

	pricedOut := make(map[string]struct{}, len(result.PricedOut))
	for _, sub := range result.PricedOut {
		pricedOut[sub] = struct{}{}
	}
	for _, o := range e.cur.RevealedOrders {
		c := e.cur.Commitments[o.Submitter]
		if _, out := pricedOut[o.Submitter]; out {
			e.failSubmitter(o.Submitter, c, true)
			continue
		}
		e.statuses[o.Submitter] = domain.OrderStatusSettled
		e.resolveEscrow(o.Submitter, c.EscrowWei, domain.ResolutionSettled, true)
	}

	e.emit(domain.Event{
		Kind:       domain.EventBatchSettled,
		BatchID:    e.cur.ID,
		Settlement: e.cur.Settlement,
		Batch:      e.cur,
	})
	e.rotate(now)
}

// failBatch resolves every outstanding commitment as refunded and closes the
// batch without a settlement. The reason travels on the event so the service
// layer can page an operator with it.
func (e *Engine) failBatch(now time.Time, reason string) {
	e.cur.Outcome = domain.BatchOutcomeFailed
	for submitter, c := range e.cur.Commitments {
		if st := e.statuses[submitter]; st == domain.OrderStatusFailed || st == domain.OrderStatusSettled {
			continue
		}
		_, revealed := e.cur.Revealed(submitter)
		e.failSubmitter(submitter, c, revealed)
	}
	e.emit(domain.Event{Kind: domain.EventBatchFailed, BatchID: e.cur.ID, Batch: e.cur, Reason: reason})
	e.rotate(now)
}

// rotate archives the closed batch for projection and opens the next one.
// Nothing carries across: the new batch starts with an empty commitment
// ledger.
func (e *Engine) rotate(now time.Time) {
	e.lastSettled = e.cur
	e.lastStatuses = e.statuses
	e.sched.CompleteSettling(now)
	e.openBatch(e.sched.BatchID(), now)
	e.emit(domain.Event{Kind: domain.EventPhaseChanged, BatchID: e.cur.ID, Phase: domain.PhaseCommit})
}
