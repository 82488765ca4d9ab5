// Package service coordinates the auction engine with persistence, escrow
// custody, caching, and event publishing. The engine stays pure and
// in-memory; everything with a network hop lives here.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/blendtrade/auctiond/internal/auction"
	"github.com/blendtrade/auctiond/internal/crypto"
	"github.com/blendtrade/auctiond/internal/domain"
)

// Bus channel names for auction events.
const (
	ChannelPhase      = "ch:phase"
	ChannelCommit     = "ch:commit"
	ChannelReveal     = "ch:reveal"
	ChannelSettlement = "ch:settlement"
)

// commitRateLimit caps commit/reveal calls per submitter per second.
const (
	commitRateLimit  = 5
	commitRateWindow = time.Second
)

// Archiver uploads a closed batch to cold storage.
type Archiver interface {
	ArchiveBatch(ctx context.Context, batch *domain.Batch) error
}

// Alerter pages operators about auction incidents, filtered by event name.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// AuctionService exposes the engine's public operations and fans engine
// events out to the stores, the escrow custodian, the signal bus, and the
// archiver. Persistence is write-behind: the in-memory engine remains
// authoritative and infra failures are logged, not surfaced to callers whose
// protocol operation already succeeded.
type AuctionService struct {
	engine      *auction.Engine
	custodian   domain.EscrowCustodian
	batches     domain.BatchStore
	commitments domain.CommitmentStore
	settlements domain.SettlementStore
	audit       domain.AuditStore
	phases      domain.PhaseCache
	bus         domain.SignalBus
	limiter     domain.RateLimiter
	archiver    Archiver
	alerts      Alerter
	logger      *slog.Logger
}

// Deps bundles the collaborators for NewAuctionService. Engine, Custodian,
// and Logger are required; the rest may be nil and the corresponding side
// effect is skipped.
type Deps struct {
	Engine      *auction.Engine
	Custodian   domain.EscrowCustodian
	Batches     domain.BatchStore
	Commitments domain.CommitmentStore
	Settlements domain.SettlementStore
	Audit       domain.AuditStore
	Phases      domain.PhaseCache
	Bus         domain.SignalBus
	Limiter     domain.RateLimiter
	Archiver    Archiver
	Alerts      Alerter
	Logger      *slog.Logger
}

// NewAuctionService creates an AuctionService.
func NewAuctionService(d Deps) *AuctionService {
	return &AuctionService{
		engine:      d.Engine,
		custodian:   d.Custodian,
		batches:     d.Batches,
		commitments: d.Commitments,
		settlements: d.Settlements,
		audit:       d.Audit,
		phases:      d.Phases,
		bus:         d.Bus,
		limiter:     d.Limiter,
		archiver:    d.Archiver,
		alerts:      d.Alerts,
		logger:      d.Logger.With(slog.String("component", "auction_service")),
	}
}

// CommitOrder reserves escrow with the custodian and records the commitment.
// If the engine rejects the commit, the reservation is released immediately
// so funds are never stranded.
func (s *AuctionService) CommitOrder(ctx context.Context, p auction.CommitParams) (domain.CommitReceipt, error) {
	p.Submitter = crypto.NormalizeSubmitter(p.Submitter)

	if err := s.allow(ctx, "commit:"+p.Submitter); err != nil {
		return domain.CommitReceipt{}, err
	}

	snap := s.engine.Snapshot()
	if err := s.custodian.Reserve(ctx, p.Submitter, p.EscrowWei, snap.BatchID); err != nil {
		return domain.CommitReceipt{}, fmt.Errorf("service: reserve escrow: %w", err)
	}

	receipt, err := s.engine.CommitOrder(p)
	if err != nil {
		if relErr := s.custodian.Release(ctx, p.Submitter, p.EscrowWei, domain.ResolutionRefunded); relErr != nil {
			s.logger.ErrorContext(ctx, "rollback escrow release failed",
				slog.String("submitter", p.Submitter),
				slog.String("error", relErr.Error()),
			)
		}
		return domain.CommitReceipt{}, err
	}

	s.dispatch(ctx, s.engine.DrainEvents())
	return receipt, nil
}

// RevealOrder validates the plaintext order against its commitment.
func (s *AuctionService) RevealOrder(ctx context.Context, p auction.RevealParams) (domain.RevealReceipt, error) {
	p.Submitter = crypto.NormalizeSubmitter(p.Submitter)

	if err := s.allow(ctx, "reveal:"+p.Submitter); err != nil {
		return domain.RevealReceipt{}, err
	}

	receipt, err := s.engine.RevealOrder(p)
	if err != nil {
		return domain.RevealReceipt{}, err
	}

	s.dispatch(ctx, s.engine.DrainEvents())
	return receipt, nil
}

// GetUserOrder returns the submitter's current order projection.
func (s *AuctionService) GetUserOrder(submitter string) domain.UserOrderView {
	return s.engine.GetUserOrder(crypto.NormalizeSubmitter(submitter))
}

// CanCommit reports whether the submitter may commit right now.
func (s *AuctionService) CanCommit(submitter string) bool {
	return s.engine.CanCommit(crypto.NormalizeSubmitter(submitter))
}

// ResetOrder clears a terminal Failed state.
func (s *AuctionService) ResetOrder(submitter string) {
	s.engine.ResetOrder(crypto.NormalizeSubmitter(submitter))
}

// Snapshot returns the current batch snapshot.
func (s *AuctionService) Snapshot() domain.BatchSnapshot {
	return s.engine.Snapshot()
}

// GetSettlement returns the persisted settlement for a closed batch.
func (s *AuctionService) GetSettlement(ctx context.Context, batchID int64) (domain.Settlement, error) {
	if s.settlements == nil {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return s.settlements.GetByBatch(ctx, batchID)
}

// ListBatches returns recently closed batches for this market, newest first.
func (s *AuctionService) ListBatches(ctx context.Context, opts domain.ListOpts) ([]domain.BatchRecord, error) {
	if s.batches == nil {
		return nil, nil
	}
	return s.batches.ListRecent(ctx, s.engine.Snapshot().Market, opts)
}

// GetBatch returns the persisted lifecycle row for one batch.
func (s *AuctionService) GetBatch(ctx context.Context, batchID int64) (domain.BatchRecord, error) {
	if s.batches == nil {
		return domain.BatchRecord{}, domain.ErrNotFound
	}
	return s.batches.GetByID(ctx, batchID)
}

// ListBatchCommitments returns the commitments recorded for one batch with
// their terminal resolutions.
func (s *AuctionService) ListBatchCommitments(ctx context.Context, batchID int64) ([]domain.CommitmentRecord, error) {
	if s.commitments == nil {
		return nil, nil
	}
	return s.commitments.ListByBatch(ctx, batchID)
}

// ListSettlements returns recent settlements, newest first.
func (s *AuctionService) ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	if s.settlements == nil {
		return nil, nil
	}
	return s.settlements.ListRecent(ctx, opts)
}

// ListAuditLog returns recent audit entries, newest first.
func (s *AuctionService) ListAuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.List(ctx, opts)
}

// RunScheduler drives the engine tick loop until ctx is cancelled.
func (s *AuctionService) RunScheduler(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.dispatch(ctx, s.engine.DrainEvents()) // batch 1 opened at construction
	s.publishSnapshot(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.engine.Tick(ctx)
			s.dispatch(ctx, s.engine.DrainEvents())
			s.publishSnapshot(ctx)
		}
	}
}

func (s *AuctionService) allow(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, key, commitRateLimit, commitRateWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable, allowing call",
			slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

// dispatch applies the side effects of engine events in order.
func (s *AuctionService) dispatch(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventBatchOpened:
			s.onBatchOpened(ctx, ev)
		case domain.EventPhaseChanged:
			s.publish(ctx, ChannelPhase, ev.Kind, map[string]any{
				"batch_id": ev.BatchID,
				"phase":    ev.Phase,
			})
		case domain.EventCommitAccepted:
			s.onCommit(ctx, ev)
		case domain.EventRevealAccepted:
			s.publish(ctx, ChannelReveal, ev.Kind, map[string]any{
				"batch_id":  ev.BatchID,
				"submitter": ev.Submitter,
			})
		case domain.EventEscrowResolve:
			s.onEscrowResolve(ctx, ev)
		case domain.EventBatchSettled:
			s.onBatchClosed(ctx, ev, domain.BatchOutcomeSettled)
		case domain.EventBatchFailed:
			s.onBatchClosed(ctx, ev, domain.BatchOutcomeFailed)
		}
	}
}

func (s *AuctionService) onBatchOpened(ctx context.Context, ev domain.Event) {
	if s.batches != nil {
		rec := domain.BatchRecord{
			ID:       ev.BatchID,
			Market:   s.engine.Snapshot().Market,
			OpenedAt: time.Now().UTC(),
		}
		if err := s.batches.Open(ctx, rec); err != nil {
			s.logger.ErrorContext(ctx, "persist batch open failed",
				slog.Int64("batch_id", ev.BatchID),
				slog.String("error", err.Error()))
		}
	}
	s.publish(ctx, ChannelPhase, ev.Kind, map[string]any{
		"batch_id": ev.BatchID,
		"phase":    ev.Phase,
	})
	s.auditLog(ctx, "batch_opened", map[string]any{"batch_id": ev.BatchID})
}

func (s *AuctionService) onCommit(ctx context.Context, ev domain.Event) {
	if s.commitments != nil && ev.Commitment != nil {
		rec := domain.CommitmentRecord{
			BatchID:     ev.BatchID,
			Submitter:   ev.Submitter,
			CommitHash:  crypto.EncodeHash(ev.Commitment.CommitHash),
			EscrowWei:   ev.Commitment.EscrowWei,
			SubmittedAt: ev.Commitment.SubmittedAt,
		}
		if err := s.commitments.Insert(ctx, rec); err != nil {
			s.logger.ErrorContext(ctx, "persist commitment failed",
				slog.Int64("batch_id", ev.BatchID),
				slog.String("submitter", ev.Submitter),
				slog.String("error", err.Error()))
		}
	}
	s.publish(ctx, ChannelCommit, ev.Kind, map[string]any{
		"batch_id":  ev.BatchID,
		"submitter": ev.Submitter,
	})
}

func (s *AuctionService) onEscrowResolve(ctx context.Context, ev domain.Event) {
	if err := s.custodian.Release(ctx, ev.Submitter, ev.EscrowWei, ev.Outcome); err != nil {
		s.logger.ErrorContext(ctx, "escrow release failed",
			slog.Int64("batch_id", ev.BatchID),
			slog.String("submitter", ev.Submitter),
			slog.String("outcome", string(ev.Outcome)),
			slog.String("error", err.Error()))
	}
	if s.commitments != nil {
		if err := s.commitments.Resolve(ctx, ev.BatchID, ev.Submitter, ev.Revealed, ev.Outcome); err != nil {
			s.logger.ErrorContext(ctx, "persist commitment resolution failed",
				slog.Int64("batch_id", ev.BatchID),
				slog.String("submitter", ev.Submitter),
				slog.String("error", err.Error()))
		}
	}
}

func (s *AuctionService) onBatchClosed(ctx context.Context, ev domain.Event, outcome domain.BatchOutcome) {
	if outcome == domain.BatchOutcomeSettled && s.settlements != nil && ev.Settlement != nil {
		if err := s.settlements.Insert(ctx, *ev.Settlement); err != nil {
			s.logger.ErrorContext(ctx, "persist settlement failed",
				slog.Int64("batch_id", ev.BatchID),
				slog.String("error", err.Error()))
		}
	}
	if s.batches != nil && ev.Batch != nil {
		err := s.batches.Close(ctx, ev.BatchID, outcome,
			len(ev.Batch.Commitments), len(ev.Batch.RevealedOrders), time.Now().UTC())
		if err != nil {
			s.logger.ErrorContext(ctx, "persist batch close failed",
				slog.Int64("batch_id", ev.BatchID),
				slog.String("error", err.Error()))
		}
	}
	if s.archiver != nil && ev.Batch != nil {
		if err := s.archiver.ArchiveBatch(ctx, ev.Batch); err != nil {
			s.logger.ErrorContext(ctx, "archive batch failed",
				slog.Int64("batch_id", ev.BatchID),
				slog.String("error", err.Error()))
		}
	}

	payload := map[string]any{
		"batch_id": ev.BatchID,
		"outcome":  outcome,
	}
	if ev.Settlement != nil {
		payload["clearing_price_ticks"] = ev.Settlement.ClearingPriceTicks
		payload["total_volume"] = ev.Settlement.TotalVolume
		payload["fills"] = len(ev.Settlement.Fills)
	}
	s.publish(ctx, ChannelSettlement, ev.Kind, payload)
	s.auditLog(ctx, "batch_closed", payload)

	if outcome == domain.BatchOutcomeFailed {
		s.alert(ctx, string(domain.EventBatchFailed),
			fmt.Sprintf("Batch %d failed (%s)", ev.BatchID, s.engine.Snapshot().Market),
			s.failureDetail(ev))
	}
}

// failureDetail renders the operator-facing description of a failed batch.
func (s *AuctionService) failureDetail(ev domain.Event) string {
	reason := ev.Reason
	if reason == "" {
		reason = "settlement did not complete"
	}
	refunded := 0
	if ev.Batch != nil {
		refunded = len(ev.Batch.Commitments)
	}
	return fmt.Sprintf("%s; %d commitment(s) refunded", reason, refunded)
}

// alert pages operators through the configured channels. Delivery failures
// are logged; an unreachable channel must not affect the auction cycle.
func (s *AuctionService) alert(ctx context.Context, event, title, message string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, event, title, message); err != nil {
		s.logger.ErrorContext(ctx, "operator alert failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

func (s *AuctionService) publishSnapshot(ctx context.Context) {
	if s.phases == nil {
		return
	}
	if err := s.phases.SetSnapshot(ctx, s.engine.Snapshot()); err != nil {
		s.logger.WarnContext(ctx, "phase cache update failed",
			slog.String("error", err.Error()))
	}
}

func (s *AuctionService) publish(ctx context.Context, channel string, kind domain.EventKind, payload map[string]any) {
	if s.bus == nil {
		return
	}
	payload["event"] = kind
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, "stream:"+channel, data); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

func (s *AuctionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
