package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendtrade/auctiond/internal/auction"
	"github.com/blendtrade/auctiond/internal/domain"
	"github.com/blendtrade/auctiond/internal/escrow"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// heldLock simulates another instance owning the settlement lock.
type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type capturedAlert struct {
	event, title, message string
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []capturedAlert
}

func (f *fakeAlerter) Notify(_ context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, capturedAlert{event, title, message})
	return nil
}

func (f *fakeAlerter) all() []capturedAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedAlert(nil), f.alerts...)
}

func newFailureFixture(t *testing.T) (*AuctionService, *fakeClock, *fakeAlerter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	eng := auction.NewEngine(auction.Config{
		Market:         "ETH-USDC",
		CommitDuration: 30 * time.Second,
		RevealDuration: 15 * time.Second,
		SettleGrace:    10 * time.Second,
		MinEscrowWei:   big.NewInt(1000),
	}, logger, auction.WithClock(clk.Now), auction.WithLockManager(heldLock{}))

	alerts := &fakeAlerter{}
	svc := NewAuctionService(Deps{
		Engine:    eng,
		Custodian: escrow.NewLogCustodian(logger),
		Alerts:    alerts,
		Logger:    logger,
	})
	return svc, clk, alerts
}

func TestBatchFailureAlertsOperator(t *testing.T) {
	svc, clk, alerts := newFailureFixture(t)
	ctx := context.Background()

	receipt, err := svc.CommitOrder(ctx, auction.CommitParams{
		Submitter:    "alice",
		Side:         domain.OrderSideBuy,
		AmountIn:     2_000_000,
		MinAmountOut: 1_000_000,
		EscrowWei:    big.NewInt(5000),
	})
	require.NoError(t, err)

	// Into the reveal phase and reveal the order.
	clk.Advance(31 * time.Second)
	svc.engine.Tick(ctx)
	svc.dispatch(ctx, svc.engine.DrainEvents())

	_, err = svc.RevealOrder(ctx, auction.RevealParams{
		Submitter:    "alice",
		Side:         domain.OrderSideBuy,
		AmountIn:     2_000_000,
		MinAmountOut: 1_000_000,
		Secret:       receipt.Secret,
	})
	require.NoError(t, err)

	// Settlement lock stays held past the grace period; the batch is
	// force-failed and an operator alert goes out.
	clk.Advance(30 * time.Second)
	svc.engine.Tick(ctx)
	svc.dispatch(ctx, svc.engine.DrainEvents())

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, string(domain.EventBatchFailed), got[0].event)
	assert.Contains(t, got[0].title, "Batch 1 failed")
	assert.Contains(t, got[0].title, "ETH-USDC")
	assert.Contains(t, got[0].message, "1 commitment(s) refunded")
}

func TestSettledBatchDoesNotAlert(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	eng := auction.NewEngine(auction.Config{
		Market:         "ETH-USDC",
		CommitDuration: 30 * time.Second,
		RevealDuration: 15 * time.Second,
		SettleGrace:    10 * time.Second,
		MinEscrowWei:   big.NewInt(1000),
	}, logger, auction.WithClock(clk.Now))

	alerts := &fakeAlerter{}
	svc := NewAuctionService(Deps{
		Engine:    eng,
		Custodian: escrow.NewLogCustodian(logger),
		Alerts:    alerts,
		Logger:    logger,
	})
	ctx := context.Background()

	// Empty batch settles trivially at the reveal deadline.
	clk.Advance(46 * time.Second)
	svc.engine.Tick(ctx)
	svc.dispatch(ctx, svc.engine.DrainEvents())

	assert.Empty(t, alerts.all())
}
