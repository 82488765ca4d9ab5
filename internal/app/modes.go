package app

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blendtrade/auctiond/internal/server"
	"github.com/blendtrade/auctiond/internal/server/handler"
	"github.com/blendtrade/auctiond/internal/server/ws"
)

// shutdownTimeout bounds how long the HTTP server drains in-flight requests.
const shutdownTimeout = 10 * time.Second

// FullMode runs the auction scheduler, the HTTP + WebSocket API, and the
// batch archiver side effects together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	// Scheduler loop driving phase transitions and settlement.
	g.Go(func() error {
		return deps.Service.RunScheduler(ctx, a.cfg.Engine.TickInterval.Duration)
	})

	if a.cfg.Server.Enabled {
		// WebSocket hub bridging the signal bus to browsers.
		hub := ws.NewHub(deps.SignalBus, deps.Service.Snapshot, a.logger)
		g.Go(func() error {
			err := hub.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})

		srv := server.NewServer(server.Config{
			Port:         a.cfg.Server.Port,
			CORSOrigins:  a.cfg.Server.CORSOrigins,
			Market:       a.cfg.Engine.Market,
			AuthRequired: a.cfg.Server.AuthRequired,
			RateLimit:    a.cfg.Server.RateLimit,
			RateWindow:   a.cfg.Server.RateWindow.Duration,
		}, server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Auction: handler.NewAuctionHandler(deps.Service, a.logger),
		}, hub, deps.RateLimiter, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// EngineMode runs the auction cycle headless: scheduler and persistence only,
// no API surface. Useful for running the engine alongside a separate gateway.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Service.RunScheduler(ctx, a.cfg.Engine.TickInterval.Duration)
	})
	return g.Wait()
}
