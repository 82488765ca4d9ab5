// Package server exposes the auction engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/blendtrade/auctiond/internal/domain"
	"github.com/blendtrade/auctiond/internal/server/handler"
	"github.com/blendtrade/auctiond/internal/server/middleware"
	"github.com/blendtrade/auctiond/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// Market scopes the signed auth message so a signature for one market
	// cannot be replayed against another deployment.
	Market string

	// AuthRequired enables wallet-signature verification on mutating routes.
	AuthRequired bool

	// RateLimit caps mutating requests per client IP per RateWindow.
	// Zero disables the IP limiter.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Auction *handler.AuctionHandler
}

// Server is the HTTP + WebSocket API server for the batch auction engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain wired: rate limit, then auth, then logging, then CORS
// outermost. limiter may be nil to disable IP rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Auction endpoints.
	mux.HandleFunc("GET /api/auction/state", handlers.Auction.State)
	mux.HandleFunc("GET /api/auction/orders/{submitter}", handlers.Auction.GetUserOrder)
	mux.HandleFunc("POST /api/auction/commit", handlers.Auction.Commit)
	mux.HandleFunc("POST /api/auction/reveal", handlers.Auction.Reveal)
	mux.HandleFunc("POST /api/auction/reset", handlers.Auction.Reset)
	mux.HandleFunc("GET /api/auction/batches", handlers.Auction.ListBatches)
	mux.HandleFunc("GET /api/auction/batches/{batchID}", handlers.Auction.GetBatch)
	mux.HandleFunc("GET /api/auction/settlements", handlers.Auction.ListSettlements)
	mux.HandleFunc("GET /api/auction/settlements/{batchID}", handlers.Auction.GetSettlement)
	mux.HandleFunc("GET /api/audit", handlers.Auction.ListAuditLog)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux

	if cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.WalletAuth(cfg.Market, cfg.AuthRequired)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0 // allow all if none specified
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auction-Address, X-Auction-Signature, X-Auction-Timestamp")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
