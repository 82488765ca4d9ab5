package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blendtrade/auctiond/internal/auction"
	s3blob "github.com/blendtrade/auctiond/internal/blob/s3"
	"github.com/blendtrade/auctiond/internal/cache/redis"
	"github.com/blendtrade/auctiond/internal/config"
	"github.com/blendtrade/auctiond/internal/domain"
	"github.com/blendtrade/auctiond/internal/escrow"
	"github.com/blendtrade/auctiond/internal/notify"
	"github.com/blendtrade/auctiond/internal/service"
	"github.com/blendtrade/auctiond/internal/store/postgres"
)

// Dependencies bundles every component the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Engine    *auction.Engine
	Custodian *escrow.LogCustodian
	Service   *service.AuctionService

	// Stores
	BatchStore      domain.BatchStore
	CommitmentStore domain.CommitmentStore
	SettlementStore domain.SettlementStore
	AuditStore      domain.AuditStore

	// Caches
	PhaseCache  domain.PhaseCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   service.Archiver

	// Operator alerting
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.BatchStore = postgres.NewBatchStore(pool)
	deps.CommitmentStore = postgres.NewCommitmentStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PhaseCache = redis.NewPhaseCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 batch archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.AuditStore)
	}

	// --- Operator alerting (optional) ---
	if cfg.Notify.Enabled {
		var senders []notify.Sender
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
		}
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
		}
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Engine, custodian, service ---
	deps.Custodian = escrow.NewLogCustodian(logger)

	deps.Engine = auction.NewEngine(auction.Config{
		Market:         cfg.Engine.Market,
		CommitDuration: cfg.Engine.CommitDuration.Duration,
		RevealDuration: cfg.Engine.RevealDuration.Duration,
		SettleGrace:    cfg.Engine.SettleGrace.Duration,
		MinEscrowWei:   cfg.Engine.MinEscrow(),
	}, logger, auction.WithLockManager(deps.LockManager))

	// A nil *Notifier inside a non-nil interface would defeat the service's
	// nil check, so only set Alerts when alerting is configured.
	var alerts service.Alerter
	if deps.Notifier != nil {
		alerts = deps.Notifier
	}

	deps.Service = service.NewAuctionService(service.Deps{
		Engine:      deps.Engine,
		Custodian:   deps.Custodian,
		Batches:     deps.BatchStore,
		Commitments: deps.CommitmentStore,
		Settlements: deps.SettlementStore,
		Audit:       deps.AuditStore,
		Phases:      deps.PhaseCache,
		Bus:         deps.SignalBus,
		Limiter:     deps.RateLimiter,
		Archiver:    deps.Archiver,
		Alerts:      alerts,
		Logger:      logger,
	})

	return deps, cleanup, nil
}
