package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUCTIOND_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUCTIOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Market, "AUCTIOND_ENGINE_MARKET")
	setDuration(&cfg.Engine.CommitDuration, "AUCTIOND_ENGINE_COMMIT_DURATION")
	setDuration(&cfg.Engine.RevealDuration, "AUCTIOND_ENGINE_REVEAL_DURATION")
	setDuration(&cfg.Engine.SettleGrace, "AUCTIOND_ENGINE_SETTLE_GRACE")
	setDuration(&cfg.Engine.TickInterval, "AUCTIOND_ENGINE_TICK_INTERVAL")
	setStr(&cfg.Engine.MinEscrowWei, "AUCTIOND_ENGINE_MIN_ESCROW_WEI")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTIOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AUCTIOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUCTIOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUCTIOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUCTIOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUCTIOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUCTIOND_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTIOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUCTIOND_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUCTIOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AUCTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIOND_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUCTIOND_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUCTIOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTIOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIOND_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AUCTIOND_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AUCTIOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTIOND_SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.AuthRequired, "AUCTIOND_SERVER_AUTH_REQUIRED")
	setInt(&cfg.Server.RateLimit, "AUCTIOND_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AUCTIOND_SERVER_RATE_WINDOW")

	// ── Notify ──
	setBool(&cfg.Notify.Enabled, "AUCTIOND_NOTIFY_ENABLED")
	setStringSlice(&cfg.Notify.Events, "AUCTIOND_NOTIFY_EVENTS")
	setStr(&cfg.Notify.TelegramToken, "AUCTIOND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUCTIOND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUCTIOND_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUCTIOND_MODE")
	setStr(&cfg.LogLevel, "AUCTIOND_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
