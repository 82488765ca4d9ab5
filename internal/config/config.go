// Package config defines the top-level configuration for the auction daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUCTIOND_* environment
// variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the auction cycle parameters.
type EngineConfig struct {
	// Market is the trading pair this deployment runs, e.g. "ETH-USDC".
	Market string `toml:"market"`

	CommitDuration duration `toml:"commit_duration"`
	RevealDuration duration `toml:"reveal_duration"`

	// SettleGrace bounds how long settlement may run before the batch is
	// force-failed and all escrow refunded.
	SettleGrace duration `toml:"settle_grace"`

	// TickInterval is how often the scheduler loop checks phase deadlines.
	TickInterval duration `toml:"tick_interval"`

	// MinEscrowWei is the minimum escrow per commitment, as a decimal
	// string since wei amounts overflow int64.
	MinEscrowWei string `toml:"min_escrow_wei"`
}

// MinEscrow parses MinEscrowWei. Validate has already checked the syntax.
func (e EngineConfig) MinEscrow() *big.Int {
	n, ok := new(big.Int).SetString(e.MinEscrowWei, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for batch archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	AuthRequired bool     `toml:"auth_required"`

	// RateLimit caps mutating requests per client IP per RateWindow.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds the operator alert channels. At least one channel must
// be configured when enabled.
type NotifyConfig struct {
	Enabled bool `toml:"enabled"`

	// Events filters which event names are alerted on; empty allows all.
	Events []string `toml:"events"`

	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding, e.g. commit_duration = "30s".
type duration struct {
	time.Duration
}

// UnmarshalText lets BurntSushi/toml parse duration strings like "5m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText renders the duration back to its string form.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Market:         "ETH-USDC",
			CommitDuration: duration{30 * time.Second},
			RevealDuration: duration{15 * time.Second},
			SettleGrace:    duration{10 * time.Second},
			TickInterval:   duration{250 * time.Millisecond},
			MinEscrowWei:   "10000000000000000", // 0.01 ether
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "auctiond",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "auctiond-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			AuthRequired: false,
			RateLimit:    20,
			RateWindow:   duration{time.Second},
		},
		Notify: NotifyConfig{
			Enabled: false,
			Events:  []string{"batch_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"engine": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, engine)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if strings.TrimSpace(c.Engine.Market) == "" {
		errs = append(errs, "engine: market must not be empty")
	}
	if c.Engine.CommitDuration.Duration <= 0 {
		errs = append(errs, "engine: commit_duration must be > 0")
	}
	if c.Engine.RevealDuration.Duration <= 0 {
		errs = append(errs, "engine: reveal_duration must be > 0")
	}
	if c.Engine.SettleGrace.Duration <= 0 {
		errs = append(errs, "engine: settle_grace must be > 0")
	}
	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if n, ok := new(big.Int).SetString(c.Engine.MinEscrowWei, 10); !ok || n.Sign() < 0 {
		errs = append(errs, fmt.Sprintf("engine: min_escrow_wei must be a non-negative decimal string, got %q", c.Engine.MinEscrowWei))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Notify
	if c.Notify.Enabled {
		hasTelegram := c.Notify.TelegramToken != "" && c.Notify.TelegramChatID != ""
		hasDiscord := c.Notify.DiscordWebhookURL != ""
		if !hasTelegram && !hasDiscord {
			errs = append(errs, "notify: at least one channel (telegram or discord) must be configured when enabled")
		}
		if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
			errs = append(errs, "notify: telegram_chat_id must be set alongside telegram_token")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
