package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Engine.Market = ""
	cfg.Engine.CommitDuration = duration{0}
	cfg.Engine.MinEscrowWei = "lots"
	cfg.Redis.Addr = ""
	cfg.Server.Port = 99999

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown mode")
	assert.Contains(t, msg, "market must not be empty")
	assert.Contains(t, msg, "commit_duration")
	assert.Contains(t, msg, "min_escrow_wei")
	assert.Contains(t, msg, "redis: addr")
	assert.Contains(t, msg, "server: port")
}

func TestMinEscrowParses(t *testing.T) {
	cfg := Defaults()
	got := cfg.Engine.MinEscrow()

	want, ok := new(big.Int).SetString("10000000000000000", 10)
	require.True(t, ok)
	assert.Zero(t, want.Cmp(got))
}

func TestLoadParsesDurationsAndMergesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "engine"

[engine]
market = "BTC-USDC"
commit_duration = "1m"
reveal_duration = "20s"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, "BTC-USDC", cfg.Engine.Market)
	assert.Equal(t, time.Minute, cfg.Engine.CommitDuration.Duration)
	assert.Equal(t, 20*time.Second, cfg.Engine.RevealDuration.Duration)

	// Unset sections keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Engine.SettleGrace.Duration)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Postgres.RunMigrations)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[engine]
market = "ETH-USDC"
`), 0o600))

	t.Setenv("AUCTIOND_ENGINE_MARKET", "SOL-USDC")
	t.Setenv("AUCTIOND_ENGINE_COMMIT_DURATION", "45s")
	t.Setenv("AUCTIOND_REDIS_PASSWORD", "hunter2")
	t.Setenv("AUCTIOND_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUCTIOND_SERVER_AUTH_REQUIRED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SOL-USDC", cfg.Engine.Market)
	assert.Equal(t, 45*time.Second, cfg.Engine.CommitDuration.Duration)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.AuthRequired)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
