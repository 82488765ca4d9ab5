package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blendtrade/auctiond/internal/domain"
)

// snapshotTTL caps how long a stale snapshot is served if the engine stops
// publishing. A couple of commit cycles is plenty.
const snapshotTTL = 10 * time.Minute

// PhaseCache implements domain.PhaseCache using a JSON blob per market at
// key "phase:{market}". Read replicas and UI pollers serve countdown state
// from here without touching the engine.
type PhaseCache struct {
	rdb *redis.Client
}

// NewPhaseCache creates a PhaseCache backed by the given Client.
func NewPhaseCache(c *Client) *PhaseCache {
	return &PhaseCache{rdb: c.Underlying()}
}

func phaseKey(market string) string {
	return "phase:" + market
}

// SetSnapshot stores the latest batch snapshot for the snapshot's market.
func (pc *PhaseCache) SetSnapshot(ctx context.Context, snap domain.BatchSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := pc.rdb.Set(ctx, phaseKey(snap.Market), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Market, err)
	}
	return nil
}

// GetSnapshot retrieves the latest batch snapshot for a market. It returns
// domain.ErrNotFound when none has been published.
func (pc *PhaseCache) GetSnapshot(ctx context.Context, market string) (domain.BatchSnapshot, error) {
	data, err := pc.rdb.Get(ctx, phaseKey(market)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BatchSnapshot{}, domain.ErrNotFound
		}
		return domain.BatchSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", market, err)
	}
	var snap domain.BatchSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BatchSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", market, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.PhaseCache = (*PhaseCache)(nil)
