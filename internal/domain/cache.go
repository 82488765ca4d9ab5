package domain

import (
	"context"
	"time"
)

// PhaseCache stores the latest batch snapshot so read replicas and UI
// pollers can serve countdown state without touching the engine.
type PhaseCache interface {
	SetSnapshot(ctx context.Context, snap BatchSnapshot) error
	GetSnapshot(ctx context.Context, market string) (BatchSnapshot, error)
}

// RateLimiter provides distributed rate limiting for mutating endpoints.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The engine takes the settlement
// lock before running the crossing so a misdeployed second instance cannot
// settle the same batch twice.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for phase flips and settlement events, plus
// durable streams for consumers that must not miss entries.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter uploads a serialized object to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
