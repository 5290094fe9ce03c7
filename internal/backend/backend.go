// Package backend wraps the shared coordination substrate: a key-value
// store with per-key expiry plus publish/subscribe channels. The agent
// registry, the scene store and all master/robot messaging sit on top of it.
package backend

import (
	"context"
	"time"
)

// Handler receives one published payload.
type Handler func(payload string)

// Backend is the client contract for the coordination substrate.
type Backend interface {
	// Register writes a key with a TTL. A crashed writer that stops
	// refreshing the TTL silently disappears.
	Register(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	SetTTL(ctx context.Context, key string, ttl time.Duration) error
	// Scan returns all keys matching a glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	Publish(ctx context.Context, channel, payload string) error
	// Subscribe delivers payloads to handler until ctx is cancelled.
	// It returns once the subscription is established.
	Subscribe(ctx context.Context, channel string, handler Handler) error

	Close() error
}
