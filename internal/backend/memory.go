package backend

import (
	"context"
	"path"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// memoryBackend is an in-process Backend used by tests and single-node
// demos. Expiry is checked lazily on read; handlers run on their own
// goroutines, matching the delivery model of the Redis client.
type memoryBackend struct {
	mu   sync.Mutex
	data map[string]entry
	subs map[string][]subscription
}

type subscription struct {
	ctx     context.Context
	handler Handler
}

func NewMemory() Backend {
	return &memoryBackend{
		data: make(map[string]entry),
		subs: make(map[string][]subscription),
	}
}

func (b *memoryBackend) live(e entry) bool {
	return e.expiresAt.IsZero() || time.Now().Before(e.expiresAt)
}

func (b *memoryBackend) Register(ctx context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (b *memoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok || !b.live(e) {
		delete(b.data, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (b *memoryBackend) Set(ctx context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.data[key]
	if !b.live(e) {
		e = entry{}
	}
	e.value = value
	b.data[key] = e
	return nil
}

func (b *memoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memoryBackend) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok || !b.live(e) {
		delete(b.data, key)
		return nil
	}
	e.expiresAt = time.Now().Add(ttl)
	b.data[key] = e
	return nil
}

func (b *memoryBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k, e := range b.data {
		if !b.live(e) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *memoryBackend) Publish(ctx context.Context, channel, payload string) error {
	b.mu.Lock()
	subs := make([]subscription, 0, len(b.subs[channel]))
	kept := b.subs[channel][:0]
	for _, s := range b.subs[channel] {
		if s.ctx.Err() != nil {
			continue
		}
		kept = append(kept, s)
		subs = append(subs, s)
	}
	b.subs[channel] = kept
	b.mu.Unlock()

	for _, s := range subs {
		go s.handler(payload)
	}
	return nil
}

func (b *memoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], subscription{ctx: ctx, handler: handler})
	return nil
}

func (b *memoryBackend) Close() error {
	return nil
}
