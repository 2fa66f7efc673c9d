package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "analytics:version"
	bumpChannel     = "analytics.bump"
)

// RedisBackend shares cached results between processes. Invalidation bumps a
// global version that is suffixed onto every key, so old entries simply age
// out under their TTL.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a go-redis client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Generation returns the current cache version, initialising when missing.
func (b *RedisBackend) Generation(ctx context.Context) (int64, error) {
	ver, err := b.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := b.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return b.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := b.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (b *RedisBackend) Get(ctx context.Context, gen int64, key string) ([]byte, error) {
	payload, err := b.client.Get(ctx, versionedKey(key, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return payload, err
}

func (b *RedisBackend) Set(ctx context.Context, gen int64, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, versionedKey(key, gen), value, ttl).Err()
}

// InvalidateAll increments the version and announces it on the bump channel.
func (b *RedisBackend) InvalidateAll(ctx context.Context) error {
	ver, err := b.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation calls onBump for every version announced by other
// processes until ctx is cancelled. Processes that keep a MemoryBackend in
// front of a shared deployment use it to drop their local entries.
func (b *RedisBackend) ListenForInvalidation(ctx context.Context, onBump func(version int64)) error {
	if onBump == nil {
		return errors.New("analytics: bump callback required")
	}
	pubsub := b.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					ver = 0
				}
				onBump(ver)
			}
		}
	}()
	return nil
}

func versionedKey(key string, gen int64) string {
	return fmt.Sprintf("%s:%d", key, gen)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a process local backend with per entry expiry.
type MemoryBackend struct {
	mu         sync.Mutex
	gen        int64
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

// MemoryOption customises a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithClock injects the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) { b.now = now }
}

// WithMaxEntries bounds the number of stored entries. Zero disables the bound.
func WithMaxEntries(n int) MemoryOption {
	return func(b *MemoryBackend) { b.maxEntries = n }
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		gen:        1,
		entries:    make(map[string]memoryEntry),
		maxEntries: 10000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) Generation(context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen, nil
}

func (b *MemoryBackend) Get(_ context.Context, gen int64, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return nil, ErrCacheMiss
	}
	entry, ok := b.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !b.now().Before(entry.expiresAt) {
		delete(b.entries, key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set drops writes produced under a generation that has since been invalidated.
// A full map first sheds expired entries, then the entry closest to expiry.
func (b *MemoryBackend) Set(_ context.Context, gen int64, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return nil
	}
	now := b.now()
	if _, exists := b.entries[key]; !exists && b.maxEntries > 0 && len(b.entries) >= b.maxEntries {
		b.evict(now)
	}
	b.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

func (b *MemoryBackend) evict(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range b.entries {
		if !now.Before(e.expiresAt) {
			delete(b.entries, k)
			continue
		}
		if !found || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.expiresAt, true
		}
	}
	if found && len(b.entries) >= b.maxEntries {
		delete(b.entries, oldestKey)
	}
}

func (b *MemoryBackend) InvalidateAll(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.entries = make(map[string]memoryEntry)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
