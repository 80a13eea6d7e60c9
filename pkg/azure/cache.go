package azure

import (
	"context"
	"log/slog"
	"sync"
	"time"

	pkgredis "github.com/navikt/aap-inntekt/pkg/redis"
)

// Cache stores tokens until their TTL passes. Implementations treat backend
// errors as misses so a cache outage only costs an extra token request.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, token string, ttl time.Duration)
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.token, true
}

func (c *MemoryCache) Set(_ context.Context, key, token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{token: token, expiresAt: c.now().Add(ttl)}
}

// RedisCache shares tokens between replicas through Redis.
type RedisCache struct {
	client *pkgredis.Client
	logger *slog.Logger
}

func NewRedisCache(client *pkgredis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		logger: slog.Default().With("component", "azure-token-cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	token, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("token cache get failed", "error", err)
		}
		return "", false
	}
	return token, true
}

func (c *RedisCache) Set(ctx context.Context, key, token string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, token, ttl); err != nil {
		c.logger.Warn("token cache set failed", "error", err)
	}
}
