package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

const (
	DefaultCacheTTL = 10 * time.Minute
	redisKeyPrefix  = "llmb:result:"
)

// Cache stores complete answers keyed by CacheKey. Implementations refuse
// results that are not Cacheable, so failed and truncated answers are never
// served from a cache.
type Cache interface {
	Get(ctx context.Context, key string) (llm.Result, bool)
	Set(ctx context.Context, key string, result llm.Result)
}

// CacheKey identifies a request by provider, model, URL, credentials and
// body. Credentials are scoped in as a digest so callers using different
// keys never share answers, and the raw secret never reaches the cache.
func CacheKey(env llm.Envelope) (string, error) {
	body, err := env.EncodeBody()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00", env.Provider, env.Model, env.URL, credentialDigest(env))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func credentialDigest(env llm.Envelope) string {
	creds := env.Credentials()
	names := slices.Sorted(maps.Keys(creds))

	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s=%s\x00", name, creds[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// OpenCache returns the cache for backend: "", "none", "memory" or "redis".
// A nil Cache with a nil error means caching is off.
func OpenCache(backend string, ttl time.Duration, redisURL string, logger *slog.Logger) (Cache, error) {
	switch backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(ttl), nil
	case "redis":
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedisCache(redis.NewClient(opts), ttl, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

type memoryEntry struct {
	result  llm.Result
	expires time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (llm.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return llm.Result{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return llm.Result{}, false
	}
	return e.result, true
}

func (c *MemoryCache) Set(_ context.Context, key string, result llm.Result) {
	if !result.Cacheable() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{result: result, expires: now.Add(c.ttl)}
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares cached answers between sidecar instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (llm.Result, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis cache lookup failed", "error", err)
		}
		return llm.Result{}, false
	}

	var result llm.Result
	if err := json.Unmarshal(data, &result); err != nil || !result.Cacheable() {
		return llm.Result{}, false
	}
	return result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result llm.Result) {
	if !result.Cacheable() {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache store failed", "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
