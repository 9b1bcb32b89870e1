package query

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

func TestCacheKey(t *testing.T) {
	env := llm.Envelope{
		URL:      "https://api.openai.com/v1/chat/completions",
		Provider: llm.ProviderOpenAI,
		Model:    "gpt-4o",
		Headers:  map[string]string{"Authorization": "Bearer one"},
		Body:     map[string]any{"model": "gpt-4o", "temperature": 0.7},
	}

	key, err := CacheKey(env)
	require.NoError(t, err)
	assert.Len(t, key, 64)

	other := env
	other.Headers = map[string]string{"Authorization": "Bearer one", "X-Trace": "abc"}
	otherKey, err := CacheKey(other)
	require.NoError(t, err)
	assert.Equal(t, key, otherKey, "non-secret headers do not affect the key")

	other.Model = "gpt-4o-mini"
	otherKey, err = CacheKey(other)
	require.NoError(t, err)
	assert.NotEqual(t, key, otherKey)
}

func TestCacheKey_ScopedByCredential(t *testing.T) {
	env := llm.Envelope{
		URL:      "https://api.anthropic.com/v1/messages",
		Provider: llm.ProviderAnthropic,
		Model:    "claude-sonnet-4-5",
		Headers:  map[string]string{"x-api-key": "sk-ant-one"},
		Body:     map[string]any{"model": "claude-sonnet-4-5"},
	}
	key, err := CacheKey(env)
	require.NoError(t, err)

	other := env
	other.Headers = map[string]string{"x-api-key": "sk-ant-two"}
	otherKey, err := CacheKey(other)
	require.NoError(t, err)
	assert.NotEqual(t, key, otherKey, "different credentials must not share answers")

	other.Headers = map[string]string{"X-Api-Key": "sk-ant-one"}
	otherKey, err = CacheKey(other)
	require.NoError(t, err)
	assert.Equal(t, key, otherKey, "header names compare case-insensitively")
	assert.NotContains(t, key, "sk-ant-one")

	cache := NewMemoryCache(time.Minute)
	cache.Set(context.Background(), key, llm.Result{Success: true, Content: "tenant one"})
	_, ok := cache.Get(context.Background(), otherKey)
	assert.True(t, ok)

	other.Headers = map[string]string{"x-api-key": "sk-ant-two"}
	otherKey, err = CacheKey(other)
	require.NoError(t, err)
	_, ok = cache.Get(context.Background(), otherKey)
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	ok := llm.Result{Success: true, Content: "answer"}
	cache.Set(ctx, "a", ok)

	got, hit := cache.Get(ctx, "a")
	require.True(t, hit)
	assert.Equal(t, "answer", got.Content)

	now = now.Add(2 * time.Minute)
	_, hit = cache.Get(ctx, "a")
	assert.False(t, hit, "expired entries are dropped")
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_RefusesIncompleteResults(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)

	truncated := llm.Result{Success: true, Content: "partial"}
	truncated.MarkTruncated()

	cache.Set(ctx, "failed", llm.Failure(llm.TransportError(llm.ProviderOpenAI, nil)))
	cache.Set(ctx, "truncated", truncated)
	cache.Set(ctx, "notice", llm.Result{Success: true, Content: "x" + llm.TruncationNotice})

	assert.Equal(t, 0, cache.Len())
}

func TestOpenCache(t *testing.T) {
	c, err := OpenCache("none", 0, "", nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = OpenCache("memory", time.Minute, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = OpenCache("redis", time.Minute, "not-a-redis-url", nil)
	assert.Error(t, err)

	_, err = OpenCache("disk", time.Minute, "", nil)
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("LLMB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LLMB_TEST_REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	cache := NewRedisCache(redis.NewClient(opts), time.Minute, nil)
	defer cache.Close()

	ctx := context.Background()
	key := "test-" + time.Now().Format(time.RFC3339Nano)

	cache.Set(ctx, key, llm.Result{Success: true, Content: "shared", Usage: llm.Usage{OutputTokens: 2}})
	got, hit := cache.Get(ctx, key)
	require.True(t, hit)
	assert.Equal(t, "shared", got.Content)
	assert.Equal(t, 2, got.Usage.OutputTokens)

	cache.Set(ctx, key+"-trunc", llm.Result{Success: true, Content: "x" + llm.TruncationNotice})
	_, hit = cache.Get(ctx, key+"-trunc")
	assert.False(t, hit)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 800*time.Millisecond, p.backoff(3))
	assert.Equal(t, time.Second, p.backoff(4))
	assert.Equal(t, time.Second, p.backoff(80))
}

func TestTokenEstimator(t *testing.T) {
	assert.Equal(t, 2, approxTokens("abcdefgh"))
	assert.Equal(t, 1, approxTokens("ab"))

	e := NewTokenEstimator(nil)
	assert.Equal(t, 0, e.Count(""))
	assert.Positive(t, e.Count("hello world"))

	total := e.Messages("be brief", []llm.Message{{Role: llm.RoleUser, Content: "hello"}, {Role: llm.RoleAssistant, Content: "hi"}})
	assert.GreaterOrEqual(t, total, 3)
}
