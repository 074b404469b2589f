package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TextCache stores recognized text by key. A miss is reported as ok == false.
type TextCache interface {
	Get(ctx context.Context, key string) (text string, ok bool, err error)
	Set(ctx context.Context, key, text string) error
}

// CachedRecognizer memoizes another recognizer. Cache failures are
// ignored so that recognition never fails because of the cache.
type CachedRecognizer struct {
	next  Recognizer
	cache TextCache
}

// NewCachedRecognizer wraps next with cache.
func NewCachedRecognizer(next Recognizer, cache TextCache) *CachedRecognizer {
	return &CachedRecognizer{next: next, cache: cache}
}

// RecognizeText implements Recognizer.
func (c *CachedRecognizer) RecognizeText(ctx context.Context, page Page, language string, mode Mode) (string, error) {
	language, mode = normalizeOptions(language, mode)
	key := CacheKey(page, language, mode)

	if text, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		return text, nil
	}

	text, err := c.next.RecognizeText(ctx, page, language, mode)
	if err != nil {
		return "", err
	}
	_ = c.cache.Set(ctx, key, text)
	return text, nil
}

// CacheKey identifies a recognition by page content, language and mode.
func CacheKey(page Page, language string, mode Mode) string {
	sum := sha256.Sum256(page.Data)
	return "ocr:" + hex.EncodeToString(sum[:]) + ":" + language + ":" + strconv.Itoa(int(mode))
}

// MemoryCache is an unbounded in-process TextCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

// Get implements TextCache.
func (m *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.entries[key]
	return text, ok, nil
}

// Set implements TextCache.
func (m *MemoryCache) Set(ctx context.Context, key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = text
	return nil
}

// RedisCache keeps recognized text in Redis with a TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. A zero ttl keeps entries forever.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get implements TextCache.
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	text, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("RedisCache.Get: %w", err)
	}
	return text, true, nil
}

// Set implements TextCache.
func (r *RedisCache) Set(ctx context.Context, key, text string) error {
	if err := r.client.Set(ctx, key, text, r.ttl).Err(); err != nil {
		return fmt.Errorf("RedisCache.Set: %w", err)
	}
	return nil
}
