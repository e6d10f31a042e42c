// Package cache keeps correction service transcripts in Redis so the same
// text is not analysed twice.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const defaultTTL = 24 * time.Hour

// Entry is the value stored for each analysed text.
type Entry struct {
	Transcript []byte    `json:"transcript"`
	CachedAt   time.Time `json:"cached_at"`
}

// RedisCache implements analysis.ResultCache using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL. A non-positive ttl selects one day.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "inkcheck:transcript:",
		ttl:    ttl,
	}
}

// Key is the Redis key for text: the prefix plus the BLAKE2b-256 digest of
// the text.
func (c *RedisCache) Key(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached transcript for text.
func (c *RedisCache) Get(ctx context.Context, text string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup transcript: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return entry.Transcript, true, nil
}

// Put stores transcript for text with the cache TTL.
func (c *RedisCache) Put(ctx context.Context, text string, transcript []byte) error {
	raw, err := json.Marshal(Entry{Transcript: transcript, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(text), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Invalidate drops the cached transcript for text.
func (c *RedisCache) Invalidate(ctx context.Context, text string) error {
	if err := c.client.Del(ctx, c.Key(text)).Err(); err != nil {
		return fmt.Errorf("invalidate transcript: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
