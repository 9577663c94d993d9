package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("cache not found")
)

// CacheConfig defines TTL and key prefix for one class of cached data.
type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

var (
	// SessionCacheConfig covers exam-session rows; short because the session
	// window can be edited while a session runs.
	SessionCacheConfig = CacheConfig{TTL: 2 * time.Minute, Prefix: "session:"}

	// QuestionCacheConfig covers question-bank content, which is immutable
	// from this service's point of view.
	QuestionCacheConfig = CacheConfig{TTL: 10 * time.Minute, Prefix: "question:"}

	// ExamCacheConfig covers exam definitions and their sets.
	ExamCacheConfig = CacheConfig{TTL: 5 * time.Minute, Prefix: "exam:"}
)

// CacheHelper provides read-through caching for repositories. All operations
// degrade to the loader when no Redis client is configured.
type CacheHelper struct {
	client *redis.Client
	prefix string
}

// NewCacheHelper creates a cache helper with the given key prefix.
func NewCacheHelper(client *redis.Client, prefix string) *CacheHelper {
	return &CacheHelper{client: client, prefix: prefix}
}

func (c *CacheHelper) key(k string) string {
	return c.prefix + k
}

// Get unmarshals the cached value for key into dest.
func (c *CacheHelper) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrCacheNotAvailable
	}
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheNotFound
	}
	if err != nil {
		return fmt.Errorf("cache get: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// Set stores value under key for ttl.
func (c *CacheHelper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return ErrCacheNotAvailable
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes keys from the cache.
func (c *CacheHelper) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// CacheOrExecute returns the cached value for key, or runs loader, caches its
// result and unmarshals it into dest. Cache faults never fail the read; the
// loader result wins.
func (c *CacheHelper) CacheOrExecute(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func() (interface{}, error)) error {
	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	}

	value, err := loader()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal: %w", err)
	}

	if c.client != nil {
		// best effort; a write failure only costs the next read a DB trip
		_ = c.client.Set(ctx, c.key(key), data, ttl).Err()
	}
	return nil
}

// CacheManager bundles the per-concern helpers handed to repositories.
type CacheManager struct {
	Session  *CacheHelper
	Question *CacheHelper
	Exam     *CacheHelper
}

// NewCacheManager creates helpers for all configured cache classes. A nil
// client yields a manager whose helpers pass every read through.
func NewCacheManager(client *redis.Client) *CacheManager {
	return &CacheManager{
		Session:  NewCacheHelper(client, SessionCacheConfig.Prefix),
		Question: NewCacheHelper(client, QuestionCacheConfig.Prefix),
		Exam:     NewCacheHelper(client, ExamCacheConfig.Prefix),
	}
}
