package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"decision-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "intent:cache:"

// Cache stores successful classifications. Fallback results are never cached.
type Cache interface {
	Get(ctx context.Context, key string) (models.IntentResult, bool, error)
	Set(ctx context.Context, key string, result models.IntentResult) error
}

type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (models.IntentResult, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return models.IntentResult{}, false, nil
	}
	if err != nil {
		return models.IntentResult{}, false, err
	}

	var result models.IntentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.IntentResult{}, false, err
	}
	return result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, result models.IntentResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+key, raw, c.ttl).Err()
}

// CacheKey hashes the query together with the history the completer would see.
func CacheKey(query string, history []models.Turn) string {
	h := sha256.New()
	for _, m := range buildMessages(query, history) {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
