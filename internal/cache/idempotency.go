// internal/cache/idempotency.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"wallet-engine/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Entry is a cached outcome of a completed request, tagged with the wallet that sent it.
type Entry struct {
	SourceWalletID int64                     `json:"source_wallet_id"`
	Result         *domain.TransactionResult `json:"result"`
}

// ResultCache remembers completed results by idempotency key. It is an accelerator only:
// a miss always falls through to the transaction store.
type ResultCache interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry)
}

// RedisResultCache stores entries as JSON under "idempotency:<key>".
type RedisResultCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisResultCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisResultCache {
	return &RedisResultCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(key string) string {
	return "idempotency:" + key
}

func (c *RedisResultCache) Get(ctx context.Context, key string) (*Entry, bool) {
	val, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Idempotency cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil || entry.Result == nil {
		c.logger.Warn("Discarding unreadable idempotency cache entry", "key", key, "error", err)
		return nil, false
	}
	return &entry, true
}

func (c *RedisResultCache) Set(ctx context.Context, key string, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("Idempotency cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Idempotency cache write failed", "key", key, "error", err)
	}
}

// NoopResultCache never hits.
type NoopResultCache struct{}

func (NoopResultCache) Get(context.Context, string) (*Entry, bool) { return nil, false }
func (NoopResultCache) Set(context.Context, string, *Entry)        {}
