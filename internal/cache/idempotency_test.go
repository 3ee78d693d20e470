// internal/cache/idempotency_test.go
package cache

import (
	"context"
	"testing"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/util"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRedisResultCacheDegradesToMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisResultCache(client, time.Hour, util.DiscardLogger())
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Set(ctx, "k1", &Entry{SourceWalletID: 1, Result: &domain.TransactionResult{Reference: "TR-00000000", FeeCharged: decimal.Zero}})
	})
	entry, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
	assert.Nil(t, entry)
}

func TestNoopResultCache(t *testing.T) {
	var c ResultCache = NoopResultCache{}
	c.Set(context.Background(), "k", &Entry{})
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
