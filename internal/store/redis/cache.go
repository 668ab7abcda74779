package redis

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultCacheTTL = 30 * time.Second

// CachedSource is a CandleSource decorator that keeps candle history in
// Redis for ttl. A Redis failure is treated as a miss; the inner source
// is always the authority.
type CachedSource struct {
	client *goredis.Client
	inner  model.CandleSource
	ttl    time.Duration
	prom   *metrics.Metrics
}

// NewCachedSource wraps inner. A nil client disables caching.
func NewCachedSource(client *goredis.Client, inner model.CandleSource, ttl time.Duration, m *metrics.Metrics) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedSource{client: client, inner: inner, ttl: ttl, prom: m}
}

// CacheKey returns the Redis key for a history request.
func CacheKey(symbol, interval string, limit int) string {
	return "candles:" + interval + ":" + symbol + ":" + strconv.Itoa(limit)
}

// Candles returns cached history when present, otherwise fetches from
// the inner source and stores the result.
func (c *CachedSource) Candles(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	if c.client == nil {
		return c.inner.Candles(ctx, symbol, interval, limit)
	}

	key := CacheKey(symbol, interval, limit)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var s model.Series
		if json.Unmarshal(data, &s) == nil {
			c.prom.ObserveCache(true)
			return s, nil
		}
	} else if err != goredis.Nil {
		log.Printf("[candle-cache] get %s: %v", key, err)
	}
	c.prom.ObserveCache(false)

	s, err := c.inner.Candles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(s); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Printf("[candle-cache] set %s: %v", key, err)
		}
	}
	return s, nil
}
