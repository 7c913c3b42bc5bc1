// Package cache keeps short-lived copies of per-hospital stock summaries in
// Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"blood-bank-api-server/config"
	"blood-bank-api-server/internal/ledger"
	"blood-bank-api-server/internal/models"

	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "bloodbank:summary:"
	generationPrefix = "bloodbank:summary-gen:"
)

// storeIfCurrent writes the summary only while the hospital's write
// generation still matches the one read before aggregating.
var storeIfCurrent = goredis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// SummaryCache implements ledger.SummaryCache on Redis.
type SummaryCache struct {
	rdb *goredis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisClient connects and pings. It returns (nil, nil) when no address
// is configured so callers can run without a cache.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewSummaryCache(rdb *goredis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{rdb: rdb, ttl: ttl, now: time.Now}
}

func summaryKey(hospitalID string) string {
	return keyPrefix + hospitalID
}

func generationKey(hospitalID string) string {
	return generationPrefix + hospitalID
}

// Get returns the cached summary, or nil on a miss, together with the
// hospital's current write generation.
func (c *SummaryCache) Get(ctx context.Context, hospitalID string) (*ledger.CachedSummary, int64, error) {
	vals, err := c.rdb.MGet(ctx, summaryKey(hospitalID), generationKey(hospitalID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get summary: %w", err)
	}

	var generation int64
	if raw, ok := vals[1].(string); ok {
		if generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("parse summary generation %q: %w", raw, err)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, generation, nil
	}
	var summary ledger.CachedSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, 0, fmt.Errorf("decode cached summary: %w", err)
	}
	return &summary, generation, nil
}

// Set stores the summary unless the generation moved on since Get. The
// entry expires at the configured TTL or when its expiring-soon counts go
// stale, whichever comes first.
func (c *SummaryCache) Set(ctx context.Context, hospitalID string, generation int64, summary ledger.CachedSummary) (bool, error) {
	ttl := c.ttl
	if !summary.ValidUntil.IsZero() {
		if untilStale := summary.ValidUntil.Sub(c.now()); untilStale < ttl {
			ttl = untilStale
		}
	}
	if ttl < time.Millisecond {
		return false, nil
	}

	if summary.Levels == nil {
		summary.Levels = []models.StockLevel{}
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return false, err
	}

	stored, err := storeIfCurrent.Run(ctx, c.rdb,
		[]string{summaryKey(hospitalID), generationKey(hospitalID)},
		strconv.FormatInt(generation, 10), raw, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set summary: %w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the cached summary and bumps the write generation in one
// transaction.
func (c *SummaryCache) Invalidate(ctx context.Context, hospitalID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(hospitalID))
		pipe.Del(ctx, summaryKey(hospitalID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate summary: %w", err)
	}
	return nil
}
