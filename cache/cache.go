/*
Package cache keeps recently computed remuneration reports in Redis.

PURPOSE:
  Dashboards read the same (facility, month) reports over and over while
  they only change on recompute. SummaryCache stores each report as JSON
  under a TTL.

WRITE-THROUGH:
  Hook() is registered with remuneration.WithRecomputeHook. After every
  committed recompute the new report replaces the cached one.

READ-THROUGH:
  ReadThrough implements remuneration.ReportSource. A hit is served from
  Redis; a miss or a Redis error falls back to the store and refills the
  cache. Redis being down never fails a read.

KEYS:
  remuneration:report:{facilityID}:{YYYY-MM}
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
	"go.uber.org/zap"
)

// ErrCacheMiss means the key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// KVStore is the subset of Redis the cache needs.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisKVStore implements KVStore with go-redis.
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKVStore) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// =============================================================================
// SUMMARY CACHE
// =============================================================================

type SummaryCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewSummaryCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *SummaryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryCache{kv: kv, ttl: ttl, logger: logger}
}

// Key returns the cache key of a period.
func Key(facilityID string, month generic.ReportMonth) string {
	return fmt.Sprintf("remuneration:report:%s:%s", facilityID, month)
}

// Get returns ErrCacheMiss when the report is not cached.
func (c *SummaryCache) Get(ctx context.Context, facilityID string, month generic.ReportMonth) (*remuneration.Report, error) {
	raw, err := c.kv.Get(ctx, Key(facilityID, month))
	if err != nil {
		return nil, err
	}
	var rep remuneration.Report
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}
	return &rep, nil
}

func (c *SummaryCache) Put(ctx context.Context, rep *remuneration.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	key := Key(rep.Summary.FacilityID, rep.Summary.ReportMonth)
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	c.logger.Debug("Cached remuneration report", zap.String("key", key))
	return nil
}

func (c *SummaryCache) Invalidate(ctx context.Context, facilityID string, month generic.ReportMonth) error {
	return c.kv.Del(ctx, Key(facilityID, month))
}

// Hook returns a recompute hook that writes each new report through.
func (c *SummaryCache) Hook() func(context.Context, *remuneration.Result) {
	return func(ctx context.Context, res *remuneration.Result) {
		if err := c.Put(ctx, remuneration.ReportFromResult(res)); err != nil {
			c.logger.Warn("Failed to write report through to cache",
				zap.String("facility_id", res.FacilityID),
				zap.String("report_month", res.ReportMonth.String()),
				zap.Error(err),
			)
			// A stale entry would outlive the recompute otherwise.
			_ = c.Invalidate(ctx, res.FacilityID, res.ReportMonth)
		}
	}
}

// InvalidateHook returns a submitter hook that drops the cached report of
// a period whose values were just replaced.
func (c *SummaryCache) InvalidateHook() func(context.Context, string, generic.ReportMonth) {
	return func(ctx context.Context, facilityID string, month generic.ReportMonth) {
		if err := c.Invalidate(ctx, facilityID, month); err != nil {
			c.logger.Warn("Failed to invalidate cached report",
				zap.String("facility_id", facilityID),
				zap.String("report_month", month.String()),
				zap.Error(err),
			)
		}
	}
}

// =============================================================================
// READ-THROUGH
// =============================================================================

// ReadThrough serves reports from the cache and falls back to a source.
type ReadThrough struct {
	cache  *SummaryCache
	source remuneration.ReportSource
}

var _ remuneration.ReportSource = (*ReadThrough)(nil)

func NewReadThrough(cache *SummaryCache, source remuneration.ReportSource) *ReadThrough {
	return &ReadThrough{cache: cache, source: source}
}

func (r *ReadThrough) LoadReport(ctx context.Context, facilityID string, month generic.ReportMonth) (*remuneration.Report, error) {
	rep, err := r.cache.Get(ctx, facilityID, month)
	if err == nil {
		return rep, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.cache.logger.Warn("Cache read failed, using store",
			zap.String("facility_id", facilityID),
			zap.String("report_month", month.String()),
			zap.Error(err),
		)
	}

	rep, err = r.source.LoadReport(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, rep); err != nil {
		r.cache.logger.Warn("Failed to fill cache", zap.Error(err))
	}
	return rep, nil
}
