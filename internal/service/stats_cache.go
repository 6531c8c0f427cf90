package service

import (
	"context"
	"errors"
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ritualog/internal/logger"
	"go.uber.org/zap"
)

const redisStatsPrefix = "ritualog:stats:"

// StatsCache 缓存按用户划分的统计结果。用户的任何写操作都会使其全部条目失效。
// Get 同时返回读取时的版本号，Set 必须携带该版本号写入：
// 计算期间若发生 Invalidate，旧版本下写入的结果不会再被读到。
type StatsCache interface {
	Get(ctx context.Context, userID, key string) (value []byte, version string, ok bool)
	Set(ctx context.Context, userID, key, version string, value []byte)
	Invalidate(ctx context.Context, userID string)
}

// NoopStatsCache 不缓存任何内容
type NoopStatsCache struct{}

func (NoopStatsCache) Get(context.Context, string, string) ([]byte, string, bool) {
	return nil, "", false
}
func (NoopStatsCache) Set(context.Context, string, string, string, []byte) {}
func (NoopStatsCache) Invalidate(context.Context, string)                  {}

// MemoryStatsCache 基于 freecache 的进程内缓存，仅适用于单实例部署。
// 失效通过替换用户的 generation 实现：旧条目不再可达，随 TTL 淘汰。
type MemoryStatsCache struct {
	cache *freecache.Cache
	ttl   int
}

// NewMemoryStatsCache 以 MB 为单位创建缓存
func NewMemoryStatsCache(sizeMB int, ttl time.Duration) *MemoryStatsCache {
	if sizeMB <= 0 {
		sizeMB = 32
	}
	seconds := int(ttl.Seconds())
	if seconds <= 0 {
		seconds = 300
	}
	return &MemoryStatsCache{
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   seconds,
	}
}

func (c *MemoryStatsCache) generation(userID string) string {
	genKey := []byte("gen:" + userID)
	if value, err := c.cache.Get(genKey); err == nil {
		return string(value)
	}
	gen := uuid.NewString()
	// generation 不设过期；若被淘汰会生成新值，旧条目随之失效
	_ = c.cache.Set(genKey, []byte(gen), 0)
	return gen
}

func (c *MemoryStatsCache) Get(_ context.Context, userID, key string) ([]byte, string, bool) {
	gen := c.generation(userID)
	value, err := c.cache.Get([]byte(userID + ":" + gen + ":" + key))
	if err != nil {
		return nil, gen, false
	}
	return value, gen, true
}

func (c *MemoryStatsCache) Set(_ context.Context, userID, key, version string, value []byte) {
	if version == "" {
		return
	}
	_ = c.cache.Set([]byte(userID+":"+version+":"+key), value, c.ttl)
}

func (c *MemoryStatsCache) Invalidate(_ context.Context, userID string) {
	_ = c.cache.Set([]byte("gen:"+userID), []byte(uuid.NewString()), 0)
}

// RedisStatsCache 基于 Redis 的共享缓存，适用于多实例部署。
// 每个用户维护一个自增版本号，条目键中带版本号，失效即 INCR。
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsCache 构造 RedisStatsCache
func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStatsCache{client: client, ttl: ttl}
}

func redisVersionKey(userID string) string {
	return redisStatsPrefix + "ver:" + userID
}

func redisEntryKey(userID, version, key string) string {
	return redisStatsPrefix + userID + ":" + version + ":" + key
}

func (c *RedisStatsCache) Get(ctx context.Context, userID, key string) ([]byte, string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	version, err := c.client.Get(ctx, redisVersionKey(userID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		version = "0"
	case err != nil:
		logger.L().Debug("stats cache version failed", zap.String("user_id", userID), zap.Error(err))
		return nil, "", false
	}

	value, err := c.client.Get(ctx, redisEntryKey(userID, version, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Debug("stats cache get failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, version, false
	}
	return value, version, true
}

func (c *RedisStatsCache) Set(ctx context.Context, userID, key, version string, value []byte) {
	if version == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Set(ctx, redisEntryKey(userID, version, key), value, c.ttl).Err(); err != nil {
		logger.L().Warn("stats cache set failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Invalidate 递增用户版本号，旧版本条目随 TTL 过期
func (c *RedisStatsCache) Invalidate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := c.client.Incr(ctx, redisVersionKey(userID)).Err(); err != nil {
		logger.L().Warn("stats cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// cacheKey 以集合指纹区分不同的可追踪项集合
func cacheKey(op string, set TrackableSet, parts ...string) string {
	key := op + ":" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(set.fingerprint())).String()
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

func cachedJSON[T any](ctx context.Context, cache StatsCache, metrics Metrics, userID, key string, compute func() (T, error)) (T, error) {
	raw, version, ok := cache.Get(ctx, userID, key)
	if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			metrics.CacheHit()
			return cached, nil
		}
	}
	metrics.CacheMiss()

	value, err := compute()
	if err != nil {
		return value, err
	}
	if raw, err := json.Marshal(value); err == nil {
		cache.Set(ctx, userID, key, version, raw)
	}
	return value, nil
}
