package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"

	"shorturl-go/constant"
	"shorturl-go/internal/model"
	"shorturl-go/internal/storage"
)

// CachedAdapter 为 FindByShortCode / FindByAlias 增加 redis 旁路缓存，其余操作直接透传。
// 未命中同样缓存为空值，防止缓存穿透。redis 故障只记录日志，不影响主流程。
type CachedAdapter struct {
	storage.Adapter
	pool        *redis.Pool
	logger      *zap.Logger
	ttl         time.Duration
	negativeTTL time.Duration
	now         func() time.Time
}

var _ storage.Adapter = (*CachedAdapter)(nil)

// cacheEntry 记录本身的 JSON 不含访问码，需要单独保存
type cacheEntry struct {
	Record    *model.ShortURL `json:"record"`
	EntryCode *string         `json:"entryCode,omitempty"`
}

func NewCachedAdapter(inner storage.Adapter, pool *redis.Pool, logger *zap.Logger, ttl, negativeTTL time.Duration) *CachedAdapter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if negativeTTL <= 0 {
		negativeTTL = 5 * time.Minute
	}
	return &CachedAdapter{
		Adapter:     inner,
		pool:        pool,
		logger:      logger,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		now:         time.Now,
	}
}

func (c *CachedAdapter) closeConn(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection",
			zap.Error(err),
			zap.String("operation", "close"),
			zap.String("connection_type", "redis"),
		)
	}
}

// lookup 返回 (记录, 是否命中)；命中空值时记录为 nil
func (c *CachedAdapter) lookup(conn redis.Conn, key string) (*model.ShortURL, bool) {
	cached, err := redis.Bytes(conn.Do("GET", key))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			c.logger.Warn("Error getting from Redis", zap.String("cache_key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(cached) == 0 {
		return nil, true
	}

	var entry cacheEntry
	if err := json.Unmarshal(cached, &entry); err != nil || entry.Record == nil {
		c.logger.Warn("Failed to unmarshal cached value", zap.String("cache_key", key), zap.Error(err))
		return nil, false
	}
	rec := entry.Record
	rec.EntryCode = entry.EntryCode
	if rec.IsExpired(c.now()) {
		return nil, true
	}
	return rec, true
}

func (c *CachedAdapter) store(conn redis.Conn, key string, rec *model.ShortURL) {
	if rec == nil {
		if _, err := conn.Do("SET", key, "", "EX", max(1, int(c.negativeTTL.Seconds()))); err != nil {
			c.logger.Error("设置缓存失败", zap.String("cache_key", key), zap.Error(err))
		}
		return
	}

	ttl := c.ttl
	if rec.ExpiresAt != nil {
		if remaining := rec.ExpiresAt.Sub(c.now()); remaining < ttl {
			ttl = remaining
		}
	}
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		return
	}

	value, err := json.Marshal(cacheEntry{Record: rec, EntryCode: rec.EntryCode})
	if err != nil {
		c.logger.Warn("Failed to marshal cache value", zap.String("cache_key", key), zap.Error(err))
		return
	}
	if _, err := conn.Do("SET", key, value, "EX", seconds); err != nil {
		c.logger.Error("设置缓存失败", zap.String("cache_key", key), zap.Error(err))
	}
}

func (c *CachedAdapter) readThrough(ctx context.Context, key string, load func(context.Context) (*model.ShortURL, error)) (*model.ShortURL, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		c.logger.Warn("Redis unavailable, falling back to storage", zap.Error(err))
		return load(ctx)
	}
	defer c.closeConn(conn)

	if rec, hit := c.lookup(conn, key); hit {
		return rec, nil
	}

	rec, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.store(conn, key, rec)
	return rec, nil
}

func (c *CachedAdapter) FindByShortCode(ctx context.Context, code string) (*model.ShortURL, error) {
	return c.readThrough(ctx, constant.GetShortCodeKey(code), func(ctx context.Context) (*model.ShortURL, error) {
		return c.Adapter.FindByShortCode(ctx, code)
	})
}

func (c *CachedAdapter) FindByAlias(ctx context.Context, alias string) (*model.ShortURL, error) {
	return c.readThrough(ctx, constant.GetAliasKey(alias), func(ctx context.Context) (*model.ShortURL, error) {
		return c.Adapter.FindByAlias(ctx, alias)
	})
}

// invalidate 删除记录相关的 code 与别名缓存
func (c *CachedAdapter) invalidate(ctx context.Context, codes []string, aliases []string) {
	keys := make([]any, 0, len(codes)+len(aliases))
	for _, code := range codes {
		if code != "" {
			keys = append(keys, constant.GetShortCodeKey(code))
		}
	}
	for _, alias := range aliases {
		if alias != "" {
			keys = append(keys, constant.GetAliasKey(alias))
		}
	}
	if len(keys) == 0 {
		return
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		c.logger.Warn("Redis 删除缓存失败", zap.Error(err))
		return
	}
	defer c.closeConn(conn)
	if _, err := conn.Do("DEL", keys...); err != nil {
		c.logger.Warn("Redis 删除缓存失败", zap.Any("cache_keys", keys), zap.Error(err))
	}
}

func (c *CachedAdapter) Create(ctx context.Context, record *model.ShortURL) (*model.ShortURL, error) {
	created, err := c.Adapter.Create(ctx, record)
	if err != nil {
		return nil, err
	}
	// 清理之前缓存的空值
	c.invalidate(ctx, []string{created.ShortCode, created.Alias()}, []string{created.Alias(), created.ShortCode})
	return created, nil
}

func (c *CachedAdapter) Update(ctx context.Context, code string, patch storage.Patch) (*model.ShortURL, error) {
	var oldAlias string
	if before, err := c.Adapter.FindByShortCode(ctx, code); err == nil && before != nil {
		oldAlias = before.Alias()
	}
	updated, err := c.Adapter.Update(ctx, code, patch)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, []string{code, oldAlias, updated.Alias()}, []string{oldAlias, updated.Alias(), code})
	return updated, nil
}

func (c *CachedAdapter) Delete(ctx context.Context, code string) (bool, error) {
	var alias string
	if before, err := c.Adapter.FindByShortCode(ctx, code); err == nil && before != nil {
		alias = before.Alias()
	}
	deleted, err := c.Adapter.Delete(ctx, code)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, []string{code}, []string{alias})
	return deleted, nil
}
