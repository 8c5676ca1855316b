package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/models"
)

// ErrCacheMiss 缓存中没有快照
var ErrCacheMiss = errors.New("catalog cache miss")

const catalogKey = "catalog:snapshot"

// CatalogCache 区域/排班/费率快照的 Redis 缓存，多个实例共享
type CatalogCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogCache 创建缓存
func NewCatalogCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *CatalogCache {
	return &CatalogCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CatalogCache) key() string {
	return c.prefix + catalogKey
}

// Get 读取快照，不存在时返回 ErrCacheMiss
func (c *CatalogCache) Get(ctx context.Context) (*models.Catalog, error) {
	val, err := c.client.Get(ctx, c.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get catalog cache: %w", err)
	}

	var catalog models.Catalog
	if err := json.Unmarshal(val, &catalog); err != nil {
		return nil, fmt.Errorf("unmarshal catalog cache: %w", err)
	}
	return &catalog, nil
}

// Set 写入快照
func (c *CatalogCache) Set(ctx context.Context, catalog *models.Catalog) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("marshal catalog cache: %w", err)
	}
	if err := c.client.Set(ctx, c.key(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set catalog cache: %w", err)
	}
	c.logger.Debug("Catalog cached",
		zap.Int("zones", len(catalog.Zones)),
		zap.Int("schedules", len(catalog.Schedules)),
		zap.Int("tariffs", len(catalog.Tariffs)),
		zap.Duration("ttl", c.ttl))
	return nil
}

// Invalidate 删除快照
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key()).Err(); err != nil {
		return fmt.Errorf("delete catalog cache: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (c *CatalogCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
