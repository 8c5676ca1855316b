package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/langchou/parkmeter/internal/cache"
	"github.com/langchou/parkmeter/internal/clock"
	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/observability"
	"github.com/langchou/parkmeter/internal/schedule"
	"github.com/langchou/parkmeter/internal/tariff"
)

// Snapshot 区域、排班、费率的只读快照
// 其中的 Zone 指针为共享数据，调用方不得修改
type Snapshot struct {
	zones     []*models.Zone
	active    []*models.Zone
	byID      map[int64]*models.Zone
	schedules *schedule.Index
	tables    map[int64]*tariff.Table
	global    *tariff.Table
	loadedAt  time.Time
}

// newSnapshot 构建快照，返回被跳过的排班条目
func newSnapshot(c *models.Catalog, loc *time.Location, loadedAt time.Time) (*Snapshot, []error) {
	idx, rejected := schedule.Build(c.Schedules)

	zones := make([]*models.Zone, len(c.Zones))
	copy(zones, c.Zones)
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })

	s := &Snapshot{
		zones:     zones,
		byID:      make(map[int64]*models.Zone, len(zones)),
		schedules: idx,
		tables:    make(map[int64]*tariff.Table, len(zones)),
		global:    tariff.NewTable(tariff.ForZone(c.Tariffs, 0), loc),
		loadedAt:  loadedAt,
	}
	for _, z := range zones {
		s.byID[z.ID] = z
		if z.Active {
			s.active = append(s.active, z)
		}
		s.tables[z.ID] = tariff.NewTable(tariff.ForZone(c.Tariffs, z.ID), loc)
	}
	return s, rejected
}

// ActiveZones 启用的区域，按 ID 升序
func (s *Snapshot) ActiveZones() []*models.Zone {
	return s.active
}

// Zones 全部区域
func (s *Snapshot) Zones() []*models.Zone {
	return s.zones
}

// Zone 按 ID 取区域（包括未启用的）
func (s *Snapshot) Zone(id int64) (*models.Zone, bool) {
	z, ok := s.byID[id]
	return z, ok
}

// Schedules 排班索引
func (s *Snapshot) Schedules() *schedule.Index {
	return s.schedules
}

// TariffFor 区域适用的费率表
func (s *Snapshot) TariffFor(zoneID int64) *tariff.Table {
	if t, ok := s.tables[zoneID]; ok {
		return t
	}
	return s.global
}

// LoadedAt 加载时间
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Catalog 区域目录，按 TTL 刷新，可选 Redis 共享缓存
// 刷新失败时继续使用旧快照
type Catalog struct {
	zones     ZoneRepository
	schedules ScheduleRepository
	tariffs   TariffRepository
	cache     CatalogCache
	clock     clock.Clock
	loc       *time.Location
	ttl       time.Duration
	logger    *zap.Logger
	metrics   *observability.Collector

	mu    sync.RWMutex
	snap  *Snapshot
	group singleflight.Group
}

// NewCatalog 创建目录服务，ttl <= 0 表示每次都重新加载
func NewCatalog(
	zones ZoneRepository,
	schedules ScheduleRepository,
	tariffs TariffRepository,
	clk clock.Clock,
	loc *time.Location,
	ttl time.Duration,
	logger *zap.Logger,
) *Catalog {
	if loc == nil {
		loc = time.UTC
	}
	return &Catalog{
		zones:     zones,
		schedules: schedules,
		tariffs:   tariffs,
		clock:     clk,
		loc:       loc,
		ttl:       ttl,
		logger:    logger,
	}
}

// SetCache 设置共享缓存
func (c *Catalog) SetCache(cc CatalogCache) {
	c.cache = cc
}

// SetMetrics 设置指标
func (c *Catalog) SetMetrics(m *observability.Collector) {
	c.metrics = m
}

// Location 计算时刻所用的时区
func (c *Catalog) Location() *time.Location {
	return c.loc
}

// Snapshot 当前快照，过期时刷新
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	if snap != nil && c.ttl > 0 && c.clock.Now().Sub(snap.loadedAt) < c.ttl {
		return snap, nil
	}

	fresh, err := c.load(ctx, true)
	if err != nil {
		if snap != nil {
			c.logger.Warn("Catalog refresh failed, serving stale snapshot", zap.Error(err))
			return snap, nil
		}
		return nil, err
	}
	return fresh, nil
}

// Refresh 跳过共享缓存从存储重新加载，并写回缓存
func (c *Catalog) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.load(ctx, false)
}

// Invalidate 丢弃本地快照和共享缓存
func (c *Catalog) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.Invalidate(ctx); err != nil {
			c.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
		}
	}
}

func (c *Catalog) load(ctx context.Context, useCache bool) (*Snapshot, error) {
	key := "store"
	if useCache {
		key = "cache"
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		var (
			catalog *models.Catalog
			source  = "store"
		)
		if useCache && c.cache != nil {
			cached, err := c.cache.Get(ctx)
			switch {
			case err == nil:
				catalog, source = cached, "cache"
			case !errors.Is(err, cache.ErrCacheMiss):
				c.logger.Warn("Failed to read catalog cache", zap.Error(err))
			}
		}

		if catalog == nil {
			loaded, err := c.loadFromStore(ctx)
			if err != nil {
				return nil, err
			}
			catalog = loaded
			if c.cache != nil {
				if err := c.cache.Set(ctx, catalog); err != nil {
					c.logger.Warn("Failed to write catalog cache", zap.Error(err))
				}
			}
		}

		snap, rejected := newSnapshot(catalog, c.loc, c.clock.Now())
		for _, err := range rejected {
			c.logger.Warn("Skipping invalid zone schedule", zap.Error(err))
		}

		c.mu.Lock()
		c.snap = snap
		c.mu.Unlock()

		c.metrics.CatalogRefreshed(source)
		c.logger.Debug("Catalog loaded",
			zap.String("source", source),
			zap.Int("zones", len(catalog.Zones)),
			zap.Int("schedules", len(catalog.Schedules)),
			zap.Int("tariffs", len(catalog.Tariffs)))
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Catalog) loadFromStore(ctx context.Context) (*models.Catalog, error) {
	zones, err := c.zones.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}
	schedules, err := c.schedules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	tariffs, err := c.tariffs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tariffs: %w", err)
	}
	return &models.Catalog{Zones: zones, Schedules: schedules, Tariffs: tariffs}, nil
}
