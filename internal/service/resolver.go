package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/geo"
	"github.com/langchou/parkmeter/internal/models"
)

// DefaultNearbyRadius 附近区域的默认半径（度）
const DefaultNearbyRadius = 0.01

// ZoneResolver 坐标到区域的解析
type ZoneResolver struct {
	catalog *Catalog
	logger  *zap.Logger
}

// NewZoneResolver 创建解析器
func NewZoneResolver(catalog *Catalog, logger *zap.Logger) *ZoneResolver {
	return &ZoneResolver{catalog: catalog, logger: logger}
}

// Resolve 返回包含该坐标的第一个启用区域（按 ID 升序），没有匹配返回 nil
// 不返回错误：目录加载失败或坐标非法都按"无区域"处理
func (r *ZoneResolver) Resolve(ctx context.Context, c models.Coordinate) *models.Zone {
	if !c.Valid() {
		r.logger.Debug("Coordinate out of range, no zone", zap.Float64("lat", c.Lat), zap.Float64("lng", c.Lng))
		return nil
	}

	snap, err := r.catalog.Snapshot(ctx)
	if err != nil {
		r.logger.Error("Failed to load zone catalog, resolving to no zone", zap.Error(err))
		return nil
	}
	return resolveIn(snap, c)
}

func resolveIn(snap *Snapshot, c models.Coordinate) *models.Zone {
	for _, z := range snap.ActiveZones() {
		if geo.ContainsAny(c, z.Polygons) {
			return z
		}
	}
	return nil
}

// Contains 坐标是否在指定的启用区域内
func (r *ZoneResolver) Contains(ctx context.Context, zoneID int64, c models.Coordinate) (bool, error) {
	snap, err := r.catalog.Snapshot(ctx)
	if err != nil {
		return false, internalError("load catalog", err)
	}
	z, ok := snap.Zone(zoneID)
	if !ok || !z.Active {
		return false, fmt.Errorf("%w: zone %d", ErrNotFound, zoneID)
	}
	return c.Valid() && geo.ContainsAny(c, z.Polygons), nil
}

// Nearby 包含该坐标或中心在 radius（度）以内的启用区域
func (r *ZoneResolver) Nearby(ctx context.Context, c models.Coordinate, radius float64) ([]*models.Zone, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: coordinate out of range", ErrInvalidInput)
	}
	if radius <= 0 {
		radius = DefaultNearbyRadius
	}

	snap, err := r.catalog.Snapshot(ctx)
	if err != nil {
		return nil, internalError("load catalog", err)
	}

	var out []*models.Zone
	for _, z := range snap.ActiveZones() {
		if geo.NearCentroid(c, z.Polygons, radius) {
			out = append(out, z)
		}
	}
	return out, nil
}
