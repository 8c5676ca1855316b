package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langchou/parkmeter/internal/api/presenter"
	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/service"
)

type coordinateRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (h *Handler) zoneView(snap *service.Snapshot, z *models.Zone, now time.Time) presenter.ZoneView {
	return presenter.Zone(z, snap.Schedules(), snap.TariffFor(z.ID), now)
}

func (h *Handler) zoneViews(snap *service.Snapshot, zones []*models.Zone) []presenter.ZoneView {
	now := h.clock.Now()
	views := make([]presenter.ZoneView, 0, len(zones))
	for _, z := range zones {
		views = append(views, h.zoneView(snap, z, now))
	}
	return views
}

// ZoneViews 启用区域的展示模型（也用作 WebSocket 初始数据）
func (h *Handler) ZoneViews(ctx context.Context) ([]presenter.ZoneView, error) {
	snap, err := h.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return h.zoneViews(snap, snap.ActiveZones()), nil
}

// ListZones 获取启用的区域
func (h *Handler) ListZones(c *gin.Context) {
	views, err := h.ZoneViews(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

// GetZone 获取区域详情
func (h *Handler) GetZone(c *gin.Context) {
	id, ok := parseID(c, "zone")
	if !ok {
		return
	}

	snap, err := h.catalog.Snapshot(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	z, found := snap.Zone(id)
	if !found || !z.Active {
		c.JSON(http.StatusNotFound, gin.H{"error": "Zone not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.zoneView(snap, z, h.clock.Now())})
}

// ResolveZone 坐标所在的区域，没有匹配时 data 为 null
func (h *Handler) ResolveZone(c *gin.Context) {
	var req coordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	z := h.resolver.Resolve(ctx, models.Coordinate{Lat: *req.Lat, Lng: *req.Lng})
	if z == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil, "requires_payment": false})
		return
	}

	snap, err := h.catalog.Snapshot(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":             h.zoneView(snap, z, h.clock.Now()),
		"requires_payment": !z.Prohibited,
	})
}

// ZoneContains 坐标是否在指定区域内
// GET /api/zones/:id/contains?lat=&lng=
func (h *Handler) ZoneContains(c *gin.Context) {
	id, ok := parseID(c, "zone")
	if !ok {
		return
	}
	coord, ok := parseCoordinate(c)
	if !ok {
		return
	}

	inside, err := h.resolver.Contains(c.Request.Context(), id, coord)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inside})
}

// NearbyZones 附近的区域
// GET /api/zones/nearby?lat=&lng=&radius=
func (h *Handler) NearbyZones(c *gin.Context) {
	coord, ok := parseCoordinate(c)
	if !ok {
		return
	}
	radius := service.DefaultNearbyRadius
	if v := c.Query("radius"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid radius"})
			return
		}
		radius = r
	}

	ctx := c.Request.Context()
	zones, err := h.resolver.Nearby(ctx, coord, radius)
	if err != nil {
		h.writeError(c, err)
		return
	}
	snap, err := h.catalog.Snapshot(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.zoneViews(snap, zones)})
}

// RefreshCatalog 从存储重新加载区域目录
func (h *Handler) RefreshCatalog(c *gin.Context) {
	snap, err := h.catalog.Refresh(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"zones":     len(snap.ActiveZones()),
		"loaded_at": snap.LoadedAt(),
	}})
}
