package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/clock"
	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/observability"
	"github.com/langchou/parkmeter/internal/service"
	"github.com/langchou/parkmeter/pkg/ws"
)

// VehicleStore 车辆登记所需的存储
type VehicleStore interface {
	Create(ctx context.Context, v *models.Vehicle) error
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
}

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	engine   *service.SessionEngine
	resolver *service.ZoneResolver
	catalog  *service.Catalog
	sweeper  *service.ExpirationScheduler
	vehicles VehicleStore
	clock    clock.Clock
	wsHub    *ws.Hub
	metrics  *observability.Collector
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	engine *service.SessionEngine,
	resolver *service.ZoneResolver,
	catalog *service.Catalog,
	sweeper *service.ExpirationScheduler,
	vehicles VehicleStore,
	clk clock.Clock,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		resolver: resolver,
		catalog:  catalog,
		sweeper:  sweeper,
		vehicles: vehicles,
		clock:    clk,
		wsHub:    wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// SetMetrics 启用 /metrics
func (h *Handler) SetMetrics(m *observability.Collector) {
	h.metrics = m
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 区域
		api.GET("/zones", h.ListZones)
		api.GET("/zones/nearby", h.NearbyZones)
		api.POST("/zones/resolve", h.ResolveZone)
		api.GET("/zones/:id", h.GetZone)
		api.GET("/zones/:id/contains", h.ZoneContains)
		api.POST("/catalog/refresh", h.RefreshCatalog)

		// 车辆
		api.POST("/vehicles", h.CreateVehicle)
		api.GET("/vehicles/:id", h.GetVehicle)
		api.GET("/vehicles/:id/session", h.GetActiveSession)
		api.GET("/vehicles/:id/sessions", h.ListSessions)

		// 停车会话
		api.POST("/sessions", h.StartSession)
		api.GET("/sessions/:id", h.GetSession)
		api.POST("/sessions/:id/finish", h.FinishSession)
		api.POST("/sessions/:id/cancel", h.CancelSession)
		api.GET("/sessions/:id/estimate", h.EstimateCost)

		// 手动触发到期扫描
		api.POST("/sweep", h.Sweep)
	}

	r.GET("/ws", h.HandleWebSocket)
	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.wsHub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WebSocket not enabled"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{"status": "ok", "time": h.clock.Now()}
	if h.wsHub != nil {
		resp["ws_clients"] = h.wsHub.ClientCount()
	}
	if snap, err := h.catalog.Snapshot(c.Request.Context()); err == nil {
		resp["zones"] = len(snap.ActiveZones())
		resp["catalog_loaded_at"] = snap.LoadedAt()
	} else {
		resp["status"] = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

// Sweep 以当前时间执行一次到期扫描
func (h *Handler) Sweep(c *gin.Context) {
	now := h.clock.Now()
	n, err := h.sweeper.Sweep(c.Request.Context(), now)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"expired": n, "at": now}})
}

// writeError 把服务层错误映射为 HTTP 状态码
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrForbiddenZone):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestID(c)),
			zap.Error(err))
		msg = "Internal server error"
	}
	c.JSON(status, gin.H{"error": msg, "request_id": requestID(c)})
}

func parseID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID"})
		return 0, false
	}
	return id, true
}

func parseCoordinate(c *gin.Context) (models.Coordinate, bool) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required numbers"})
		return models.Coordinate{}, false
	}
	return models.Coordinate{Lat: lat, Lng: lng}, true
}
