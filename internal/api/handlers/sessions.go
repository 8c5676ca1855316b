package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/service"
)

type startSessionRequest struct {
	VehicleID int64    `json:"vehicle_id" binding:"required"`
	Lat       *float64 `json:"lat" binding:"required"`
	Lng       *float64 `json:"lng" binding:"required"`
	ZoneID    *int64   `json:"zone_id"`
}

type finishSessionRequest struct {
	EndTime *time.Time `json:"end_time"`
}

// StartSession 开始停车
func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	res, err := h.engine.Start(c.Request.Context(), service.StartRequest{
		VehicleID:  req.VehicleID,
		Coordinate: models.Coordinate{Lat: *req.Lat, Lng: *req.Lng},
		ZoneID:     req.ZoneID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": res})
}

// GetSession 获取会话
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := parseID(c, "session")
	if !ok {
		return
	}

	s, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s})
}

// FinishSession 结束停车，可选 end_time（RFC3339）
func (h *Handler) FinishSession(c *gin.Context) {
	id, ok := parseID(c, "session")
	if !ok {
		return
	}

	// 请求体可以为空；分块传输时 ContentLength 为 -1，所以直接解析
	var req finishSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	res, err := h.engine.Finish(c.Request.Context(), id, req.EndTime)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// CancelSession 取消停车
func (h *Handler) CancelSession(c *gin.Context) {
	id, ok := parseID(c, "session")
	if !ok {
		return
	}

	s, err := h.engine.Cancel(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s})
}

// EstimateCost 估算当前费用
func (h *Handler) EstimateCost(c *gin.Context) {
	id, ok := parseID(c, "session")
	if !ok {
		return
	}

	amount, err := h.engine.EstimateCost(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session_id": id,
		"amount_due": amount.StringFixed(2),
		"at":         h.clock.Now(),
	}})
}
