package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/repository"
)

type createVehicleRequest struct {
	OwnerID int64  `json:"owner_id" binding:"required"`
	Plate   string `json:"plate" binding:"required"`
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Color   string `json:"color"`
}

// CreateVehicle 登记车辆
func (h *Handler) CreateVehicle(c *gin.Context) {
	var req createVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	v := &models.Vehicle{
		OwnerID: req.OwnerID,
		Plate:   req.Plate,
		Brand:   req.Brand,
		Model:   req.Model,
		Color:   req.Color,
	}
	if err := h.vehicles.Create(c.Request.Context(), v); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Plate already registered"})
			return
		}
		h.logger.Error("Failed to create vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create vehicle"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": v})
}

// GetVehicle 获取车辆
func (h *Handler) GetVehicle(c *gin.Context) {
	id, ok := parseID(c, "vehicle")
	if !ok {
		return
	}

	v, err := h.vehicles.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
			return
		}
		h.logger.Error("Failed to get vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": v})
}

// GetActiveSession 车辆进行中的会话，没有时 data 为 null
func (h *Handler) GetActiveSession(c *gin.Context) {
	id, ok := parseID(c, "vehicle")
	if !ok {
		return
	}

	s, err := h.engine.GetActive(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s})
}

// ListSessions 车辆的停车历史
// GET /api/vehicles/:id/sessions?page=&per_page=
func (h *Handler) ListSessions(c *gin.Context) {
	id, ok := parseID(c, "vehicle")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	sessions, err := h.engine.ListByVehicle(c.Request.Context(), id, perPage, (page-1)*perPage)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": sessions,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
		},
	})
}
