package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsecrm/syncd/internal/application/services"
)

// DeviceHandler serves device registration and login
type DeviceHandler struct {
	svcMgr *services.ServiceManager
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(svcMgr *services.ServiceManager) *DeviceHandler {
	return &DeviceHandler{svcMgr: svcMgr}
}

// Register handles POST /api/devices/register
func (h *DeviceHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Platform string `json:"platform"`
		Secret   string `json:"secret" binding:"required"`
	}
	if !BindJSON(c, &req) {
		return
	}

	device, err := h.svcMgr.Auth.Register(c.Request.Context(), req.Name, req.Platform, req.Secret)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"device": device})
}

// Login handles POST /api/devices/login
func (h *DeviceHandler) Login(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
		Secret   string `json:"secret" binding:"required"`
	}
	if !BindJSON(c, &req) {
		return
	}

	result, err := h.svcMgr.Auth.Login(c.Request.Context(), req.DeviceID, req.Secret)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
