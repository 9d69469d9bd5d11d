package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/routecast/internal/service"
	"github.com/jengzang/routecast/pkg/response"
)

// ConfigHandler handles HTTP requests for global settings
type ConfigHandler struct {
	configService *service.ConfigService
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(configService *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{configService: configService}
}

// GetConfig handles GET /api/v1/config/:key
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	value, err := h.configService.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, value)
}

// SetConfig handles PUT /api/v1/config/:key
func (h *ConfigHandler) SetConfig(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil || !json.Valid(data) {
		response.BadRequest(c, "Request body must be JSON")
		return
	}
	value, err := h.configService.Set(c.Request.Context(), c.Param("key"), data)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, value)
}

// ResetConfig handles DELETE /api/v1/config/:key
func (h *ConfigHandler) ResetConfig(c *gin.Context) {
	value, err := h.configService.Reset(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, value)
}
