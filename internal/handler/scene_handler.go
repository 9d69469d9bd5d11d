package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/service"
	"github.com/jengzang/routecast/pkg/response"
)

// SceneHandler handles HTTP requests for tokens and baked tiles
type SceneHandler struct {
	sceneService *service.SceneService
}

// NewSceneHandler creates a new scene handler
func NewSceneHandler(sceneService *service.SceneService) *SceneHandler {
	return &SceneHandler{sceneService: sceneService}
}

// ListTokens handles GET /api/v1/scenes/:sceneId/tokens
func (h *SceneHandler) ListTokens(c *gin.Context) {
	tokens, err := h.sceneService.ListTokens(c.Request.Context(), c.Param("sceneId"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// SaveToken handles PUT /api/v1/scenes/:sceneId/tokens/:id
func (h *SceneHandler) SaveToken(c *gin.Context) {
	var t models.Token
	if err := c.ShouldBindJSON(&t); err != nil {
		response.BadRequest(c, "Invalid token: "+err.Error())
		return
	}
	t.ID = c.Param("id")
	saved, err := h.sceneService.SaveToken(c.Request.Context(), c.Param("sceneId"), t)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, saved)
}

// DeleteToken handles DELETE /api/v1/scenes/:sceneId/tokens/:id
func (h *SceneHandler) DeleteToken(c *gin.Context) {
	if err := h.sceneService.DeleteToken(c.Request.Context(), c.Param("sceneId"), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// ListTiles handles GET /api/v1/scenes/:sceneId/tiles
func (h *SceneHandler) ListTiles(c *gin.Context) {
	tiles, err := h.sceneService.ListTiles(c.Request.Context(), c.Param("sceneId"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"tiles": tiles,
		"count": len(tiles),
	})
}
