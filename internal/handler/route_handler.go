package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/service"
	"github.com/jengzang/routecast/pkg/response"
)

// RouteHandler handles HTTP requests for saved routes and playback
type RouteHandler struct {
	routeService *service.RouteService
}

// NewRouteHandler creates a new route handler
func NewRouteHandler(routeService *service.RouteService) *RouteHandler {
	return &RouteHandler{routeService: routeService}
}

// bindOptional decodes an optional JSON body into obj.
func bindOptional(c *gin.Context, obj any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}

// ListRoutes handles GET /api/v1/scenes/:sceneId/routes
func (h *RouteHandler) ListRoutes(c *gin.Context) {
	var filter models.RouteFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	routes, err := h.routeService.ListRoutes(c.Request.Context(), c.Param("sceneId"), filter)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}

// CreateRoute handles POST /api/v1/scenes/:sceneId/routes
func (h *RouteHandler) CreateRoute(c *gin.Context) {
	var req service.CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid route: "+err.Error())
		return
	}
	rec, err := h.routeService.CreateRoute(c.Request.Context(), c.Param("sceneId"), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rec)
}

// GetRoute handles GET /api/v1/scenes/:sceneId/routes/:id
func (h *RouteHandler) GetRoute(c *gin.Context) {
	rec, err := h.routeService.FindRoute(c.Request.Context(), c.Param("sceneId"), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rec)
}

// UpdateRoute handles PUT /api/v1/scenes/:sceneId/routes/:id
func (h *RouteHandler) UpdateRoute(c *gin.Context) {
	var req service.UpdateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid route: "+err.Error())
		return
	}
	rec, err := h.routeService.UpdateRoute(c.Request.Context(), c.Param("sceneId"), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rec)
}

// DeleteRoute handles DELETE /api/v1/scenes/:sceneId/routes/:id
func (h *RouteHandler) DeleteRoute(c *gin.Context) {
	if err := h.routeService.DeleteRoute(c.Request.Context(), c.Param("sceneId"), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// PlayRoute handles POST /api/v1/scenes/:sceneId/routes/:id/play
func (h *RouteHandler) PlayRoute(c *gin.Context) {
	var overrides models.PlayOverrides
	if err := bindOptional(c, &overrides); err != nil {
		response.BadRequest(c, "Invalid overrides: "+err.Error())
		return
	}
	payload, err := h.routeService.PlayRoute(c.Request.Context(), c.Param("sceneId"), c.Param("id"), overrides)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, payload)
}

// PreviewRoute handles POST /api/v1/scenes/:sceneId/routes/:id/preview
func (h *RouteHandler) PreviewRoute(c *gin.Context) {
	if err := h.routeService.PreviewRoute(c.Request.Context(), c.Param("sceneId"), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// ClearRoute handles POST /api/v1/scenes/:sceneId/routes/:id/clear.
// Names are resolved to ids; anything else is cleared as a raw id.
func (h *RouteHandler) ClearRoute(c *gin.Context) {
	ctx := c.Request.Context()
	sceneID, routeID := c.Param("sceneId"), c.Param("id")
	if rec, err := h.routeService.FindRoute(ctx, sceneID, routeID); err == nil {
		routeID = rec.ID
	}
	if err := h.routeService.ClearRoute(ctx, sceneID, routeID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"routeId": routeID})
}

// BakeRoute handles POST /api/v1/scenes/:sceneId/routes/:id/bake
func (h *RouteHandler) BakeRoute(c *gin.Context) {
	opts := service.BakeOptions{IncludeEndX: true, IncludeLabel: true}
	if err := bindOptional(c, &opts); err != nil {
		response.BadRequest(c, "Invalid bake options: "+err.Error())
		return
	}
	tile, err := h.routeService.BakeRoute(c.Request.Context(), c.Param("sceneId"), c.Param("id"), opts)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, tile)
}

// Travel handles GET /api/v1/scenes/:sceneId/routes/:id/travel
func (h *RouteHandler) Travel(c *gin.Context) {
	var filter models.TravelFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	est, err := h.routeService.Travel(c.Request.Context(), c.Param("sceneId"), c.Param("id"), filter)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, est)
}

// Draw handles POST /api/v1/scenes/:sceneId/draw
func (h *RouteHandler) Draw(c *gin.Context) {
	var req service.DrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid draw request: "+err.Error())
		return
	}
	payload, err := h.routeService.DrawPoints(c.Request.Context(), c.Param("sceneId"), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, payload)
}

// ClearAll handles POST /api/v1/scenes/:sceneId/clear
func (h *RouteHandler) ClearAll(c *gin.Context) {
	if err := h.routeService.ClearAll(c.Request.Context(), c.Param("sceneId")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Export handles GET /api/v1/scenes/:sceneId/export.
// The document is sent bare so that it can be imported again as is.
func (h *RouteHandler) Export(c *gin.Context) {
	var filter models.ExportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	ctx, sceneID := c.Request.Context(), c.Param("sceneId")
	switch strings.ToLower(filter.Format) {
	case "", "json":
		doc, err := h.routeService.Export(ctx, sceneID)
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+sceneID+`-routes.json"`)
		c.JSON(200, doc)
	case "geojson":
		fc, err := h.routeService.ExportGeoJSON(ctx, sceneID)
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+sceneID+`-routes.geojson"`)
		c.Header("Content-Type", "application/geo+json")
		c.JSON(200, fc)
	default:
		response.BadRequest(c, "Unknown export format: "+filter.Format)
	}
}

// Import handles POST /api/v1/scenes/:sceneId/import
func (h *RouteHandler) Import(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "Failed to read request body")
		return
	}
	routes, err := h.routeService.Import(c.Request.Context(), c.Param("sceneId"), data)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}
