package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/routecast/internal/config"
	"github.com/jengzang/routecast/internal/handler"
	"github.com/jengzang/routecast/internal/middleware"
)

// Handlers are the endpoints the router wires up
type Handlers struct {
	Routes *handler.RouteHandler
	Scenes *handler.SceneHandler
	Config *handler.ConfigHandler
	Viewer *handler.ViewerHandler
	// Limiter throttles mutating requests when set.
	Limiter *middleware.RateLimiter
}

// SetupRouter builds the HTTP router
func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "routecast is running",
		})
	})

	auth := middleware.Auth(cfg.JWTSecret)
	r.GET("/ws", auth, h.Viewer.WebSocket)

	gm := []gin.HandlerFunc{middleware.RequireRole(middleware.RoleGM)}
	if h.Limiter != nil {
		gm = append(gm, middleware.RateLimit(h.Limiter))
	}

	api := r.Group("/api/v1", auth)
	{
		scenes := api.Group("/scenes/:sceneId")
		{
			scenes.GET("/routes", h.Routes.ListRoutes)
			scenes.GET("/routes/:id", h.Routes.GetRoute)
			scenes.GET("/routes/:id/travel", h.Routes.Travel)
			scenes.GET("/export", h.Routes.Export)
			scenes.GET("/frame.png", h.Viewer.Frame)
			scenes.GET("/sessions", h.Viewer.Sessions)
			scenes.GET("/tokens", h.Scenes.ListTokens)
			scenes.GET("/tiles", h.Scenes.ListTiles)

			write := scenes.Group("", gm...)
			write.POST("/routes", h.Routes.CreateRoute)
			write.PUT("/routes/:id", h.Routes.UpdateRoute)
			write.DELETE("/routes/:id", h.Routes.DeleteRoute)
			write.POST("/routes/:id/play", h.Routes.PlayRoute)
			write.POST("/routes/:id/preview", h.Routes.PreviewRoute)
			write.POST("/routes/:id/clear", h.Routes.ClearRoute)
			write.POST("/routes/:id/bake", h.Routes.BakeRoute)
			write.POST("/draw", h.Routes.Draw)
			write.POST("/clear", h.Routes.ClearAll)
			write.POST("/import", h.Routes.Import)
			write.PUT("/tokens/:id", h.Scenes.SaveToken)
			write.DELETE("/tokens/:id", h.Scenes.DeleteToken)
		}

		cfgGroup := api.Group("/config")
		{
			cfgGroup.GET("/:key", h.Config.GetConfig)
			cfgGroup.PUT("/:key", append(gm, h.Config.SetConfig)...)
			cfgGroup.DELETE("/:key", append(gm, h.Config.ResetConfig)...)
		}
	}

	return r
}
