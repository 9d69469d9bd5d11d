package handler

import (
	"bytes"
	"image/png"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/routecast/internal/broadcast"
	"github.com/jengzang/routecast/internal/middleware"
	"github.com/jengzang/routecast/internal/render"
	"github.com/jengzang/routecast/pkg/response"
)

// ViewerHandler serves the broadcast channel and the server's own viewer
type ViewerHandler struct {
	hub     *broadcast.Hub
	viewers *render.Pool
}

// NewViewerHandler creates a new viewer handler
func NewViewerHandler(hub *broadcast.Hub, viewers *render.Pool) *ViewerHandler {
	return &ViewerHandler{hub: hub, viewers: viewers}
}

// WebSocket handles GET /ws. Only the gm may send on the channel.
func (h *ViewerHandler) WebSocket(c *gin.Context) {
	canSend := middleware.Role(c) == middleware.RoleGM
	if err := h.hub.Serve(c.Writer, c.Request, canSend); err != nil {
		log.Printf("[Broadcast] websocket from %s: %v", c.ClientIP(), err)
	}
}

// Frame handles GET /api/v1/scenes/:sceneId/frame.png
func (h *ViewerHandler) Frame(c *gin.Context) {
	v, err := h.viewers.Get(c.Param("sceneId"))
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, v.Snapshot()); err != nil {
		fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// Sessions handles GET /api/v1/scenes/:sceneId/sessions
func (h *ViewerHandler) Sessions(c *gin.Context) {
	v, err := h.viewers.Get(c.Param("sceneId"))
	if err != nil {
		fail(c, err)
		return
	}
	sessions := v.Sessions()
	response.Success(c, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
		"clients":  h.hub.Clients(),
	})
}
