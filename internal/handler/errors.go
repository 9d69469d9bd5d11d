package handler

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/routecast/internal/service"
	"github.com/jengzang/routecast/internal/travel"
	"github.com/jengzang/routecast/pkg/response"
)

// fail maps a service error onto the response envelope
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRouteNotFound),
		errors.Is(err, service.ErrUnknownConfigKey):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrTooFewPoints),
		errors.Is(err, service.ErrInvalidImport),
		errors.Is(err, service.ErrInvalidConfig),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, travel.ErrUnknownMode),
		errors.Is(err, travel.ErrInvalidScale),
		errors.Is(err, travel.ErrNoSpeed):
		response.BadRequest(c, err.Error())
	default:
		log.Printf("[Handler] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.Error(err)
		response.InternalError(c, err.Error())
	}
}
