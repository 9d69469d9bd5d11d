package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger logs every request with its status, latency and caller role
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		role := Role(c)
		if role == "" {
			role = "-"
		}
		log.Printf("[%s] %s %s %s %d %v %s",
			c.Request.Method,
			path,
			c.ClientIP(),
			role,
			c.Writer.Status(),
			time.Since(start),
			c.Errors.String(),
		)
	}
}
