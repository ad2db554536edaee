package api

import (
	"net/http"
	"time"

	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// readOnlyOperations never change worker state or definitions
var readOnlyOperations = map[string]bool{
	control.OpListServers:     true,
	control.OpServerStatus:    true,
	control.OpHealthCheck:     true,
	control.OpRouteRequest:    true,
	control.OpGetCapabilities: true,
	control.OpSystemOverview:  true,
	control.OpServerLogs:      true,
}

// isReadOnlyOperation reports whether op may be served in read-only mode
func isReadOnlyOperation(op string) bool {
	return readOnlyOperations[op]
}

// readOnlyGuard rejects state-changing operations when the server is read-only
func (s *Server) readOnlyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := c.Param("operation")
		if s.cfg.ReadOnly && !isReadOnlyOperation(op) {
			if _, known := s.ops[op]; known {
				c.AbortWithStatusJSON(http.StatusForbidden, control.NewErrorResponse(
					types.NewError(types.KindConfig, op, "", "write operations are not allowed on a read-only API")))
				return
			}
		}
		c.Next()
	}
}

// requestLogger logs each request through zerolog
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("Request handled")
	}
}
