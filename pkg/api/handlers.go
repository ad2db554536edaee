package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/gin-gonic/gin"
)

// DefaultEventLimit is the number of journal entries returned by default
const DefaultEventLimit = 100

// operation decodes its request from the body and calls the controller
type operation func(c *gin.Context, op string) (any, error)

func (s *Server) operations() map[string]operation {
	return map[string]operation{
		control.OpListServers: func(c *gin.Context, op string) (any, error) {
			var req control.ListServersRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.ListServers(c.Request.Context(), &req)
		},
		control.OpServerStatus: func(c *gin.Context, op string) (any, error) {
			var req control.ServerRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.ServerStatus(c.Request.Context(), &req)
		},
		control.OpStartServer: func(c *gin.Context, op string) (any, error) {
			var req control.ServerRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.StartServer(c.Request.Context(), &req)
		},
		control.OpStopServer: func(c *gin.Context, op string) (any, error) {
			var req control.ServerRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.StopServer(c.Request.Context(), &req)
		},
		control.OpRestartServer: func(c *gin.Context, op string) (any, error) {
			var req control.ServerRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.RestartServer(c.Request.Context(), &req)
		},
		control.OpHealthCheck: func(c *gin.Context, op string) (any, error) {
			var req control.HealthCheckRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.HealthCheck(c.Request.Context(), &req)
		},
		control.OpRouteRequest: func(c *gin.Context, op string) (any, error) {
			var req control.RouteRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.RouteRequest(c.Request.Context(), &req)
		},
		control.OpGetCapabilities: func(c *gin.Context, op string) (any, error) {
			var req control.CapabilitiesRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.GetCapabilities(c.Request.Context(), &req)
		},
		control.OpSystemOverview: func(c *gin.Context, op string) (any, error) {
			return s.ctl.SystemOverview(c.Request.Context())
		},
		control.OpConfigureServer: func(c *gin.Context, op string) (any, error) {
			var req control.ConfigureRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.ConfigureServer(c.Request.Context(), &req)
		},
		control.OpResetServer: func(c *gin.Context, op string) (any, error) {
			var req control.ServerRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.ResetServer(c.Request.Context(), &req)
		},
		control.OpServerLogs: func(c *gin.Context, op string) (any, error) {
			var req control.LogsRequest
			if err := bind(c, op, &req); err != nil {
				return nil, err
			}
			return s.ctl.ServerLogs(c.Request.Context(), &req)
		},
	}
}

// bind decodes a JSON body into req. An empty body leaves req zeroed.
func bind(c *gin.Context, op string, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return types.NewError(types.KindConfig, op, "", "invalid request body: %v", err)
	}
	return nil
}

// dispatch handles POST /v1/:operation
func (s *Server) dispatch(c *gin.Context) {
	op := c.Param("operation")

	call, ok := s.ops[op]
	if !ok {
		c.JSON(http.StatusNotFound, control.NewErrorResponse(
			types.NewError(types.KindConfig, "", "", "unknown operation: %s", op)))
		return
	}

	resp, err := call(c, op)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// fail writes the tagged failure payload with a status derived from its kind
func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(StatusFor(err), control.NewErrorResponse(err))
}

// StatusFor maps an error kind onto an HTTP status code
func StatusFor(err error) int {
	switch types.KindOf(err) {
	case types.KindConfig:
		if types.IsUnknownWorker(err) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case types.KindStateConflict:
		return http.StatusConflict
	case types.KindSpawnFailure:
		return http.StatusBadGateway
	case types.KindNoEligibleWorker:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// listServers handles GET /v1/servers
func (s *Server) listServers(c *gin.Context) {
	req := control.ListServersRequest{IncludeOffline: c.Query("includeOffline") == "true"}
	resp, err := s.ctl.ListServers(c.Request.Context(), &req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// serverStatus handles GET /v1/servers/:name
func (s *Server) serverStatus(c *gin.Context) {
	resp, err := s.ctl.ServerStatus(c.Request.Context(), &control.ServerRequest{ServerName: c.Param("name")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// serverLogs handles GET /v1/servers/:name/logs
func (s *Server) serverLogs(c *gin.Context) {
	lines, err := queryInt(c, "lines", 0)
	if err != nil {
		s.fail(c, types.WrapError(types.KindConfig, control.OpServerLogs, c.Param("name"), err))
		return
	}

	resp, err := s.ctl.ServerLogs(c.Request.Context(), &control.LogsRequest{
		ServerName: c.Param("name"),
		Lines:      lines,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getCapabilities handles GET /v1/capabilities
func (s *Server) getCapabilities(c *gin.Context) {
	resp, err := s.ctl.GetCapabilities(c.Request.Context(), &control.CapabilitiesRequest{Category: c.Query("category")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// systemOverview handles GET /v1/overview
func (s *Server) systemOverview(c *gin.Context) {
	resp, err := s.ctl.SystemOverview(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// listEvents handles GET /v1/events
func (s *Server) listEvents(c *gin.Context) {
	if s.cfg.Journal == nil {
		s.fail(c, types.NewError(types.KindConfig, "listEvents", "", "event journal is disabled (no data_dir configured)"))
		return
	}

	limit, err := queryInt(c, "limit", DefaultEventLimit)
	if err != nil || limit < 0 {
		s.fail(c, types.NewError(types.KindConfig, "listEvents", "", "limit must be a non-negative integer"))
		return
	}

	evs, err := s.cfg.Journal.ListEvents(limit)
	if err != nil {
		s.fail(c, types.WrapError(types.KindInternal, "listEvents", "", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(evs),
		"events": evs,
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
