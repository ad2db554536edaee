package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/log"
	"github.com/cuemby/foreman/pkg/metrics"
	"github.com/cuemby/foreman/pkg/monitor"
	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/router"
	"github.com/cuemby/foreman/pkg/supervisor"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultLogLines is returned by ServerLogs when no count is given
const DefaultLogLines = 100

// Config holds the components the controller delegates to
type Config struct {
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor
	Monitor    *monitor.Monitor
	Router     *router.Router
	Broker     *events.Broker // optional, for drop accounting
	Version    string
}

// Controller is the request/response facade over the fleet. Every
// operation validates its parameters, delegates to the owning component
// and returns either a response or a *types.Error. Panics are recovered
// and reported as InternalError.
type Controller struct {
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	monitor    *monitor.Monitor
	router     *router.Router
	broker     *events.Broker
	version    string
	instanceID string
	startedAt  time.Time
	logger     zerolog.Logger
}

// NewController creates a controller
func NewController(cfg Config) (*Controller, error) {
	if cfg.Registry == nil || cfg.Supervisor == nil || cfg.Monitor == nil || cfg.Router == nil {
		return nil, fmt.Errorf("registry, supervisor, monitor and router are required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Controller{
		registry:   cfg.Registry,
		supervisor: cfg.Supervisor,
		monitor:    cfg.Monitor,
		router:     cfg.Router,
		broker:     cfg.Broker,
		version:    cfg.Version,
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
		logger:     log.WithComponent("control"),
	}, nil
}

// NewErrorResponse converts any error into the tagged failure payload
func NewErrorResponse(err error) *ErrorResponse {
	e := normalize("", err)
	return &ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Kind:    e.Kind,
			Message: e.Error(),
		},
	}
}

// guard runs fn, recovering panics and tagging every failure
func (c *Controller) guard(op string, fn func() error) (err error) {
	timer := metrics.NewTimer()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("operation", op).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic in control operation")
			err = types.NewError(types.KindInternal, op, "", "internal error: %v", r)
		}

		status := "ok"
		if err != nil {
			e := normalize(op, err)
			err = e
			status = string(e.Kind)
			c.logger.Debug().Err(e).Str("operation", op).Str("kind", status).Msg("Operation failed")
		}
		metrics.APIRequestsTotal.WithLabelValues(op, status).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, op)
	}()

	return fn()
}

func normalize(op string, err error) *types.Error {
	var e *types.Error
	if errors.As(err, &e) {
		return e
	}
	return types.WrapError(types.KindInternal, op, "", err)
}

func requireName(op, name string) error {
	if name == "" {
		return types.NewError(types.KindConfig, op, "", "serverName is required")
	}
	return nil
}

// ListServers lists workers. Without IncludeOffline only workers with a
// live or starting process are listed; the summary always covers the fleet.
func (c *Controller) ListServers(ctx context.Context, req *ListServersRequest) (*ListServersResponse, error) {
	var resp *ListServersResponse
	err := c.guard(OpListServers, func() error {
		if req == nil {
			req = &ListServersRequest{}
		}

		resp = &ListServersResponse{Servers: []ServerSummary{}}
		for _, def := range c.registry.List() {
			h, err := c.supervisor.Handle(def.Name)
			if err != nil {
				return err
			}

			resp.Summary.Total++
			if h.Status == types.WorkerStatusRunning {
				resp.Summary.Running++
			}
			if h.Routable() {
				resp.Summary.Healthy++
			}

			online := h.Status == types.WorkerStatusRunning || h.Status == types.WorkerStatusStarting
			if !online && !req.IncludeOffline {
				continue
			}
			resp.Servers = append(resp.Servers, summarize(def, h))
		}
		return nil
	})
	return resp, err
}

func summarize(def *types.WorkerDefinition, h types.WorkerHandle) ServerSummary {
	s := ServerSummary{
		Name:         def.Name,
		Description:  def.Description,
		Status:       h.Status,
		HealthStatus: h.HealthStatus,
		Capabilities: append([]string{}, def.Capabilities...),
		Priority:     def.Priority,
		RestartCount: h.RestartCount,
		ToolCount:    len(h.Tools),
	}
	if !h.LastHealthCheck.IsZero() {
		t := h.LastHealthCheck
		s.LastHealthCheck = &t
	}
	return s
}

// ServerStatus returns the full handle and definition of one worker
func (c *Controller) ServerStatus(ctx context.Context, req *ServerRequest) (*ServerStatusResponse, error) {
	var resp *ServerStatusResponse
	err := c.guard(OpServerStatus, func() error {
		if req == nil || req.ServerName == "" {
			return requireName(OpServerStatus, "")
		}

		h, err := c.supervisor.Handle(req.ServerName)
		if err != nil {
			return err
		}
		def, err := c.registry.Get(req.ServerName)
		if err != nil {
			return err
		}

		resp = &ServerStatusResponse{WorkerHandle: h, Definition: def}
		if h.Status == types.WorkerStatusRunning && !h.StartedAt.IsZero() {
			resp.Uptime = time.Since(h.StartedAt).Round(time.Second).String()
		}
		return nil
	})
	return resp, err
}

// StartServer starts one worker
func (c *Controller) StartServer(ctx context.Context, req *ServerRequest) (*ActionResponse, error) {
	var resp *ActionResponse
	err := c.guard(OpStartServer, func() error {
		if req == nil || req.ServerName == "" {
			return requireName(OpStartServer, "")
		}
		if err := c.supervisor.Start(ctx, req.ServerName); err != nil {
			return err
		}
		resp = &ActionResponse{Success: true, Message: fmt.Sprintf("Server %s started", req.ServerName)}
		return nil
	})
	return resp, err
}

// StopServer stops one worker. It returns once the worker is signalled.
func (c *Controller) StopServer(ctx context.Context, req *ServerRequest) (*ActionResponse, error) {
	var resp *ActionResponse
	err := c.guard(OpStopServer, func() error {
		if req == nil || req.ServerName == "" {
			return requireName(OpStopServer, "")
		}
		if err := c.supervisor.Stop(req.ServerName); err != nil {
			return err
		}
		resp = &ActionResponse{Success: true, Message: fmt.Sprintf("Server %s stopped", req.ServerName)}
		return nil
	})
	return resp, err
}

// RestartServer restarts one worker whatever its current status
func (c *Controller) RestartServer(ctx context.Context, req *ServerRequest) (*ActionResponse, error) {
	var resp *ActionResponse
	err := c.guard(OpRestartServer, func() error {
		if req == nil || req.ServerName == "" {
			return requireName(OpRestartServer, "")
		}
		if err := c.supervisor.Restart(ctx, req.ServerName); err != nil {
			return err
		}
		h, err := c.supervisor.Handle(req.ServerName)
		if err != nil {
			return err
		}
		resp = &ActionResponse{
			Success: true,
			Message: fmt.Sprintf("Server %s restarted (restart count: %d)", req.ServerName, h.RestartCount),
		}
		return nil
	})
	return resp, err
}

// HealthCheck evaluates one worker, or the whole fleet
func (c *Controller) HealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error) {
	var resp *HealthCheckResponse
	err := c.guard(OpHealthCheck, func() error {
		var results []types.HealthCheckResult
		if req != nil && req.ServerName != "" {
			res, err := c.monitor.CheckOne(ctx, req.ServerName)
			if err != nil {
				return err
			}
			results = []types.HealthCheckResult{res}
		} else {
			results = c.monitor.CheckAll(ctx)
		}

		resp = &HealthCheckResponse{
			Summary:       summarizeHealth(results),
			HealthResults: results,
		}
		return nil
	})
	return resp, err
}

func summarizeHealth(results []types.HealthCheckResult) HealthSummary {
	s := HealthSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case types.HealthHealthy:
			s.Healthy++
		case types.HealthWarning:
			s.Warnings++
		default:
			s.Errors++
		}
	}
	return s
}

// RouteRequest names the worker that should serve a capability
func (c *Controller) RouteRequest(ctx context.Context, req *RouteRequest) (*RouteResponse, error) {
	var resp *RouteResponse
	err := c.guard(OpRouteRequest, func() error {
		if req == nil || req.Capability == "" {
			return types.NewError(types.KindConfig, OpRouteRequest, "", "capability is required")
		}

		var preferred string
		if p := req.Preferences; p != nil {
			if p.Timeout < 0 || p.Retries < 0 {
				return types.NewError(types.KindConfig, OpRouteRequest, "", "timeout and retries must not be negative")
			}
			preferred = p.PreferredServer
		}

		d, err := c.router.Route(req.Capability, preferred)
		if err != nil {
			return err
		}
		resp = &RouteResponse{
			RequestID:       uuid.NewString(),
			RoutedTo:        d.Worker,
			Capability:      d.Capability,
			ToolName:        req.ToolName,
			EligibleServers: d.Eligible,
		}
		return nil
	})
	return resp, err
}

// GetCapabilities lists capabilities, optionally for one category
func (c *Controller) GetCapabilities(ctx context.Context, req *CapabilitiesRequest) (*CapabilitiesResponse, error) {
	var resp *CapabilitiesResponse
	err := c.guard(OpGetCapabilities, func() error {
		var category string
		if req != nil {
			category = req.Category
		}

		caps := c.router.Capabilities(category)
		summary := CapabilitiesSummary{Total: len(caps), Categories: make(map[string]int)}
		for _, cp := range caps {
			if cp.Available {
				summary.Available++
			}
			summary.Categories[cp.Category]++
		}
		resp = &CapabilitiesResponse{Capabilities: caps, Summary: summary}
		return nil
	})
	return resp, err
}

// SystemOverview reports coordinator and fleet-wide counters
func (c *Controller) SystemOverview(ctx context.Context) (*SystemOverviewResponse, error) {
	var resp *SystemOverviewResponse
	err := c.guard(OpSystemOverview, func() error {
		resp = &SystemOverviewResponse{
			Coordinator: CoordinatorInfo{
				InstanceID: c.instanceID,
				Version:    c.version,
				PID:        os.Getpid(),
				StartedAt:  c.startedAt,
				Uptime:     time.Since(c.startedAt).Round(time.Second).String(),
			},
		}

		for _, h := range c.supervisor.Handles() {
			resp.Workers.Total++
			switch h.Status {
			case types.WorkerStatusRunning:
				resp.Workers.Running++
			case types.WorkerStatusStarting:
				resp.Workers.Starting++
			case types.WorkerStatusError:
				resp.Workers.Errored++
			default:
				resp.Workers.Stopped++
			}
			if h.HasProcess {
				resp.Workers.Processes++
			}

			resp.Health.Total++
			switch h.HealthStatus {
			case types.HealthHealthy:
				resp.Health.Healthy++
			case types.HealthWarning:
				resp.Health.Warnings++
			default:
				resp.Health.Errors++
			}
			resp.TotalRestarts += h.RestartCount
		}

		for _, cp := range c.router.Capabilities("") {
			resp.Capabilities++
			if cp.Available {
				resp.Available++
			}
		}
		if c.broker != nil {
			resp.EventsDropped = c.broker.Dropped()
		}
		return nil
	})
	return resp, err
}

// ConfigureServer merges a partial definition into a worker. The running
// process is not touched; routing sees the change at once.
func (c *Controller) ConfigureServer(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error) {
	var resp *ConfigureResponse
	err := c.guard(OpConfigureServer, func() error {
		if req == nil || req.ServerName == "" {
			return requireName(OpConfigureServer, "")
		}
		if req.Config.IsEmpty() {
			return types.NewError(types.KindConfig, OpConfigureServer, req.ServerName, "config is required")
		}

		def, err := c.registry.Configure(req.ServerName, req.Config)
		if err != nil {
			return err
		}
		resp = &ConfigureResponse{
			Success:    true,
			Message:    fmt.Sprintf("Server %s configuration updated", req.ServerName),
			Definition: def,
		}
		return nil
	})
	return resp, err
}

// ResetServer discards every configureServer change to a worker, including
// the persisted override, and returns the definition it was registered with.
// The running process is not touched.
func (c *Controller) ResetServer(ctx context.Context, req *ServerRequest) (*ConfigureResponse, error) {
	var resp *ConfigureResponse
	err := c.guard(OpResetServer, func() error {
		if req == nil || req.ServerName == "" {
			return requireName(OpResetServer, "")
		}

		def, err := c.registry.Reset(req.ServerName)
		if err != nil {
			return err
		}
		resp = &ConfigureResponse{
			Success:    true,
			Message:    fmt.Sprintf("Server %s configuration reset", req.ServerName),
			Definition: def,
		}
		return nil
	})
	return resp, err
}

// ServerLogs returns captured output of one worker
func (c *Controller) ServerLogs(ctx context.Context, req *LogsRequest) (*LogsResponse, error) {
	var resp *LogsResponse
	err := c.guard(OpServerLogs, func() error {
		if req == nil || req.ServerName == "" {
			return requireName(OpServerLogs, "")
		}
		if req.Lines < 0 {
			return types.NewError(types.KindConfig, OpServerLogs, req.ServerName, "lines must not be negative")
		}
		n := req.Lines
		if n == 0 {
			n = DefaultLogLines
		}

		lines, err := c.supervisor.Logs(req.ServerName, n)
		if err != nil {
			return err
		}
		resp = &LogsResponse{ServerName: req.ServerName, Lines: lines}
		return nil
	})
	return resp, err
}
