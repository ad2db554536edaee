package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/log"
	"github.com/cuemby/foreman/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DefaultAddr is the loopback address the API binds when none is configured
const DefaultAddr = "127.0.0.1:7070"

// EventJournal is the persisted event history served by GET /v1/events
type EventJournal interface {
	ListEvents(limit int) ([]*events.Event, error)
}

// Config holds the API server configuration
type Config struct {
	Addr       string
	Controller *control.Controller
	Broker     *events.Broker // optional, enables /v1/events/stream
	Journal    EventJournal   // optional, enables /v1/events

	// ReadOnly rejects operations that change worker state
	ReadOnly bool
}

// Server serves the control API over HTTP
type Server struct {
	cfg    Config
	ctl    *control.Controller
	ops    map[string]operation
	engine *gin.Engine
	http   *http.Server
	logger zerolog.Logger

	mu       sync.Mutex
	listener net.Listener

	// closed on Shutdown so long-lived streams let go of their connections
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates a new API server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		ctl:    cfg.Controller,
		engine: gin.New(),
		logger: log.WithComponent("api"),
		done:   make(chan struct{}),
	}
	s.ops = s.operations()
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.SetupRoutes(s.engine)

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.engine,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s, nil
}

// SetupRoutes configures all API routes
func (s *Server) SetupRoutes(router *gin.Engine) {
	// Coordinator endpoints
	router.GET("/health", gin.WrapF(metrics.HealthHandler()))
	router.GET("/ready", gin.WrapF(metrics.ReadyHandler()))
	router.GET("/livez", gin.WrapF(metrics.LivenessHandler()))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/v1")

	// Control operations
	v1.POST("/:operation", s.readOnlyGuard(), s.dispatch)

	// Read-only conveniences
	v1.GET("/servers", s.listServers)
	v1.GET("/servers/:name", s.serverStatus)
	v1.GET("/servers/:name/logs", s.serverLogs)
	v1.GET("/capabilities", s.getCapabilities)
	v1.GET("/overview", s.systemOverview)

	// Events
	v1.GET("/events", s.listEvents)
	v1.GET("/events/stream", s.streamEvents)
}

// Handler returns the HTTP handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Control API listening")
	metrics.RegisterComponent(metrics.ComponentAPI, true, "")

	go func() {
		if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Control API stopped unexpectedly")
			metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	return s.http.Shutdown(ctx)
}
