package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/log"
	"github.com/cuemby/foreman/pkg/metrics"
	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/rs/zerolog"
)

const (
	DefaultRestartDelay    = time.Second
	DefaultStopGracePeriod = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLines        = 500
)

// Config holds supervisor configuration
type Config struct {
	Registry *registry.Registry
	Broker   events.Publisher

	// RestartDelay is the quiescence window between stop and start
	RestartDelay time.Duration

	// StopGracePeriod is how long a stopped process may ignore SIGTERM
	// before it is killed. Stop itself never waits for it.
	StopGracePeriod time.Duration

	// ShutdownTimeout bounds ShutdownAll
	ShutdownTimeout time.Duration

	// LogLines is the per-worker output ring size
	LogLines int
}

// Supervisor owns the OS process lifecycle of every registered worker
type Supervisor struct {
	registry *registry.Registry
	broker   events.Publisher
	logger   zerolog.Logger

	restartDelay    time.Duration
	stopGracePeriod time.Duration
	shutdownTimeout time.Duration
	logLines        int

	mu      sync.RWMutex
	handles map[string]*handle

	stopCh   chan struct{}
	stopOnce sync.Once
}

// handle is the live runtime record for one worker
type handle struct {
	name string

	// opMu serialises lifecycle operations (start, stop, restart) so a
	// restart's stop/delay/start sequence is atomic for this worker.
	opMu sync.Mutex

	// mu guards the fields below; held only for short updates
	mu              sync.Mutex
	status          types.WorkerStatus
	health          types.HealthStatus
	proc            *Process
	generation      uint64
	lastHealthCheck time.Time
	lastError       string
	restartCount    int
	tools           []string

	logs *LogBuffer
}

// NewSupervisor creates a supervisor with one stopped handle per definition
// in the registry. Definitions registered later get a handle as they arrive.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.StopGracePeriod <= 0 {
		cfg.StopGracePeriod = DefaultStopGracePeriod
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = DefaultLogLines
	}

	s := &Supervisor{
		registry:        cfg.Registry,
		broker:          cfg.Broker,
		logger:          log.WithComponent("supervisor"),
		restartDelay:    cfg.RestartDelay,
		stopGracePeriod: cfg.StopGracePeriod,
		shutdownTimeout: cfg.ShutdownTimeout,
		logLines:        cfg.LogLines,
		handles:         make(map[string]*handle),
		stopCh:          make(chan struct{}),
	}

	cfg.Registry.OnRegister(s.addHandle)
	for _, def := range cfg.Registry.List() {
		s.addHandle(def)
	}

	return s, nil
}

// addHandle creates the stopped handle for a new definition.
// Called under the registry lock, so it must not call the registry.
func (s *Supervisor) addHandle(def *types.WorkerDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handles[def.Name]; exists {
		return
	}
	s.handles[def.Name] = &handle{
		name:   def.Name,
		status: types.WorkerStatusStopped,
		health: types.HealthError,
		logs:   NewLogBuffer(s.logLines),
	}
}

func (s *Supervisor) lookup(op, name string) (*handle, error) {
	s.mu.RLock()
	h, ok := s.handles[name]
	s.mu.RUnlock()
	if !ok {
		return nil, types.UnknownWorker(op, name)
	}
	return h, nil
}

func (s *Supervisor) allHandles() []*handle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (s *Supervisor) shuttingDown() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Start spawns the named worker.
// Fails with ConfigError for unknown names, StateConflict if already
// running and SpawnFailure if the OS could not create the process.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	h, err := s.lookup("start", name)
	if err != nil {
		return err
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	return s.start(ctx, h)
}

func (s *Supervisor) start(ctx context.Context, h *handle) error {
	if s.shuttingDown() {
		return types.NewError(types.KindStateConflict, "start", h.name, "supervisor is shutting down")
	}
	if err := ctx.Err(); err != nil {
		return types.WrapError(types.KindInternal, "start", h.name, err)
	}

	def, err := s.registry.Get(h.name)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.status == types.WorkerStatusRunning {
		h.mu.Unlock()
		return types.NewError(types.KindStateConflict, "start", h.name, "server %s is already running", h.name)
	}
	h.status = types.WorkerStatusStarting
	h.lastError = ""
	h.mu.Unlock()

	logger := log.WithWorker("supervisor", h.name)
	s.publish(events.EventWorkerStarting, h.name, "Worker starting", nil)

	proc, err := startProcess(def, h.logs, logger)
	if err != nil {
		h.mu.Lock()
		h.status = types.WorkerStatusError
		h.health = types.HealthError
		h.proc = nil
		h.lastError = err.Error()
		h.mu.Unlock()

		metrics.SpawnFailuresTotal.WithLabelValues(h.name).Inc()
		logger.Error().Err(err).Str("command", def.Command).Msg("Failed to spawn worker")
		s.publish(events.EventWorkerError, h.name, err.Error(), nil)
		return types.WrapError(types.KindSpawnFailure, "start", h.name, err)
	}

	h.mu.Lock()
	h.proc = proc
	h.generation++
	h.status = types.WorkerStatusRunning
	h.health = types.HealthHealthy
	h.lastHealthCheck = time.Now()
	h.tools = append([]string(nil), def.Tools...)
	h.mu.Unlock()

	go s.observe(h, proc)

	logger.Info().Int("pid", proc.PID()).Str("command", def.Command).Msg("Worker started")
	s.publish(events.EventWorkerStarted, h.name, "Worker started", map[string]string{
		"pid": fmt.Sprint(proc.PID()),
	})
	return nil
}

// observe reconciles the handle once proc exits. A process that was already
// replaced or stopped leaves the handle alone.
func (s *Supervisor) observe(h *handle, proc *Process) {
	<-proc.Done()

	runtimeErr := proc.RuntimeError()
	summary := proc.ExitSummary()

	h.mu.Lock()
	if h.proc != proc {
		h.mu.Unlock()
		s.logger.Debug().Str("worker", h.name).Int("pid", proc.PID()).Str("exit", summary).Msg("Stopped process reaped")
		return
	}
	h.proc = nil
	h.health = types.HealthError
	h.tools = nil
	if runtimeErr != nil {
		h.status = types.WorkerStatusError
		h.lastError = runtimeErr.Error()
	} else {
		h.status = types.WorkerStatusStopped
		h.lastError = summary
	}
	h.mu.Unlock()

	metrics.WorkerExitsTotal.WithLabelValues(h.name).Inc()

	if runtimeErr != nil {
		s.logger.Error().Err(runtimeErr).Str("worker", h.name).Int("pid", proc.PID()).Msg("Worker process error")
		s.publish(events.EventWorkerError, h.name, runtimeErr.Error(), nil)
		return
	}
	s.logger.Warn().Str("worker", h.name).Int("pid", proc.PID()).Str("exit", summary).Msg("Worker exited")
	s.publish(events.EventWorkerExited, h.name, summary, nil)
}

// Stop signals the named worker to terminate and marks it stopped at once.
// It does not wait for the process to die; the exit observer reaps it.
func (s *Supervisor) Stop(name string) error {
	h, err := s.lookup("stop", name)
	if err != nil {
		return err
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	_, err = s.stop(h)
	return err
}

func (s *Supervisor) stop(h *handle) (*Process, error) {
	h.mu.Lock()
	if h.status != types.WorkerStatusRunning || h.proc == nil {
		status := h.status
		h.mu.Unlock()
		return nil, types.NewError(types.KindStateConflict, "stop", h.name, "server %s is not running (status: %s)", h.name, status)
	}
	proc := h.proc
	h.proc = nil
	h.status = types.WorkerStatusStopped
	h.health = types.HealthError
	h.tools = nil
	h.mu.Unlock()

	if err := proc.Terminate(); err != nil {
		s.logger.Warn().Err(err).Str("worker", h.name).Int("pid", proc.PID()).Msg("Failed to signal worker")
	}
	go s.escalate(h.name, proc)

	s.logger.Info().Str("worker", h.name).Int("pid", proc.PID()).Msg("Worker stopped")
	s.publish(events.EventWorkerStopped, h.name, "Worker stopped", nil)
	return proc, nil
}

// escalate kills a process that outlives the stop grace period
func (s *Supervisor) escalate(name string, proc *Process) {
	timer := time.NewTimer(s.stopGracePeriod)
	defer timer.Stop()

	select {
	case <-proc.Done():
	case <-timer.C:
		s.logger.Warn().Str("worker", name).Int("pid", proc.PID()).Msg("Worker ignored SIGTERM, killing")
		if err := proc.Kill(); err != nil {
			s.logger.Error().Err(err).Str("worker", name).Msg("Failed to kill worker")
		}
	}
}

// Restart stops the worker if it is running, waits for the quiescence
// window and starts it again. RestartCount is incremented exactly once per
// call whatever the prior status. The wait is cancelled by ctx or by
// coordinator shutdown.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	h, err := s.lookup("restart", name)
	if err != nil {
		return err
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	h.restartCount++
	count := h.restartCount
	wasRunning := h.status == types.WorkerStatusRunning
	h.mu.Unlock()

	metrics.WorkerRestartsTotal.WithLabelValues(h.name).Inc()
	s.logger.Info().Str("worker", name).Int("restart_count", count).Bool("was_running", wasRunning).Msg("Restarting worker")

	if wasRunning {
		if _, err := s.stop(h); err != nil && !errors.Is(err, types.ErrStateConflict) {
			return err
		}
	}

	timer := time.NewTimer(s.restartDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return types.WrapError(types.KindInternal, "restart", name, ctx.Err())
	case <-s.stopCh:
		return types.NewError(types.KindStateConflict, "restart", name, "supervisor is shutting down")
	}

	if err := s.start(ctx, h); err != nil {
		return err
	}

	s.publish(events.EventWorkerRestarted, name, "Worker restarted", map[string]string{
		"restart_count": fmt.Sprint(count),
	})
	return nil
}

// BeginShutdown refuses further starts and cancels any restart waiting out
// its quiescence delay. ShutdownAll calls it; the coordinator calls it
// earlier so in-flight API requests can drain. Safe to call more than once.
func (s *Supervisor) BeginShutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ShutdownAll stops every running worker concurrently. Individual failures
// are collected and logged, never propagated. Processes that do not exit
// within the shutdown timeout are killed and abandoned.
func (s *Supervisor) ShutdownAll(ctx context.Context) map[string]error {
	s.BeginShutdown()

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		failMu   sync.Mutex
		failures = make(map[string]error)
	)

	for _, h := range s.allHandles() {
		wg.Add(1)
		go func(h *handle) {
			defer wg.Done()

			h.opMu.Lock()
			h.mu.Lock()
			running := h.status == types.WorkerStatusRunning
			h.mu.Unlock()
			if !running {
				h.opMu.Unlock()
				return
			}
			proc, err := s.stop(h)
			h.opMu.Unlock()
			if err != nil {
				failMu.Lock()
				failures[h.name] = err
				failMu.Unlock()
				return
			}

			select {
			case <-proc.Done():
			case <-ctx.Done():
				if err := proc.Kill(); err != nil {
					failMu.Lock()
					failures[h.name] = err
					failMu.Unlock()
				}
			}
		}(h)
	}
	wg.Wait()

	for name, err := range failures {
		s.logger.Warn().Err(err).Str("worker", name).Msg("Worker did not shut down cleanly")
	}
	s.logger.Info().Int("failures", len(failures)).Msg("All workers shut down")
	return failures
}

// Handle returns a snapshot of the named worker's runtime record
func (s *Supervisor) Handle(name string) (types.WorkerHandle, error) {
	h, err := s.lookup("status", name)
	if err != nil {
		return types.WorkerHandle{}, err
	}
	return h.snapshot(), nil
}

// Handles returns snapshots of every worker sorted by name
func (s *Supervisor) Handles() []types.WorkerHandle {
	hs := s.allHandles()
	out := make([]types.WorkerHandle, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.snapshot())
	}
	return out
}

// Logs returns the last n captured output lines of the named worker
func (s *Supervisor) Logs(name string, n int) ([]LogLine, error) {
	h, err := s.lookup("logs", name)
	if err != nil {
		return nil, err
	}
	return h.logs.Tail(n), nil
}

func (h *handle) snapshot() types.WorkerHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := types.WorkerHandle{
		Name:            h.name,
		Status:          h.status,
		HealthStatus:    h.health,
		HasProcess:      h.proc != nil,
		LastHealthCheck: h.lastHealthCheck,
		LastError:       h.lastError,
		RestartCount:    h.restartCount,
		Tools:           append([]string{}, h.tools...),
	}
	if h.proc != nil {
		snap.PID = h.proc.PID()
		snap.StartedAt = h.proc.StartedAt()
	}
	return snap
}

func (s *Supervisor) publish(t events.EventType, worker, msg string, meta map[string]string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{Type: t, Worker: worker, Message: msg, Metadata: meta})
}
