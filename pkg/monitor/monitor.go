package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/health"
	"github.com/cuemby/foreman/pkg/log"
	"github.com/cuemby/foreman/pkg/metrics"
	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/supervisor"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultInterval is the shared health tick
const DefaultInterval = 30 * time.Second

// Config holds monitor configuration
type Config struct {
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor

	// Broker receives health_changed events and, when it is an
	// *events.Broker, feeds lifecycle events back into the monitor.
	Broker events.Publisher

	Interval time.Duration
}

// Monitor re-evaluates worker health on a single shared tick and on demand
type Monitor struct {
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	broker     events.Publisher
	interval   time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	probes map[string]*probeState

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// probeState is the active probe bookkeeping for one process generation
type probeState struct {
	generation uint64
	checker    health.Checker
	status     *health.Status
}

// NewMonitor creates a health monitor
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Registry == nil || cfg.Supervisor == nil {
		return nil, fmt.Errorf("registry and supervisor are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &Monitor{
		registry:   cfg.Registry,
		supervisor: cfg.Supervisor,
		broker:     cfg.Broker,
		interval:   cfg.Interval,
		logger:     log.WithComponent("monitor"),
		probes:     make(map[string]*probeState),
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins the periodic health loop
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()

	if b, ok := m.broker.(*events.Broker); ok {
		sub := b.Subscribe()
		m.wg.Add(1)
		go m.watch(b, sub)
	}

	m.logger.Info().Dur("interval", m.interval).Msg("Health monitor started")
}

// Stop stops the health loop and waits for it to exit
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			m.CheckAll(ctx)
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

// watch reacts to process exits as soon as the supervisor reports them
// instead of waiting for the next tick.
func (m *Monitor) watch(b *events.Broker, sub events.Subscriber) {
	defer m.wg.Done()
	defer b.Unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch ev.Type {
			case events.EventWorkerExited, events.EventWorkerError, events.EventWorkerStopped:
				m.forget(ev.Worker)
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if _, err := m.CheckOne(ctx, ev.Worker); err != nil {
					m.logger.Debug().Err(err).Str("worker", ev.Worker).Msg("Post-exit health check failed")
				}
				cancel()
			case events.EventWorkerConfigured:
				m.forget(ev.Worker)
			}
		case <-m.stopCh:
			return
		}
	}
}

// CheckOne evaluates and records the health of one worker.
// Unknown names fail with ConfigError.
func (m *Monitor) CheckOne(ctx context.Context, name string) (types.HealthCheckResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HealthCheckDuration)

	view, err := m.supervisor.Inspect(name)
	if err != nil {
		return types.HealthCheckResult{}, err
	}
	def, err := m.registry.Get(name)
	if err != nil {
		return types.HealthCheckResult{}, err
	}

	status, message := m.evaluate(ctx, view, def)

	now := time.Now()
	u, err := m.supervisor.RecordHealth(name, view.Generation, status, now)
	if err != nil {
		return types.HealthCheckResult{}, err
	}
	// The worker moved on while the check ran
	if u.Forced(status) {
		if u.Status != types.WorkerStatusRunning {
			message = fmt.Sprintf("Server is %s", u.Status)
		} else {
			message = "Server process was replaced during the check"
		}
	}

	if u.Changed {
		m.logger.Info().
			Str("worker", name).
			Str("previous", string(u.Previous)).
			Str("current", string(u.Current)).
			Str("message", message).
			Msg("Worker health changed")
		m.publish(name, u.Previous, u.Current, message)
	}

	return types.HealthCheckResult{
		WorkerName: name,
		Status:     u.Current,
		Message:    message,
		Timestamp:  now,
	}, nil
}

func (m *Monitor) evaluate(ctx context.Context, view supervisor.HealthView, def *types.WorkerDefinition) (types.HealthStatus, string) {
	switch {
	case view.Status != types.WorkerStatusRunning:
		return types.HealthError, fmt.Sprintf("Server is %s", view.Status)
	case !view.Alive:
		return types.HealthError, "Server process has exited"
	case def.HealthCheck.Probe != nil:
		return m.probe(ctx, view, def)
	default:
		return types.HealthHealthy, "Server is running"
	}
}

// probe runs the active probe for a running worker. Counters restart
// whenever the process generation changes.
func (m *Monitor) probe(ctx context.Context, view supervisor.HealthView, def *types.WorkerDefinition) (types.HealthStatus, string) {
	m.mu.Lock()
	ps, ok := m.probes[view.Name]
	if !ok || ps.generation != view.Generation {
		checker, err := health.NewChecker(def)
		if err != nil {
			m.mu.Unlock()
			return types.HealthError, fmt.Sprintf("Invalid probe: %v", err)
		}
		ps = &probeState{generation: view.Generation, checker: checker, status: health.NewStatus()}
		m.probes[view.Name] = ps
	}
	m.mu.Unlock()

	probeCtx := ctx
	if def.HealthCheck.Timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, def.HealthCheck.Timeout)
		defer cancel()
	}
	result := ps.checker.Check(probeCtx)

	m.mu.Lock()
	verdict := ps.status.Update(result, def.HealthCheck.Retries)
	failures := ps.status.ConsecutiveFailures
	m.mu.Unlock()

	if result.Healthy {
		return verdict, result.Message
	}
	return verdict, fmt.Sprintf("Probe failed (%d/%d): %s", failures, def.HealthCheck.Retries, result.Message)
}

func (m *Monitor) forget(name string) {
	m.mu.Lock()
	delete(m.probes, name)
	m.mu.Unlock()
}

// CheckAll evaluates every worker concurrently. Results are sorted by
// worker name.
func (m *Monitor) CheckAll(ctx context.Context) []types.HealthCheckResult {
	names := m.supervisor.Names()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]types.HealthCheckResult, 0, len(names))
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res, err := m.CheckOne(ctx, name)
			if err != nil {
				m.logger.Warn().Err(err).Str("worker", name).Msg("Health check failed")
				res = types.HealthCheckResult{
					WorkerName: name,
					Status:     types.HealthError,
					Message:    err.Error(),
					Timestamp:  time.Now(),
				}
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].WorkerName < results[j].WorkerName })
	return results
}

func (m *Monitor) publish(name string, prev, cur types.HealthStatus, message string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:    events.EventHealthChanged,
		Worker:  name,
		Message: message,
		Metadata: map[string]string{
			"previous": string(prev),
			"current":  string(cur),
		},
	})
}
