package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/foreman/pkg/api"
	"github.com/cuemby/foreman/pkg/config"
	"github.com/cuemby/foreman/pkg/control"
	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/log"
	"github.com/cuemby/foreman/pkg/metrics"
	"github.com/cuemby/foreman/pkg/monitor"
	"github.com/cuemby/foreman/pkg/registry"
	"github.com/cuemby/foreman/pkg/router"
	"github.com/cuemby/foreman/pkg/storage"
	"github.com/cuemby/foreman/pkg/supervisor"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// LockFile guards a data directory against a second coordinator
const LockFile = "foreman.lock"

// Coordinator owns one instance of every component and their lifecycle
type Coordinator struct {
	cfg     config.Coordinator
	version string

	broker     *events.Broker
	lock       *flock.Flock
	store      storage.Store
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	monitor    *monitor.Monitor
	router     *router.Router
	controller *control.Controller
	collector  *metrics.Collector
	api        *api.Server

	journalSub  events.Subscriber
	journalDone chan struct{}

	logger       zerolog.Logger
	shutdownOnce sync.Once
}

// New builds a coordinator from a validated fleet config. When a data
// directory is configured it is locked and opened, and persisted
// definition overrides replace the matching file definitions.
func New(cfg *config.Config, version string) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	c := &Coordinator{
		cfg:     cfg.Coordinator,
		version: version,
		broker:  events.NewBroker(),
		logger:  log.WithComponent("coordinator"),
	}

	if c.cfg.DataDir != "" {
		if err := c.openStore(); err != nil {
			return nil, err
		}
	}

	regCfg := registry.Config{Broker: c.broker}
	if c.store != nil {
		regCfg.Store = c.store
	}
	c.registry = registry.NewRegistry(regCfg)

	var err error
	c.supervisor, err = supervisor.NewSupervisor(supervisor.Config{
		Registry:        c.registry,
		Broker:          c.broker,
		RestartDelay:    c.cfg.RestartDelay,
		StopGracePeriod: c.cfg.StopGracePeriod,
		ShutdownTimeout: c.cfg.ShutdownTimeout,
		LogLines:        c.cfg.LogLines,
	})
	if err != nil {
		c.closeStore()
		return nil, err
	}

	if err := c.registerWorkers(cfg.Workers); err != nil {
		c.closeStore()
		return nil, err
	}

	c.monitor, err = monitor.NewMonitor(monitor.Config{
		Registry:   c.registry,
		Supervisor: c.supervisor,
		Broker:     c.broker,
		Interval:   c.cfg.HealthInterval,
	})
	if err != nil {
		c.closeStore()
		return nil, err
	}

	c.router, err = router.NewRouter(c.registry, c.supervisor)
	if err != nil {
		c.closeStore()
		return nil, err
	}

	c.controller, err = control.NewController(control.Config{
		Registry:   c.registry,
		Supervisor: c.supervisor,
		Monitor:    c.monitor,
		Router:     c.router,
		Broker:     c.broker,
		Version:    version,
	})
	if err != nil {
		c.closeStore()
		return nil, err
	}

	apiCfg := api.Config{
		Addr:       c.cfg.APIAddr,
		Controller: c.controller,
		Broker:     c.broker,
		ReadOnly:   c.cfg.APIReadOnly,
	}
	if c.store != nil {
		apiCfg.Journal = c.store
	}
	c.api, err = api.NewServer(apiCfg)
	if err != nil {
		c.closeStore()
		return nil, err
	}

	c.collector = metrics.NewCollector(metrics.CollectorConfig{
		Workers:               c.supervisor,
		AvailableCapabilities: c.availableCapabilities,
		DroppedEvents:         c.broker.Dropped,
	})

	return c, nil
}

// openStore takes the data directory lock, then opens the bolt store
func (c *Coordinator) openStore() error {
	if err := os.MkdirAll(c.cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	c.lock = flock.New(filepath.Join(c.cfg.DataDir, LockFile))
	locked, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock data dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("data dir %s is in use by another coordinator", c.cfg.DataDir)
	}

	store, err := storage.NewBoltStore(c.cfg.DataDir, c.cfg.MaxEvents)
	if err != nil {
		_ = c.lock.Unlock()
		return err
	}
	c.store = store
	return nil
}

func (c *Coordinator) closeStore() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to release data dir lock")
		}
	}
}

// registerWorkers registers file definitions as each worker's baseline,
// then restores any override persisted by an earlier configureServer
func (c *Coordinator) registerWorkers(defs []*types.WorkerDefinition) error {
	inFile := make(map[string]bool, len(defs))
	for _, def := range defs {
		if err := c.registry.Register(def); err != nil {
			return err
		}
		inFile[def.Name] = true
		if c.store == nil {
			continue
		}

		stored, err := c.store.GetDefinition(def.Name)
		switch {
		case err == nil:
			if err := c.registry.Restore(stored); err != nil {
				c.logger.Warn().Err(err).Str("worker", def.Name).Msg("Ignoring invalid persisted configuration")
				continue
			}
			c.logger.Info().Str("worker", def.Name).Msg("Using persisted configuration; run 'foreman server reset' to return to the fleet file")
		case !errors.Is(err, storage.ErrNotFound):
			c.logger.Warn().Err(err).Str("worker", def.Name).Msg("Failed to load persisted configuration")
		}
	}

	if c.store != nil {
		c.reportStaleOverrides(inFile)
	}
	return nil
}

// reportStaleOverrides logs persisted overrides whose worker is no longer
// in the fleet file. They are kept in case the worker comes back.
func (c *Coordinator) reportStaleOverrides(inFile map[string]bool) {
	stored, err := c.store.ListDefinitions()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to list persisted configuration")
		return
	}
	for _, def := range stored {
		if !inFile[def.Name] {
			c.logger.Warn().Str("worker", def.Name).Msg("Persisted configuration has no worker in the fleet file")
		}
	}
}

func (c *Coordinator) availableCapabilities() int {
	n := 0
	for _, cp := range c.router.Capabilities("") {
		if cp.Available {
			n++
		}
	}
	return n
}

// Start brings up the broker, journal, monitor, metrics and API, then
// starts every worker if autostart is set. Autostart failures are logged;
// the worker stays in error for an operator to inspect.
func (c *Coordinator) Start(ctx context.Context) error {
	metrics.SetVersion(c.version)
	critical := []string{metrics.ComponentSupervisor, metrics.ComponentAPI}
	if c.store != nil {
		critical = append(critical, metrics.ComponentStore)
	}
	metrics.SetCriticalComponents(critical...)

	// Subscribe before the broker runs so registration events are journaled
	if c.store != nil {
		c.startJournal()
		metrics.RegisterComponent(metrics.ComponentStore, true, "")
	}
	c.broker.Start()

	if err := c.api.Start(); err != nil {
		c.broker.Stop()
		c.stopJournal()
		c.closeStore()
		return err
	}

	c.monitor.Start()
	c.collector.Start()
	metrics.RegisterComponent(metrics.ComponentSupervisor, true, "")
	metrics.RegisterComponent(metrics.ComponentMonitor, true, "")

	c.logger.Info().
		Str("version", c.version).
		Str("api", c.api.Addr()).
		Int("workers", c.registry.Len()).
		Msg("Coordinator started")
	c.broker.Publish(&events.Event{Type: events.EventCoordinatorUp, Message: "Coordinator started"})

	if c.cfg.Autostart {
		c.autostart(ctx)
	}
	return nil
}

func (c *Coordinator) autostart(ctx context.Context) {
	for _, name := range c.supervisor.Names() {
		if err := c.supervisor.Start(ctx, name); err != nil {
			c.logger.Warn().Err(err).Str("worker", name).Msg("Autostart failed")
		}
	}
}

// startJournal appends every broker event to the store
func (c *Coordinator) startJournal() {
	c.journalSub = c.broker.Subscribe()
	c.journalDone = make(chan struct{})

	go func() {
		defer close(c.journalDone)
		for ev := range c.journalSub {
			if err := c.store.AppendEvent(ev); err != nil {
				c.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to journal event")
			}
		}
	}()
}

func (c *Coordinator) stopJournal() {
	if c.journalSub == nil {
		return
	}
	c.broker.Unsubscribe(c.journalSub)
	<-c.journalDone
}

// Shutdown first cancels pending restarts, then stops the API so no new
// operations arrive, then the monitor, then every worker, and finally the
// broker and store. Safe to call more than once.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	var err error
	c.shutdownOnce.Do(func() {
		c.logger.Info().Msg("Coordinator shutting down")
		c.broker.Publish(&events.Event{Type: events.EventCoordinatorDown, Message: "Coordinator stopping"})

		// A restart sleeping inside an API request would hold api.Shutdown open
		c.supervisor.BeginShutdown()
		if apiErr := c.api.Shutdown(ctx); apiErr != nil {
			err = fmt.Errorf("failed to stop API: %w", apiErr)
		}
		c.monitor.Stop()
		c.collector.Stop()

		failures := c.supervisor.ShutdownAll(ctx)
		metrics.UpdateComponent(metrics.ComponentSupervisor, false, "shut down")
		if len(failures) > 0 && err == nil {
			err = fmt.Errorf("%d workers did not shut down cleanly", len(failures))
		}

		c.stopJournal()
		c.broker.Stop()
		c.closeStore()
		if c.store != nil {
			metrics.UpdateComponent(metrics.ComponentStore, false, "closed")
		}
		c.logger.Info().Msg("Coordinator stopped")
	})
	return err
}

// Addr returns the bound API address
func (c *Coordinator) Addr() string {
	return c.api.Addr()
}

// Controller returns the control facade
func (c *Coordinator) Controller() *control.Controller {
	return c.controller
}

// Supervisor returns the process supervisor
func (c *Coordinator) Supervisor() *supervisor.Supervisor {
	return c.supervisor
}

// Store returns the persistent store, or nil without a data dir
func (c *Coordinator) Store() storage.Store {
	return c.store
}
