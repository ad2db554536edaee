package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/log"
	"github.com/cuemby/foreman/pkg/types"
	"github.com/rs/zerolog"
)

// DefinitionStore persists reconfigured definitions
type DefinitionStore interface {
	SaveDefinition(def *types.WorkerDefinition) error
	DeleteDefinition(name string) error
}

// RegisterFunc is invoked synchronously for every newly registered definition
type RegisterFunc func(def *types.WorkerDefinition)

// Registry holds the static table of worker definitions. Each worker keeps
// the definition it was registered with as its baseline; Configure and
// Restore move the current definition away from it and Reset returns to it.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]*types.WorkerDefinition
	baseline  map[string]*types.WorkerDefinition
	listeners []RegisterFunc
	store     DefinitionStore
	broker    events.Publisher
	logger    zerolog.Logger
}

// Config holds optional registry collaborators
type Config struct {
	Store  DefinitionStore
	Broker events.Publisher
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		defs:     make(map[string]*types.WorkerDefinition),
		baseline: make(map[string]*types.WorkerDefinition),
		store:    cfg.Store,
		broker:   cfg.Broker,
		logger:   log.WithComponent("registry"),
	}
}

// OnRegister adds a listener called while the new definition is being
// stored, so observers see the definition and their own record appear
// atomically. Listeners must not call back into the registry.
func (r *Registry) OnRegister(fn RegisterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Register adds a definition. Fails with ConfigError if the name is taken
// or the definition is invalid.
func (r *Registry) Register(def *types.WorkerDefinition) error {
	if def == nil {
		return types.NewError(types.KindConfig, "register", "", "definition is required")
	}
	d := def.Clone()
	applyDefaults(d)
	if err := Validate(d); err != nil {
		return types.WrapError(types.KindConfig, "register", d.Name, err)
	}

	r.mu.Lock()
	if _, exists := r.defs[d.Name]; exists {
		r.mu.Unlock()
		return types.NewError(types.KindConfig, "register", d.Name, "server %s is already registered", d.Name)
	}
	r.defs[d.Name] = d
	r.baseline[d.Name] = d.Clone()
	for _, fn := range r.listeners {
		fn(d.Clone())
	}
	r.mu.Unlock()

	r.logger.Info().
		Str("worker", d.Name).
		Strs("capabilities", d.Capabilities).
		Int("priority", d.Priority).
		Msg("Worker registered")
	r.publish(events.EventWorkerRegistered, d.Name, "Worker registered")
	return nil
}

// Configure shallow-merges patch into an existing definition and returns the
// merged result. The worker is not restarted; changes take effect for
// routing immediately and for the process on its next start.
func (r *Registry) Configure(name string, patch *types.DefinitionPatch) (*types.WorkerDefinition, error) {
	r.mu.Lock()
	current, ok := r.defs[name]
	if !ok {
		r.mu.Unlock()
		return nil, types.UnknownWorker("configure", name)
	}
	merged := patch.Apply(current)
	applyDefaults(merged)
	if err := Validate(merged); err != nil {
		r.mu.Unlock()
		return nil, types.WrapError(types.KindConfig, "configure", name, err)
	}
	r.defs[name] = merged
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveDefinition(merged); err != nil {
			// The in-memory table is authoritative; persistence is best effort.
			r.logger.Warn().Err(err).Str("worker", name).Msg("Failed to persist configuration")
		}
	}

	r.logger.Info().Str("worker", name).Int("priority", merged.Priority).Msg("Worker reconfigured")
	r.publish(events.EventWorkerConfigured, name, "Worker configuration updated")
	return merged.Clone(), nil
}

// Restore replaces a registered worker's current definition with one
// persisted by an earlier Configure. The baseline is kept and nothing is
// written back to the store.
func (r *Registry) Restore(def *types.WorkerDefinition) error {
	if def == nil {
		return types.NewError(types.KindConfig, "restore", "", "definition is required")
	}
	d := def.Clone()
	applyDefaults(d)
	if err := Validate(d); err != nil {
		return types.WrapError(types.KindConfig, "restore", d.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[d.Name]; !ok {
		return types.UnknownWorker("restore", d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Reset drops every Configure change to a worker, returning it to the
// definition it was registered with, and deletes the persisted override.
// Like Configure it leaves a running process alone.
func (r *Registry) Reset(name string) (*types.WorkerDefinition, error) {
	r.mu.RLock()
	base, ok := r.baseline[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.UnknownWorker("reset", name)
	}

	// Delete first: a failed delete leaves both the table and the store as they were
	if r.store != nil {
		if err := r.store.DeleteDefinition(name); err != nil {
			return nil, types.WrapError(types.KindInternal, "reset", name, err)
		}
	}

	r.mu.Lock()
	r.defs[name] = base.Clone()
	r.mu.Unlock()

	r.logger.Info().Str("worker", name).Msg("Worker configuration reset")
	r.publish(events.EventWorkerConfigured, name, "Worker configuration reset to registered definition")
	return base.Clone(), nil
}

// Get returns a copy of the named definition
func (r *Registry) Get(name string) (*types.WorkerDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defs[name]
	if !ok {
		return nil, types.UnknownWorker("get", name)
	}
	return d.Clone(), nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// List returns copies of all definitions sorted by name
func (r *Registry) List() []*types.WorkerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.WorkerDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// CapabilityIndex derives capability -> worker names from the current definitions
func (r *Registry) CapabilityIndex() types.CapabilityIndex {
	return types.BuildCapabilityIndex(r.List())
}

func (r *Registry) publish(t events.EventType, worker, msg string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{Type: t, Worker: worker, Message: msg})
}

// Validate checks a definition for the fields required to launch it
func Validate(d *types.WorkerDefinition) error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(d.Command) == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if d.HealthCheck.Retries < 0 {
		errs = append(errs, fmt.Errorf("health_check.retries must be >= 0, got %d", d.HealthCheck.Retries))
	}
	if p := d.HealthCheck.Probe; p != nil {
		switch p.Type {
		case types.ProbeHTTP, types.ProbeTCP:
			if p.Endpoint == "" {
				errs = append(errs, fmt.Errorf("health_check.probe.endpoint is required for %s probes", p.Type))
			}
		case types.ProbeExec:
			if len(p.Command) == 0 {
				errs = append(errs, errors.New("health_check.probe.command is required for exec probes"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported probe type: %q", p.Type))
		}
	}
	return errors.Join(errs...)
}

func applyDefaults(d *types.WorkerDefinition) {
	def := types.DefaultHealthCheckPolicy()
	if d.HealthCheck.Interval <= 0 {
		d.HealthCheck.Interval = def.Interval
	}
	if d.HealthCheck.Timeout <= 0 {
		d.HealthCheck.Timeout = def.Timeout
	}
	if d.HealthCheck.Retries == 0 {
		d.HealthCheck.Retries = def.Retries
	}
}
