package supervisor

import (
	"time"

	"github.com/cuemby/foreman/pkg/types"
)

// HealthView is the part of a handle the health monitor evaluates
type HealthView struct {
	Name       string
	Status     types.WorkerStatus
	Health     types.HealthStatus
	Alive      bool // process present and not yet exited
	PID        int
	Generation uint64
}

// Inspect returns the health-relevant state of the named worker
func (s *Supervisor) Inspect(name string) (HealthView, error) {
	h, err := s.lookup("health", name)
	if err != nil {
		return HealthView{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	v := HealthView{
		Name:       h.name,
		Status:     h.status,
		Health:     h.health,
		Generation: h.generation,
	}
	if h.proc != nil {
		v.PID = h.proc.PID()
		v.Alive = !h.proc.Exited()
	}
	return v, nil
}

// HealthUpdate describes what RecordHealth did to a handle
type HealthUpdate struct {
	Previous types.HealthStatus
	Current  types.HealthStatus // what the handle holds now
	Status   types.WorkerStatus // lifecycle state at record time
	Changed  bool
}

// Forced reports whether the recorded health differs from the evaluated one
func (u HealthUpdate) Forced(evaluated types.HealthStatus) bool {
	return u.Current != evaluated
}

// RecordHealth applies a health evaluation taken against generation and
// always stamps LastHealthCheck. A worker that is not running is forced to
// HealthError. Results for a process that has since been replaced are
// discarded, leaving Current at the handle's existing health.
func (s *Supervisor) RecordHealth(name string, generation uint64, status types.HealthStatus, at time.Time) (HealthUpdate, error) {
	h, err := s.lookup("health", name)
	if err != nil {
		return HealthUpdate{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	u := HealthUpdate{Previous: h.health, Status: h.status}
	h.lastHealthCheck = at

	switch {
	case h.status != types.WorkerStatusRunning:
		h.health = types.HealthError
	case h.generation == generation:
		h.health = status
	}
	u.Current = h.health
	u.Changed = u.Previous != u.Current
	return u, nil
}

// Names returns every worker name in sorted order
func (s *Supervisor) Names() []string {
	hs := s.allHandles()
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.name
	}
	return names
}
