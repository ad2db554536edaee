package types

import (
	"sort"
	"time"
)

// WorkerStatus represents the lifecycle state of a worker process
type WorkerStatus string

const (
	WorkerStatusStopped  WorkerStatus = "stopped"
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusRunning  WorkerStatus = "running"
	WorkerStatusError    WorkerStatus = "error"
)

// HealthStatus represents the evaluated health of a worker
type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthError   HealthStatus = "error"
)

// ProbeType defines the kind of active health probe
type ProbeType string

const (
	ProbeHTTP ProbeType = "http"
	ProbeTCP  ProbeType = "tcp"
	ProbeExec ProbeType = "exec"
)

// WorkerDefinition is the static registration entry for a worker.
// It is immutable until explicitly reconfigured.
type WorkerDefinition struct {
	Name         string            `json:"name" yaml:"name" toml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Command      string            `json:"command" yaml:"command" toml:"command"`
	Args         []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env"`
	WorkDir      string            `json:"workDir,omitempty" yaml:"work_dir,omitempty" toml:"work_dir"`
	Capabilities []string          `json:"capabilities" yaml:"capabilities" toml:"capabilities"`
	Tools        []string          `json:"tools,omitempty" yaml:"tools,omitempty" toml:"tools"`
	Priority     int               `json:"priority" yaml:"priority" toml:"priority"`
	Category     string            `json:"category,omitempty" yaml:"category,omitempty" toml:"category"`
	HealthCheck  HealthCheckPolicy `json:"healthCheck" yaml:"health_check" toml:"health_check"`
}

// HealthCheckPolicy controls how a worker's health is evaluated
type HealthCheckPolicy struct {
	Interval time.Duration `json:"interval" yaml:"interval" toml:"interval"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	Retries  int           `json:"retries" yaml:"retries" toml:"retries"`
	Probe    *Probe        `json:"probe,omitempty" yaml:"probe,omitempty" toml:"probe"`
}

// Probe describes an optional active health probe
type Probe struct {
	Type     ProbeType `json:"type" yaml:"type" toml:"type"`
	Endpoint string    `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint"` // URL or host:port
	Command  []string  `json:"command,omitempty" yaml:"command,omitempty" toml:"command"`
}

// DefaultHealthCheckPolicy returns the policy used when a definition leaves fields unset
func DefaultHealthCheckPolicy() HealthCheckPolicy {
	return HealthCheckPolicy{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  3,
	}
}

// HasCapability reports whether the definition advertises capability
func (d *WorkerDefinition) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the definition
func (d *WorkerDefinition) Clone() *WorkerDefinition {
	if d == nil {
		return nil
	}
	c := *d
	c.Args = append([]string(nil), d.Args...)
	c.Capabilities = append([]string(nil), d.Capabilities...)
	c.Tools = append([]string(nil), d.Tools...)
	if d.Env != nil {
		c.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			c.Env[k] = v
		}
	}
	if d.HealthCheck.Probe != nil {
		p := *d.HealthCheck.Probe
		p.Command = append([]string(nil), d.HealthCheck.Probe.Command...)
		c.HealthCheck.Probe = &p
	}
	return &c
}

// DefinitionPatch is a partial definition used by Configure.
// Nil fields are left untouched (shallow merge).
type DefinitionPatch struct {
	Description  *string            `json:"description,omitempty" yaml:"description,omitempty"`
	Command      *string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args         []string           `json:"args,omitempty" yaml:"args,omitempty"`
	Env          map[string]string  `json:"env,omitempty" yaml:"env,omitempty"`
	WorkDir      *string            `json:"workDir,omitempty" yaml:"work_dir,omitempty"`
	Capabilities []string           `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Tools        []string           `json:"tools,omitempty" yaml:"tools,omitempty"`
	Priority     *int               `json:"priority,omitempty" yaml:"priority,omitempty"`
	Category     *string            `json:"category,omitempty" yaml:"category,omitempty"`
	HealthCheck  *HealthCheckPolicy `json:"healthCheck,omitempty" yaml:"health_check,omitempty"`
}

// Apply merges the patch into a copy of def and returns it
func (p *DefinitionPatch) Apply(def *WorkerDefinition) *WorkerDefinition {
	out := def.Clone()
	if p == nil {
		return out
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Command != nil {
		out.Command = *p.Command
	}
	if p.Args != nil {
		out.Args = append([]string(nil), p.Args...)
	}
	if p.Env != nil {
		out.Env = make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			out.Env[k] = v
		}
	}
	if p.WorkDir != nil {
		out.WorkDir = *p.WorkDir
	}
	if p.Capabilities != nil {
		out.Capabilities = append([]string(nil), p.Capabilities...)
	}
	if p.Tools != nil {
		out.Tools = append([]string(nil), p.Tools...)
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.HealthCheck != nil {
		out.HealthCheck = *p.HealthCheck
	}
	return out
}

// IsEmpty reports whether the patch would change nothing
func (p *DefinitionPatch) IsEmpty() bool {
	return p == nil || (p.Description == nil && p.Command == nil && p.Args == nil &&
		p.Env == nil && p.WorkDir == nil && p.Capabilities == nil && p.Tools == nil &&
		p.Priority == nil && p.Category == nil && p.HealthCheck == nil)
}

// WorkerHandle is a point-in-time snapshot of a worker's runtime record.
// The live record is owned by the supervisor.
type WorkerHandle struct {
	Name            string       `json:"name"`
	Status          WorkerStatus `json:"status"`
	HealthStatus    HealthStatus `json:"healthStatus"`
	PID             int          `json:"pid,omitempty"`
	HasProcess      bool         `json:"hasProcess"`
	StartedAt       time.Time    `json:"startedAt,omitempty"`
	LastHealthCheck time.Time    `json:"lastHealthCheck,omitempty"`
	LastError       string       `json:"lastError,omitempty"`
	RestartCount    int          `json:"restartCount"`
	Tools           []string     `json:"tools"`
}

// Routable reports whether the worker may receive routed requests
func (h *WorkerHandle) Routable() bool {
	return h.Status == WorkerStatusRunning && h.HealthStatus == HealthHealthy
}

// HealthCheckResult is the ephemeral outcome of one health evaluation
type HealthCheckResult struct {
	WorkerName string       `json:"serverName"`
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message"`
	Timestamp  time.Time    `json:"timestamp"`
}

// CapabilityIndex maps a capability to the names of workers advertising it
type CapabilityIndex map[string][]string

// BuildCapabilityIndex derives the index from a set of definitions.
// Worker names for each capability are sorted.
func BuildCapabilityIndex(defs []*WorkerDefinition) CapabilityIndex {
	idx := make(CapabilityIndex)
	for _, d := range defs {
		seen := make(map[string]bool, len(d.Capabilities))
		for _, c := range d.Capabilities {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			idx[c] = append(idx[c], d.Name)
		}
	}
	for c := range idx {
		sort.Strings(idx[c])
	}
	return idx
}

// Names returns the capability names in sorted order
func (idx CapabilityIndex) Names() []string {
	names := make([]string, 0, len(idx))
	for c := range idx {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}
