package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/foreman/pkg/types"
)

// DefaultProbeTimeout bounds a probe whose policy sets no timeout
const DefaultProbeTimeout = 5 * time.Second

// Result represents the outcome of a single probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is implemented by every active probe
type Checker interface {
	Check(ctx context.Context) Result
	Type() types.ProbeType
}

// NewChecker builds the probe declared by a worker definition. The policy
// timeout bounds each check and exec probes run in the worker's directory.
func NewChecker(def *types.WorkerDefinition) (Checker, error) {
	if def == nil || def.HealthCheck.Probe == nil {
		return nil, fmt.Errorf("no probe configured")
	}
	probe := def.HealthCheck.Probe

	timeout := def.HealthCheck.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	switch probe.Type {
	case types.ProbeHTTP:
		if probe.Endpoint == "" {
			return nil, fmt.Errorf("http probe requires an endpoint")
		}
		return NewHTTPChecker(probe.Endpoint).WithTimeout(timeout), nil
	case types.ProbeTCP:
		if probe.Endpoint == "" {
			return nil, fmt.Errorf("tcp probe requires an endpoint")
		}
		return NewTCPChecker(probe.Endpoint).WithTimeout(timeout), nil
	case types.ProbeExec:
		if len(probe.Command) == 0 {
			return nil, fmt.Errorf("exec probe requires a command")
		}
		return NewExecChecker(probe.Command).WithTimeout(timeout).WithDir(def.WorkDir), nil
	default:
		return nil, fmt.Errorf("unknown probe type %q", probe.Type)
	}
}

// finish stamps a result with the time spent since start
func finish(start time.Time, healthy bool, format string, args ...any) Result {
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Status tracks consecutive probe outcomes for one worker process
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int

	LastCheck  time.Time
	LastResult Result
}

// NewStatus creates an empty Status
func NewStatus() *Status {
	return &Status{}
}

// Update records result and returns the resulting verdict.
// A success is healthy at once. Failures below retries are a warning;
// reaching retries is an error.
func (s *Status) Update(result Result, retries int) types.HealthStatus {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		return types.HealthHealthy
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= retries {
		return types.HealthError
	}
	return types.HealthWarning
}
