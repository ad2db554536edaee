package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Component names used by the coordinator
const (
	ComponentSupervisor = "supervisor"
	ComponentMonitor    = "monitor"
	ComponentStore      = "store"
	ComponentAPI        = "api"
)

// HealthStatus represents the health status of the coordinator
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

var (
	healthChecker = newHealthChecker()
)

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker manages health of coordinator components
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	startTime  time.Time
	version    string
}

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		critical:   []string{ComponentSupervisor, ComponentAPI},
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetCriticalComponents replaces the set of components readiness waits for
func SetCriticalComponents(names ...string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.critical = append([]string(nil), names...)
}

// RegisterComponent records the health of a component
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent updates the health status of a component
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// Coordinator status values reported by the probe endpoints
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
	StatusAlive     = "alive"
)

// report stamps a status with version and uptime. Callers hold the read lock.
func (hc *HealthChecker) report(status, message string, components map[string]string) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    hc.version,
		Uptime:     time.Since(hc.startTime).Round(time.Second).String(),
	}
}

// GetHealth is unhealthy as soon as any registered component is
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusHealthy
	components := make(map[string]string, len(healthChecker.components))
	for name, comp := range healthChecker.components {
		if comp.Healthy {
			components[name] = StatusHealthy
			continue
		}
		status = StatusUnhealthy
		components[name] = StatusUnhealthy + ": " + comp.Message
	}
	return healthChecker.report(status, "", components)
}

// GetReadiness is ready once every critical component has registered healthy
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	var waiting []string
	components := make(map[string]string, len(healthChecker.critical))
	for _, name := range healthChecker.critical {
		comp, ok := healthChecker.components[name]
		switch {
		case !ok:
			components[name] = "not registered"
		case !comp.Healthy:
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = StatusReady
			continue
		}
		waiting = append(waiting, name)
	}

	if len(waiting) == 0 {
		return healthChecker.report(StatusReady, "", components)
	}
	sort.Strings(waiting)
	return healthChecker.report(StatusNotReady, "waiting for "+strings.Join(waiting, ", "), components)
}

// statusHandler serves fn as JSON, answering 503 unless the status is ok
func statusHandler(fn func() HealthStatus, ok string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hs := fn()
		code := http.StatusOK
		if hs.Status != ok {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(hs)
	}
}

// HealthHandler serves /health
func HealthHandler() http.HandlerFunc {
	return statusHandler(GetHealth, StatusHealthy)
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return statusHandler(GetReadiness, StatusReady)
}

// LivenessHandler serves /livez. Answering at all means the process is alive.
func LivenessHandler() http.HandlerFunc {
	return statusHandler(func() HealthStatus {
		return HealthStatus{Status: StatusAlive, Timestamp: time.Now()}
	}, StatusAlive)
}
