package control

import (
	"encoding/json"
	"time"

	"github.com/cuemby/foreman/pkg/router"
	"github.com/cuemby/foreman/pkg/supervisor"
	"github.com/cuemby/foreman/pkg/types"
)

// Operation names, used for dispatch and as the metrics label
const (
	OpListServers     = "listServers"
	OpServerStatus    = "serverStatus"
	OpStartServer     = "startServer"
	OpStopServer      = "stopServer"
	OpRestartServer   = "restartServer"
	OpHealthCheck     = "healthCheck"
	OpRouteRequest    = "routeRequest"
	OpGetCapabilities = "getCapabilities"
	OpSystemOverview  = "systemOverview"
	OpConfigureServer = "configureServer"
	OpServerLogs      = "serverLogs"
	OpResetServer     = "resetServer"
)

// ErrorDetail is the tagged description of a failed operation
type ErrorDetail struct {
	Kind    types.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// ErrorResponse is the payload returned for every failed operation
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ServerRequest names a single worker
type ServerRequest struct {
	ServerName string `json:"serverName"`
}

// ActionResponse is returned by start, stop and restart
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListServersRequest filters the server listing
type ListServersRequest struct {
	IncludeOffline bool `json:"includeOffline"`
}

// ServerSummary is one row of the server listing
type ServerSummary struct {
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	Status          types.WorkerStatus `json:"status"`
	HealthStatus    types.HealthStatus `json:"healthStatus"`
	Capabilities    []string           `json:"capabilities"`
	Priority        int                `json:"priority"`
	LastHealthCheck *time.Time         `json:"lastHealthCheck"`
	RestartCount    int                `json:"restartCount"`
	ToolCount       int                `json:"toolCount"`
}

// FleetSummary counts workers by state
type FleetSummary struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Healthy int `json:"healthy"`
}

// ListServersResponse is the server listing
type ListServersResponse struct {
	Servers []ServerSummary `json:"servers"`
	Summary FleetSummary    `json:"summary"`
}

// ServerStatusResponse is the full snapshot of one worker
type ServerStatusResponse struct {
	types.WorkerHandle
	Uptime     string                  `json:"uptime,omitempty"`
	Definition *types.WorkerDefinition `json:"definition"`
}

// HealthCheckRequest checks one worker, or all when ServerName is empty
type HealthCheckRequest struct {
	ServerName string `json:"serverName,omitempty"`
}

// HealthSummary counts health results by verdict
type HealthSummary struct {
	Total    int `json:"total"`
	Healthy  int `json:"healthy"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// HealthCheckResponse carries the evaluated results
type HealthCheckResponse struct {
	Summary       HealthSummary             `json:"summary"`
	HealthResults []types.HealthCheckResult `json:"healthResults"`
}

// RoutePreferences tune a route request
type RoutePreferences struct {
	PreferredServer string `json:"preferredServer,omitempty"`
	Timeout         int    `json:"timeout,omitempty"` // milliseconds, honoured by the caller
	Retries         int    `json:"retries,omitempty"`
}

// RouteRequest asks which worker should serve a capability
type RouteRequest struct {
	Capability  string            `json:"capability"`
	ToolName    string            `json:"toolName,omitempty"`
	Request     json.RawMessage   `json:"request,omitempty"`
	Preferences *RoutePreferences `json:"preferences,omitempty"`
}

// RouteResponse names the chosen worker. The call itself is made by the caller.
type RouteResponse struct {
	RequestID       string   `json:"requestId"`
	RoutedTo        string   `json:"routedTo"`
	Capability      string   `json:"capability"`
	ToolName        string   `json:"toolName,omitempty"`
	EligibleServers []string `json:"eligibleServers"`
}

// CapabilitiesRequest optionally filters by category
type CapabilitiesRequest struct {
	Category string `json:"category,omitempty"`
}

// CapabilitiesSummary counts capabilities
type CapabilitiesSummary struct {
	Total      int            `json:"total"`
	Available  int            `json:"available"`
	Categories map[string]int `json:"categories"`
}

// CapabilitiesResponse lists advertised capabilities
type CapabilitiesResponse struct {
	Capabilities []router.Capability `json:"capabilities"`
	Summary      CapabilitiesSummary `json:"summary"`
}

// CoordinatorInfo describes the coordinator process itself
type CoordinatorInfo struct {
	InstanceID string    `json:"instanceId"`
	Version    string    `json:"version"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"startedAt"`
	Uptime     string    `json:"uptime"`
}

// WorkerCounts counts workers by lifecycle status
type WorkerCounts struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Starting  int `json:"starting"`
	Stopped   int `json:"stopped"`
	Errored   int `json:"error"`
	Processes int `json:"processes"`
}

// SystemOverviewResponse is the fleet-wide view
type SystemOverviewResponse struct {
	Coordinator   CoordinatorInfo `json:"coordinator"`
	Workers       WorkerCounts    `json:"workers"`
	Health        HealthSummary   `json:"health"`
	TotalRestarts int             `json:"totalRestarts"`
	Capabilities  int             `json:"capabilities"`
	Available     int             `json:"availableCapabilities"`
	EventsDropped int64           `json:"eventsDropped"`
}

// ConfigureRequest patches a worker definition
type ConfigureRequest struct {
	ServerName string                 `json:"serverName"`
	Config     *types.DefinitionPatch `json:"config"`
}

// ConfigureResponse echoes the merged definition
type ConfigureResponse struct {
	Success    bool                    `json:"success"`
	Message    string                  `json:"message"`
	Definition *types.WorkerDefinition `json:"definition"`
}

// LogsRequest asks for the last Lines output lines of a worker
type LogsRequest struct {
	ServerName string `json:"serverName"`
	Lines      int    `json:"lines,omitempty"`
}

// LogsResponse carries captured worker output
type LogsResponse struct {
	ServerName string               `json:"serverName"`
	Lines      []supervisor.LogLine `json:"lines"`
}
