/*
Package control is the request/response facade operators and tools use to
drive the fleet.

Everything that reaches Foreman from outside goes through a Controller:
the HTTP API dispatches each POST /v1/{operation} to one Controller
method, the CLI reaches the same methods through pkg/client, and tests call
them directly. The controller owns no state of its own beyond an instance
ID and start time; it validates, delegates and shapes the response.

# Architecture

	   foreman CLI ──▶ pkg/client ──HTTP──▶ pkg/api (gin)
	                                            │ dispatch by operation
	                                            ▼
	┌───────────────────────── CONTROLLER ──────────────────────────┐
	│  guard(op, fn)                                                │
	│   - recovers panics as InternalError                          │
	│   - normalizes every failure to *types.Error                  │
	│   - counts foreman_api_requests_total{operation,status}       │
	│   - times foreman_api_request_duration_seconds{operation}     │
	└──────┬──────────────┬───────────────┬──────────────┬──────────┘
	       │              │               │              │
	┌──────▼─────┐ ┌──────▼──────┐ ┌──────▼─────┐ ┌──────▼─────┐
	│ Registry   │ │ Supervisor  │ │ Monitor    │ │ Router     │
	│ definitions│ │ processes   │ │ health     │ │ capability │
	│ configure  │ │ start/stop  │ │ CheckOne   │ │ → worker   │
	│ reset      │ │ restart/logs│ │ CheckAll   │ │            │
	└────────────┘ └─────────────┘ └────────────┘ └────────────┘

# Operations

	listServers      serverStatus     startServer     stopServer
	restartServer    healthCheck      routeRequest    getCapabilities
	systemOverview   configureServer  resetServer     serverLogs

Each operation takes a small request struct, validates the required fields,
delegates to the registry, supervisor, monitor or router, and returns a
response struct:

	listServers       ListServersRequest   → ListServersResponse
	serverStatus      ServerRequest        → ServerStatusResponse
	startServer       ServerRequest        → ActionResponse
	stopServer        ServerRequest        → ActionResponse
	restartServer     ServerRequest        → ActionResponse
	healthCheck       HealthCheckRequest   → HealthCheckResponse
	routeRequest      RouteRequest         → RouteResponse
	getCapabilities   CapabilitiesRequest  → CapabilitiesResponse
	systemOverview    (none)               → SystemOverviewResponse
	configureServer   ConfigureRequest     → ConfigureResponse
	resetServer       ServerRequest        → ConfigureResponse
	serverLogs        LogsRequest          → LogsResponse

listServers without includeOffline shows only workers that are running or
starting; its summary always counts the whole fleet. healthCheck without a
server name checks every worker concurrently and returns the results in
name order.

# Routing

routeRequest only names the destination worker. Invoking the tool on that
worker is the caller's job. The router considers workers that advertise the
capability and are running and healthy, orders them by priority (lower
first) then name, and picks the first. Workers in warning are skipped until
they recover. A preferredServer wins when it is among the eligible workers
and is ignored otherwise. An empty eligible set fails with NoEligibleWorker.

	resp, err := ctl.RouteRequest(ctx, &control.RouteRequest{
		Capability: "pdf_extraction",
		ToolName:   "extract_text",
		Preferences: &control.RoutePreferences{
			PreferredServer: "extractor-gpu",
		},
	})
	// resp.RoutedTo, resp.EligibleServers, resp.RequestID

# Reconfiguration

configureServer shallow-merges a DefinitionPatch into the current
definition: nil fields are left alone, set fields replace the old value
whole. Routing sees the change at once; a running process keeps its old
command, arguments and environment until its next start. When the
coordinator has a data directory the merged definition is persisted and
wins over the fleet file on every later start.

resetServer undoes that. It deletes the persisted override and returns the
worker to the definition it was registered with from the fleet file. Like
configureServer it never touches the process.

	priority := 1
	_, err := ctl.ConfigureServer(ctx, &control.ConfigureRequest{
		ServerName: "search",
		Config:     &types.DefinitionPatch{Priority: &priority},
	})

	_, err = ctl.ResetServer(ctx, &control.ServerRequest{ServerName: "search"})

# Error Handling

Failures are always *types.Error values tagged with one of the error
kinds. NewErrorResponse turns them into the payload the HTTP layer writes:

	{"success": false, "error": {"kind": "StateConflict", "message": "..."}}

	Kind              Typical cause                               HTTP
	ConfigError       missing serverName, unknown worker, bad     400 (404 for
	                  patch                                       unknown worker)
	StateConflict     start while running, stop while stopped,    409
	                  restart during shutdown
	SpawnFailure      command missing or not executable           502
	NoEligibleWorker  no routable worker advertises capability    503
	InternalError     recovered panic, store failure              500

Plain errors returned by a collaborator are wrapped as InternalError so no
untagged error crosses this boundary. A panic inside an operation is
recovered, logged with its stack and reported as InternalError.

# Usage

	ctl, err := control.NewController(control.Config{
		Registry:   reg,
		Supervisor: sup,
		Monitor:    mon,
		Router:     rt,
		Broker:     broker, // optional, for dropped event counts
		Version:    version,
	})
	if err != nil {
		return err
	}

	if _, err := ctl.StartServer(ctx, &control.ServerRequest{ServerName: "mailer"}); err != nil {
		resp := control.NewErrorResponse(err)
		log.Printf("%s: %s", resp.Error.Kind, resp.Error.Message)
	}

# Concurrency

The controller is safe for concurrent use. Operations on the same worker
are serialised by the supervisor's per-worker operation lock; operations on
different workers run in parallel. restartServer holds its caller for the
quiescence delay, which ends early on context cancellation or coordinator
shutdown.
*/
package control
