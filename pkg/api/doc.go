/*
Package api serves the Foreman control API over HTTP.

Every control operation is reachable as POST /v1/<operation> with a JSON
request body (an empty body is the zero request). Successful calls return
200 with the operation's response; failures return the tagged error
payload with a status derived from the error kind:

	ConfigError        400  (404 for an unknown server name)
	StateConflict      409
	SpawnFailure       502
	NoEligibleWorker   503
	InternalError      500

Read-only conveniences:

	GET /v1/servers[?includeOffline=true]
	GET /v1/servers/:name
	GET /v1/servers/:name/logs[?lines=N]
	GET /v1/capabilities[?category=C]
	GET /v1/overview
	GET /v1/events[?limit=N]            persisted journal, oldest first
	GET /v1/events/stream[?worker=W]    live Server-Sent Events

Coordinator endpoints are /health, /ready, /livez and /metrics.

A server built with ReadOnly answers 403 to every operation that changes
the fleet: startServer, stopServer, restartServer, configureServer and
resetServer.
*/
package api
