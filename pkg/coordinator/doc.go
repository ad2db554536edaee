/*
Package coordinator assembles a Foreman process from a fleet config.

New constructs, in order: the event broker, the optional bolt store (after
taking an exclusive flock on the data directory), the registry, the
supervisor, the file definitions (persisted overrides win), the health
monitor, the router, the control facade, the HTTP API and the metrics
collector. Nothing runs until Start.

Start subscribes the event journal, starts the broker, binds the API,
starts the monitor and collector and, with autostart, every worker.
Shutdown reverses this: API, monitor, workers, journal, broker, store.
*/
package coordinator
