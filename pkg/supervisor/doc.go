/*
Package supervisor owns the OS process lifecycle of Foreman workers.

A worker is a long-running local program (a tool server, an extractor, a
mailer) declared in the fleet file. The supervisor spawns it, watches it
exit, stops it on request and keeps a small amount of runtime state about
it for the rest of the coordinator: status, health, PID, restart count,
last error and the tail of its output.

# Architecture

The supervisor sits between the registry, which owns what a worker is, and
the OS, which owns the process:

	┌──────────────────────── SUPERVISOR ────────────────────────┐
	│                                                            │
	│  Registry ──OnRegister──▶ handles map[name]*handle         │
	│      │                         │                           │
	│      │ Get(name) at start      │ opMu  (one op at a time)  │
	│      ▼                         │ mu    (record fields)     │
	│  ┌──────────────┐        ┌─────▼─────────────────────┐     │
	│  │ startProcess │───────▶│ Process                   │     │
	│  │  exec.Cmd    │        │  pid, startedAt, done     │     │
	│  │  env merge   │        │  stdout/stderr lineWriter │     │
	│  │  work dir    │        └─────┬─────────────────────┘     │
	│  └──────────────┘              │ cmd.Wait                  │
	│                          ┌─────▼──────┐   ┌───────────┐    │
	│                          │ observe()  │   │ escalate()│    │
	│                          │ exit/error │   │ SIGKILL   │    │
	│                          └─────┬──────┘   └───────────┘    │
	│                                │                           │
	│               events.Publisher │  metrics counters         │
	└────────────────────────────────┼───────────────────────────┘
	                                 ▼
	                     broker ─▶ monitor, journal, SSE

The supervisor holds one handle per registered definition. Handles are
created when a definition is registered and are never removed; stopping a
worker tears down its process but keeps the record, including its restart
count and last error. The definition itself is read from the registry at
every start, so a configureServer or resetServer change reaches the process
on its next start and never before.

# Core Components

Supervisor:
  - Map of handles keyed by worker name
  - Start, Stop, Restart and ShutdownAll
  - BeginShutdown to refuse new starts early
  - Handle/Handles snapshots for the controller and metrics
  - Inspect/RecordHealth for the health monitor

handle:
  - Status, health, process reference and generation
  - RestartCount, LastError, LastHealthCheck
  - Tools captured from the definition at start
  - A bounded LogBuffer

Process:
  - Wraps exec.Cmd after a successful Start
  - Done channel closed once Wait returns
  - Terminate (SIGTERM) and Kill (SIGKILL)
  - RuntimeError distinguishes a crash from a clean or signalled exit

LogBuffer:
  - Fixed-size ring of output lines per worker
  - Tail(n), Since(t) and Contains(pattern)

# Lifecycle

	Start    stopped|error ──▶ starting ──▶ running        (SpawnFailure ──▶ error)
	Stop     running ──▶ stopped                           (SIGTERM, no wait)
	Restart  [stop] ──▶ quiescence delay ──▶ start         (RestartCount++ always)
	Exit     running ──▶ stopped                           (observer, async)
	Error    running ──▶ error                             (observer, async)

Every transition out of running forces the health status to error.

Start:

 1. Refuse if shutdown has begun (StateConflict)
 2. Take the handle's operation lock
 3. Read the current definition from the registry
 4. Refuse if already running (StateConflict)
 5. Mark starting and publish worker.starting
 6. exec the command with the merged environment and work dir
 7. On failure: status error, SpawnFailure returned, worker.error published
 8. On success: bump the generation, mark running and healthy,
    launch the exit observer and publish worker.started

Stop:

 1. Refuse unless running (StateConflict)
 2. Detach the process from the handle and mark stopped
 3. Send SIGTERM and return at once
 4. A background timer sends SIGKILL after the stop grace period

Restart:

 1. Increment RestartCount, whatever the prior status
 2. Stop the worker if it is running
 3. Wait out the quiescence delay
 4. Start it again and publish worker.restarted

The wait in step 3 ends early when the caller's context is cancelled
(InternalError) or when shutdown begins (StateConflict). A restart that
fails to spawn still counts.

# Usage

	sup, err := supervisor.NewSupervisor(supervisor.Config{
		Registry:        reg,
		Broker:          broker,
		RestartDelay:    time.Second,
		StopGracePeriod: 10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLines:        500,
	})
	if err != nil {
		return err
	}

	if err := sup.Start(ctx, "extractor"); err != nil {
		switch types.KindOf(err) {
		case types.KindSpawnFailure:
			// binary missing, permission denied, bad work dir
		case types.KindStateConflict:
			// already running, or shutting down
		}
	}

	h, _ := sup.Handle("extractor")
	fmt.Println(h.Status, h.PID, h.RestartCount)

	lines, _ := sup.Logs("extractor", 50)

Shutting down:

	sup.BeginShutdown()            // cancel pending restarts, refuse starts
	// ... drain API requests ...
	failures := sup.ShutdownAll(ctx)

ShutdownAll calls BeginShutdown itself, so calling it alone is enough when
there is nothing to drain.

# Concurrency

Each handle carries two locks. The operation lock serialises Start, Stop,
Restart and shutdown for one worker so that a restart's stop, delay and
start happen as a unit. The field lock guards the record itself and is
also taken by the exit observer and the health monitor. Different workers
never contend.

Stop is fire-and-forget: it sends SIGTERM, marks the handle stopped and
returns. A background escalation kills the process if it is still alive
after the stop grace period. Because Stop does not wait, a stale process
and its freshly started replacement may briefly coexist; the exit observer
compares process identity before touching the handle so the stale exit
never clobbers the replacement.

Health results carry the generation they were taken against. RecordHealth
drops a result for a generation that has since been replaced and forces
error when the worker is no longer running, reporting back what it
actually stored through HealthUpdate.

There is no automatic restart. A crashed worker stays stopped (or error)
until an operator calls Restart or Start, which keeps RestartCount an
explicit, auditable signal.

# Output

Worker stdout and stderr are split into lines, kept in a bounded LogBuffer
per worker and forwarded to the logger at debug level with a "stream"
field. Partial lines are held until their newline arrives; a trailing
carriage return is dropped. A child that writes 64 KiB without a newline
has the pending bytes flushed as one line.

# Metrics

	foreman_worker_restarts_total{worker}    Restart calls
	foreman_worker_exits_total{worker}       observed exits of the live process
	foreman_spawn_failures_total{worker}     failed exec attempts

# Troubleshooting

Worker goes straight to error:
  - Check LastError on serverStatus; it carries the exec error
  - Verify command is on PATH for the coordinator, not your shell
  - Verify work_dir exists

Worker shows stopped with an exit summary:
  - The process exited on its own; read serverLogs for its last lines
  - "signal SIGKILL" that no operator sent usually means the OOM killer
  - Exits of a process that was already stopped are reaped quietly and
    never touch the handle

Restart returns StateConflict:
  - The coordinator is shutting down; no new processes are started
*/
package supervisor
