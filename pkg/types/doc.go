/*
Package types defines the core data model shared by every Foreman package.

# Definitions and handles

A WorkerDefinition is the static registration entry for a worker: how to
launch it, which capabilities it advertises, its routing priority (lower is
preferred) and its health-check policy. Definitions only change through an
explicit Configure call, which takes a DefinitionPatch and shallow-merges
the non-nil fields.

A WorkerHandle is the runtime record for one definition. The supervisor
owns the live records; everything outside the supervisor sees WorkerHandle
values, which are snapshots. There is exactly one handle per definition and
handles are never removed, only stopped.

	stopped ──start──▶ starting ──spawn ok──▶ running
	   ▲                  │                     │
	   │              spawn err            exit / stop
	   │                  ▼                     │
	   └──────start─── error ◀──runtime err─────┘

HealthStatus is only meaningful while running. Any transition out of
running forces HealthError.

# Errors

All control-plane failures are *Error values tagged with an ErrorKind:

  - ConfigError: unknown worker, duplicate registration, invalid definition
  - StateConflict: start on a running worker, stop on a non-running one
  - SpawnFailure: the OS failed to create the process
  - NoEligibleWorker: no running, healthy advertiser of a capability
  - InternalError: anything else

Use errors.Is(err, types.ErrStateConflict) or types.KindOf(err) to
classify.
*/
package types
