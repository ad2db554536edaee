/*
Package events provides the in-memory event broker that carries worker
lifecycle notifications through Foreman.

The supervisor's process observers run on their own goroutines. Instead of
letting other components poll process internals, every lifecycle transition
(start, stop, exit, spawn error, restart, reconfiguration, health change) is
published on the Broker and consumers subscribe.

# Architecture

	Supervisor / Registry / Monitor
	        │  Publish (never blocks)
	        ▼
	  event channel (buffer: 256)
	        │  broadcast loop
	        ▼
	  subscriber channels (buffer: 64 each)
	        │
	        ├── metrics collector   (exit and restart counters)
	        ├── event journal       (bbolt, served at GET /v1/events)
	        └── tests               (wait for worker.exited)

# Event Types

  - worker.registered, worker.configured
  - worker.starting, worker.started, worker.stopped, worker.restarted
  - worker.exited (process exit reconciled by the observer)
  - worker.error (spawn or runtime failure)
  - worker.health_changed (monitor detected a transition)
  - coordinator.started, coordinator.stopping

# Delivery Semantics

Publish never blocks. When the broker queue or a subscriber buffer is full
the delivery is skipped and counted in Dropped. Events are best-effort
notifications; the authoritative state is always the worker handle.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			if ev.Type == events.EventWorkerExited {
				fmt.Printf("%s exited: %s\n", ev.Worker, ev.Message)
			}
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventWorkerStarted,
		Worker:  "ocr",
		Message: "Worker started",
	})

IDs are assigned with uuid when the publisher leaves them empty.
*/
package events
