/*
Package health implements the optional active probes Foreman can run
against a running worker.

Three probe types are supported:

	http   GET an endpoint, 200-399 is healthy
	tcp    connect to host:port
	exec   run a command on the host, exit code 0 is healthy

NewChecker builds the right Checker from a worker's probe definition.
Status keeps the consecutive outcome counters for one process and turns
each Result into a verdict: a success is healthy immediately, failures are
a warning until they reach the policy's retry count and an error from then
on. The monitor resets a worker's Status whenever its process is replaced.

Probes only refine the health of a worker whose process is alive. Liveness
itself is decided by the monitor from the supervisor's process record.
*/
package health
