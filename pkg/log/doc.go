/*
Package log provides structured logging for Foreman using zerolog.

A single package-level Logger is configured once by Init and shared by every
component. Components derive child loggers so that each line carries the
emitting component and, for lifecycle messages, the worker name:

	supLog := log.WithComponent("supervisor")
	supLog.Info().Str("worker", "ocr").Int("pid", 4242).Msg("Worker started")

	wlog := log.WithWorker("supervisor", "ocr")
	wlog.Warn().Int("exit_code", 1).Msg("Worker exited")

# Output

JSON output is meant for production and log shippers:

	{"level":"info","component":"supervisor","worker":"ocr","pid":4242,"time":"2026-10-19T10:30:00Z","message":"Worker started"}

Console output is meant for interactive use:

	2026-10-19T10:30:00Z INF Worker started component=supervisor pid=4242 worker=ocr

# Worker output

The supervisor forwards each stdout/stderr line of a child process to the
logger at debug level with a "stream" field, so raising the level to debug
interleaves worker output with coordinator decisions.

Never log secret environment values from worker definitions; log the keys
only.
*/
package log
