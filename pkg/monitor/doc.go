// Package monitor evaluates worker health on a shared tick and on demand.
//
// The baseline check is a pure function of the supervisor's record: a worker
// that is not running, or whose process has exited but not yet been
// reconciled, is in error; otherwise it is healthy. Workers that declare an
// active probe get the probe's verdict instead, with retry hysteresis.
package monitor
