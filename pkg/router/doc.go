// Package router selects a worker for a capability.
//
// Only workers that are running and healthy are eligible. Ties break on
// (priority, name) with lower priority preferred, so the same fleet state
// always produces the same choice.
package router
