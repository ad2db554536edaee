/*
Package storage persists the small amount of coordinator state that must
survive a restart.

Worker definitions come from the configuration file at startup. The store
keeps the definitions changed through Configure so that those changes are
not lost; the coordinator merges them over the file's definitions. It also
keeps a bounded journal of lifecycle events for later inspection.

BoltStore is the only implementation. It uses one BoltDB file in the data
directory with two buckets:

	definitions   name -> JSON WorkerDefinition
	events        big-endian sequence -> JSON Event (oldest trimmed first)

Worker handles are runtime state and are never persisted; every worker
starts stopped when the coordinator starts.
*/
package storage
