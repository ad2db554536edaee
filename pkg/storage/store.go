package storage

import (
	"errors"

	"github.com/cuemby/foreman/pkg/events"
	"github.com/cuemby/foreman/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for coordinator state persistence
type Store interface {
	// Definition overrides written by Configure
	SaveDefinition(def *types.WorkerDefinition) error
	GetDefinition(name string) (*types.WorkerDefinition, error)
	ListDefinitions() ([]*types.WorkerDefinition, error)
	DeleteDefinition(name string) error

	// Lifecycle event journal, bounded
	AppendEvent(event *events.Event) error
	ListEvents(limit int) ([]*events.Event, error)

	Close() error
}
