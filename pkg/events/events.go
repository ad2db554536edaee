package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventWorkerRegistered EventType = "worker.registered"
	EventWorkerConfigured EventType = "worker.configured"
	EventWorkerStarting   EventType = "worker.starting"
	EventWorkerStarted    EventType = "worker.started"
	EventWorkerStopped    EventType = "worker.stopped"
	EventWorkerExited     EventType = "worker.exited"
	EventWorkerError      EventType = "worker.error"
	EventWorkerRestarted  EventType = "worker.restarted"
	EventHealthChanged    EventType = "worker.health_changed"
	EventCoordinatorUp    EventType = "coordinator.started"
	EventCoordinatorDown  EventType = "coordinator.stopping"
)

// Event represents a lifecycle event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Worker    string            `json:"worker,omitempty"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Queue sizes. Both are fixed; overflow is counted, never waited on.
const (
	queueSize        = 256
	subscriberBuffer = 64
)

// stamp fills in the identity fields a publisher left empty
func (e *Event) stamp() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
}

// Subscriber receives events in publish order until it is unsubscribed
type Subscriber chan *Event

// Publisher is implemented by anything that accepts events
type Publisher interface {
	Publish(event *Event)
}

// Broker fans events out from one queue to every subscriber. Publishers
// are process observers and API handlers, so Publish must never block.
type Broker struct {
	mu   sync.RWMutex
	subs map[Subscriber]struct{}

	queue    chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	dropped  atomic.Int64
}

// NewBroker creates a broker. Events published before Start wait in the
// queue.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[Subscriber]struct{}),
		queue:  make(chan *Event, queueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the delivery loop
func (b *Broker) Start() {
	go b.run()
}

// Stop ends delivery after handing out what is already queued. Later
// publishes are discarded.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		close(b.stopCh)
	})
}

// Subscribe registers a new buffered subscriber
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberBuffer)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes it. Unknown or already removed
// subscribers are ignored.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish stamps event and queues it, dropping it if the queue is full
func (b *Broker) Publish(event *Event) {
	event.stamp()
	if b.stopped.Load() {
		return
	}

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.stopCh:
			b.drain()
			return
		}
	}
}

func (b *Broker) drain() {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		default:
			return
		}
	}
}

// deliver hands ev to every subscriber with room for it
func (b *Broker) deliver(ev *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts events lost to a full queue or subscriber buffer
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
