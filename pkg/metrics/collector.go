package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/foreman/pkg/types"
)

// DefaultCollectInterval is how often fleet gauges are refreshed
const DefaultCollectInterval = 15 * time.Second

// HandleLister exposes worker snapshots
type HandleLister interface {
	Handles() []types.WorkerHandle
}

// CollectorConfig holds the sources a Collector samples
type CollectorConfig struct {
	Workers HandleLister

	// AvailableCapabilities counts capabilities with a routable advertiser
	AvailableCapabilities func() int

	// DroppedEvents reports the broker's drop counter
	DroppedEvents func() int64

	Interval time.Duration
}

// Collector refreshes fleet gauges on a ticker
type Collector struct {
	cfg      CollectorConfig
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCollectInterval
	}
	return &Collector{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.cfg.Interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect samples every source once
func (c *Collector) Collect() {
	c.collectWorkerMetrics()

	if c.cfg.AvailableCapabilities != nil {
		CapabilitiesAvailable.Set(float64(c.cfg.AvailableCapabilities()))
	}
	if c.cfg.DroppedEvents != nil {
		EventsDropped.Set(float64(c.cfg.DroppedEvents()))
	}
}

func (c *Collector) collectWorkerMetrics() {
	if c.cfg.Workers == nil {
		return
	}

	byStatus := map[types.WorkerStatus]int{
		types.WorkerStatusStopped:  0,
		types.WorkerStatusStarting: 0,
		types.WorkerStatusRunning:  0,
		types.WorkerStatusError:    0,
	}
	byHealth := map[types.HealthStatus]int{
		types.HealthHealthy: 0,
		types.HealthWarning: 0,
		types.HealthError:   0,
	}

	for _, h := range c.cfg.Workers.Handles() {
		byStatus[h.Status]++
		byHealth[h.HealthStatus]++
	}

	for status, n := range byStatus {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(n))
	}
	for health, n := range byHealth {
		WorkersHealth.WithLabelValues(string(health)).Set(float64(n))
	}
}
