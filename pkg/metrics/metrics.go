package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_workers",
			Help: "Number of registered workers by lifecycle status",
		},
		[]string{"status"},
	)

	WorkersHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_workers_health",
			Help: "Number of registered workers by health status",
		},
		[]string{"health"},
	)

	CapabilitiesAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_capabilities_available",
			Help: "Number of capabilities with at least one running, healthy advertiser",
		},
	)

	// Lifecycle metrics
	WorkerRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_worker_restarts_total",
			Help: "Total number of restart operations per worker",
		},
		[]string{"worker"},
	)

	WorkerExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_worker_exits_total",
			Help: "Total number of unplanned process exits per worker",
		},
		[]string{"worker"},
	)

	SpawnFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_spawn_failures_total",
			Help: "Total number of failed process spawns per worker",
		},
		[]string{"worker"},
	)

	// Routing metrics
	RouteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_route_requests_total",
			Help: "Total number of routing decisions by capability and result",
		},
		[]string{"capability", "result"},
	)

	// Health metrics
	HealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foreman_health_check_duration_seconds",
			Help:    "Duration of a single worker health evaluation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_api_requests_total",
			Help: "Total number of control API requests by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foreman_api_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	EventsDropped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_events_dropped",
			Help: "Lifecycle event deliveries skipped because a queue was full",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkersHealth)
	prometheus.MustRegister(CapabilitiesAvailable)
	prometheus.MustRegister(WorkerRestartsTotal)
	prometheus.MustRegister(WorkerExitsTotal)
	prometheus.MustRegister(SpawnFailuresTotal)
	prometheus.MustRegister(RouteRequestsTotal)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(EventsDropped)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
