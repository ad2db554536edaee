/*
Package metrics exposes Foreman's Prometheus metrics and the coordinator's
own health endpoints.

Metrics are registered with the default Prometheus registry on import and
served by Handler. Fleet gauges (workers by status and health, available
capabilities, dropped events) are refreshed by a Collector on a ticker;
counters and histograms are updated inline by the supervisor, monitor,
router and control packages.

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Workers:               sup,
		AvailableCapabilities: func() int { return len(rt.Capabilities("")) },
		DroppedEvents:         broker.Dropped,
	})
	collector.Start()
	defer collector.Stop()

Use Timer to observe a duration:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HealthCheckDuration)

Component health backs /health, /ready and /livez. Readiness waits for the
components set with SetCriticalComponents (supervisor and api by default).
*/
package metrics
