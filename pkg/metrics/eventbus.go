package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initEventBusMetrics() {
	m.busPublish = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_bus_publish_total",
			Help:      "Total event bus publish attempts by status",
		},
		[]string{"status"},
	)

	m.busRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_bus_publish_retries_total",
			Help:      "Total number of event bus publish retries",
		},
	)

	m.busDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_bus_degraded",
			Help:      "Whether the event bus is in degraded mode (1=degraded)",
		},
	)

	m.busOutages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_bus_outages_total",
			Help:      "Total event bus outage transitions",
		},
	)

	m.busRecoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_bus_recoveries_total",
			Help:      "Total event bus recovery transitions",
		},
	)

	m.registry.MustRegister(m.busPublish)
	m.registry.MustRegister(m.busRetries)
	m.registry.MustRegister(m.busDegraded)
	m.registry.MustRegister(m.busOutages)
	m.registry.MustRegister(m.busRecoveries)
}

// RecordPublish records an event bus publish by status.
func (m *Manager) RecordPublish(status string) {
	if !m.Enabled() {
		return
	}
	m.busPublish.WithLabelValues(status).Inc()
}

// RecordRetry records one event bus publish retry.
func (m *Manager) RecordRetry() {
	if !m.Enabled() {
		return
	}
	m.busRetries.Inc()
}

// SetDegradedMode sets the event bus degraded gauge.
func (m *Manager) SetDegradedMode(active bool) {
	if !m.Enabled() {
		return
	}
	if active {
		m.busDegraded.Set(1)
		return
	}
	m.busDegraded.Set(0)
}

// RecordOutage records a transition into degraded mode.
func (m *Manager) RecordOutage() {
	if !m.Enabled() {
		return
	}
	m.busOutages.Inc()
}

// RecordRecovery records a transition out of degraded mode.
func (m *Manager) RecordRecovery() {
	if !m.Enabled() {
		return
	}
	m.busRecoveries.Inc()
}
