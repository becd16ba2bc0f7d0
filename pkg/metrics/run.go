package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initRunMetrics(cfg Config) {
	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs by terminal status",
		},
		[]string{"workflow", "status"},
	)

	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   cfg.RunDurationBuckets,
		},
		[]string{"workflow", "status"},
	)

	m.runsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Current number of runs in progress",
		},
	)

	m.registry.MustRegister(m.runs)
	m.registry.MustRegister(m.runDuration)
	m.registry.MustRegister(m.runsActive)
}

// RecordRun records one finished run.
func (m *Manager) RecordRun(workflow, status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.runs.WithLabelValues(workflow, status).Inc()
	m.runDuration.WithLabelValues(workflow, status).Observe(duration.Seconds())
}

// IncActiveRuns increments the in-progress run gauge.
func (m *Manager) IncActiveRuns() {
	if !m.Enabled() {
		return
	}
	m.runsActive.Inc()
}

// DecActiveRuns decrements the in-progress run gauge.
func (m *Manager) DecActiveRuns() {
	if !m.Enabled() {
		return
	}
	m.runsActive.Dec()
}
