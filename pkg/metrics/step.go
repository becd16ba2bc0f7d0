package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

func (m *Manager) initStepMetrics(cfg Config) {
	m.stepDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_dispatches_total",
			Help:      "Total number of step attempts dispatched",
		},
		[]string{"workflow", "step"},
	)

	m.stepOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_outcomes_total",
			Help:      "Total number of step attempts by outcome",
		},
		[]string{"workflow", "step", "outcome"},
	)

	m.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step attempt duration in seconds",
			Buckets:   cfg.StepDurationBuckets,
		},
		[]string{"workflow", "outcome"},
	)

	m.stepsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps_in_flight",
			Help:      "Current number of step attempts running",
		},
	)

	m.compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Total number of compensation decisions applied",
		},
		[]string{"workflow", "decision"},
	)

	m.undos = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_total",
			Help:      "Total number of rollback undo operations by outcome",
		},
		[]string{"workflow", "outcome"},
	)

	m.ledgerWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_write_errors_total",
			Help:      "Total number of coordination ledger writes that failed",
		},
	)

	m.registry.MustRegister(m.stepDispatches)
	m.registry.MustRegister(m.stepOutcomes)
	m.registry.MustRegister(m.stepDuration)
	m.registry.MustRegister(m.stepsInFlight)
	m.registry.MustRegister(m.compensations)
	m.registry.MustRegister(m.undos)
	m.registry.MustRegister(m.ledgerWriteErrors)
}

// RecordStepDispatch records one dispatched attempt.
func (m *Manager) RecordStepDispatch(workflow, step string) {
	if !m.Enabled() {
		return
	}
	m.stepDispatches.WithLabelValues(workflow, step).Inc()
	m.stepsInFlight.Inc()
}

// RecordStepOutcome records a finished attempt. When ctx carries a sampled
// span, the duration observation gets a trace exemplar.
func (m *Manager) RecordStepOutcome(ctx context.Context, workflow, step, outcome string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.stepsInFlight.Dec()
	m.stepOutcomes.WithLabelValues(workflow, step, outcome).Inc()

	observer := m.stepDuration.WithLabelValues(workflow, outcome)
	if labels, ok := traceExemplarLabels(ctx); ok {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(duration.Seconds(), labels)
			return
		}
	}
	observer.Observe(duration.Seconds())
}

// RecordCompensation records one applied compensation decision.
func (m *Manager) RecordCompensation(workflow, decision string) {
	if !m.Enabled() {
		return
	}
	m.compensations.WithLabelValues(workflow, decision).Inc()
}

// RecordUndo records one rollback undo.
func (m *Manager) RecordUndo(workflow, outcome string) {
	if !m.Enabled() {
		return
	}
	m.undos.WithLabelValues(workflow, outcome).Inc()
}

// RecordLedgerWriteError records a failed ledger append.
func (m *Manager) RecordLedgerWriteError() {
	if !m.Enabled() {
		return
	}
	m.ledgerWriteErrors.Inc()
}

func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	if ctx == nil {
		return nil, false
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() || !spanCtx.IsSampled() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	}, true
}
